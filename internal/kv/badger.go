package kv

import (
	"bytes"
	"context"
	"errors"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-dedupe/internal/resilience"
)

// Badger key layout:
//
//	document: 'd' 0x00 key          -> raw value
//	set:      's' 0x00 key 0x00 m   -> empty
const (
	prefixDoc = byte('d')
	prefixSet = byte('s')
	sep       = byte(0x00)
)

// BadgerOptions configures an embedded badger store.
type BadgerOptions struct {
	Dir string
	// InMemory keeps everything in RAM; Dir is ignored.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
}

// BadgerStore is a Store on an embedded badger database, used for local
// rehearsal runs against a snapshot of production.
type BadgerStore struct {
	db *badger.DB
}

// NewBadger opens (or creates) a badger database.
func NewBadger(opts BadgerOptions) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites).WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, eris.Wrap(err, "kv: open badger")
	}
	return &BadgerStore{db: db}, nil
}

func docKey(key string) []byte {
	return append([]byte{prefixDoc, sep}, key...)
}

func setPrefix(key string) []byte {
	b := append([]byte{prefixSet, sep}, key...)
	return append(b, sep)
}

func memberKey(key, member string) []byte {
	return append(setPrefix(key), member...)
}

func (s *BadgerStore) Keys(_ context.Context, pattern string) ([]string, error) {
	re, err := GlobRegexp(pattern)
	if err != nil {
		return nil, err
	}
	lit := LiteralPrefix(pattern)

	seen := make(map[string]struct{})
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		docPrefix := append([]byte{prefixDoc, sep}, lit...)
		for it.Seek(docPrefix); it.ValidForPrefix(docPrefix); it.Next() {
			k := string(it.Item().Key()[2:])
			if re.MatchString(k) {
				seen[k] = struct{}{}
			}
		}

		setScan := append([]byte{prefixSet, sep}, lit...)
		for it.Seek(setScan); it.ValidForPrefix(setScan); it.Next() {
			rest := it.Item().Key()[2:]
			i := bytes.IndexByte(rest, sep)
			if i < 0 {
				continue
			}
			k := string(rest[:i])
			if re.MatchString(k) {
				seen[k] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "kv: badger keys %s", pattern)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			if hasPrefix(txn, setPrefix(key)) {
				return ErrWrongType
			}
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrWrongType) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrapf(err, "kv: badger get %s", key)
	}
	return val, nil
}

func (s *BadgerStore) Set(_ context.Context, key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := deletePrefix(txn, setPrefix(key)); err != nil {
			return err
		}
		return txn.Set(docKey(key), value)
	})
	return s.wrap(err, "set", key)
}

func (s *BadgerStore) Delete(_ context.Context, keys ...string) (int, error) {
	n := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		n = 0
		for _, key := range keys {
			_, err := txn.Get(docKey(key))
			switch {
			case err == nil:
				if err := txn.Delete(docKey(key)); err != nil {
					return err
				}
				n++
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}

			if hasPrefix(txn, setPrefix(key)) {
				if err := deletePrefix(txn, setPrefix(key)); err != nil {
					return err
				}
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, s.wrap(err, "delete", "")
	}
	return n, nil
}

func (s *BadgerStore) Members(_ context.Context, key string) ([]string, error) {
	var members []string
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(docKey(key)); err == nil {
			return ErrWrongType
		}

		prefix := setPrefix(key)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			members = append(members, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if errors.Is(err, ErrWrongType) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrapf(err, "kv: badger members %s", key)
	}
	if members == nil {
		members = []string{}
	}
	return members, nil
}

func (s *BadgerStore) AddMembers(_ context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(docKey(key)); err == nil {
			return ErrWrongType
		}
		for _, m := range members {
			if err := txn.Set(memberKey(key, m), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrWrongType) {
		return err
	}
	return s.wrap(err, "add members", key)
}

// BulkSet writes documents through a badger write batch.
func (s *BadgerStore) BulkSet(_ context.Context, entries []Entry) (int64, error) {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, e := range entries {
		if err := wb.Set(docKey(e.Key), e.Value); err != nil {
			return 0, eris.Wrapf(err, "kv: badger batch set %s", e.Key)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, eris.Wrap(err, "kv: badger batch flush")
	}
	return int64(len(entries)), nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// wrap marks transaction conflicts as retryable.
func (s *BadgerStore) wrap(err error, op, key string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrConflict) {
		return resilience.NewTransientError(err, "kv: badger "+op)
	}
	return eris.Wrapf(err, "kv: badger %s %s", op, key)
}

func hasPrefix(txn *badger.Txn, prefix []byte) bool {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	it.Rewind()
	return it.Valid()
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)

	var doomed [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		doomed = append(doomed, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range doomed {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
