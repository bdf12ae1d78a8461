package kv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/rotisserie/eris"
)

// DumpRecord is one line of a keyspace dump. Exactly one of Value and
// Members is set.
type DumpRecord struct {
	Key     string   `json:"key"`
	Value   *string  `json:"value,omitempty"`
	Members []string `json:"members,omitempty"`
}

// DumpStats counts what a dump or load touched.
type DumpStats struct {
	Documents int `json:"documents"`
	Sets      int `json:"sets"`
}

// Dump writes every key matching pattern to w as JSON lines.
func Dump(ctx context.Context, s Store, pattern string, w io.Writer) (DumpStats, error) {
	var stats DumpStats

	keys, err := s.Keys(ctx, pattern)
	if err != nil {
		return stats, eris.Wrap(err, "kv: dump scan")
	}

	enc := json.NewEncoder(w)
	for _, key := range keys {
		rec := DumpRecord{Key: key}

		val, err := s.Get(ctx, key)
		switch {
		case err == nil:
			v := string(val)
			rec.Value = &v
			stats.Documents++
		case errors.Is(err, ErrWrongType):
			members, merr := s.Members(ctx, key)
			if merr != nil {
				return stats, eris.Wrapf(merr, "kv: dump members %s", key)
			}
			rec.Members = members
			stats.Sets++
		case errors.Is(err, ErrNotFound):
			continue
		default:
			return stats, eris.Wrapf(err, "kv: dump get %s", key)
		}

		if err := enc.Encode(rec); err != nil {
			return stats, eris.Wrap(err, "kv: dump write")
		}
	}
	return stats, nil
}

const loadBatch = 500

// Load reads a dump produced by Dump into s. Documents go through BulkSet
// when the store supports it.
func Load(ctx context.Context, s Store, r io.Reader) (DumpStats, error) {
	var stats DumpStats
	bw, bulk := s.(BulkWriter)

	var batch []Entry
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := bw.BulkSet(ctx, batch); err != nil {
			return eris.Wrap(err, "kv: load batch")
		}
		batch = batch[:0]
		return nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}

		var rec DumpRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return stats, eris.Wrapf(err, "kv: load line %d", line)
		}

		switch {
		case rec.Value != nil:
			stats.Documents++
			if bulk {
				batch = append(batch, Entry{Key: rec.Key, Value: []byte(*rec.Value)})
				if len(batch) >= loadBatch {
					if err := flush(); err != nil {
						return stats, err
					}
				}
				continue
			}
			if err := s.Set(ctx, rec.Key, []byte(*rec.Value)); err != nil {
				return stats, eris.Wrapf(err, "kv: load %s", rec.Key)
			}
		case len(rec.Members) > 0:
			stats.Sets++
			if err := s.AddMembers(ctx, rec.Key, rec.Members...); err != nil {
				return stats, eris.Wrapf(err, "kv: load set %s", rec.Key)
			}
		default:
			return stats, eris.Errorf("kv: load line %d: record has neither value nor members", line)
		}
	}
	if err := sc.Err(); err != nil {
		return stats, eris.Wrap(err, "kv: load read")
	}
	if bulk {
		if err := flush(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
