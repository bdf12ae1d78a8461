package kv

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store in a single SQLite file. Operators use it to keep a
// portable copy of the keyspace next to the run artifacts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "kv: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "kv: sqlite exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS kv_documents (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS kv_set_members (
	key    TEXT NOT NULL,
	member TEXT NOT NULL,
	PRIMARY KEY (key, member)
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "kv: sqlite migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	re, err := GlobRegexp(pattern)
	if err != nil {
		return nil, err
	}
	lit := LiteralPrefix(pattern)

	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM kv_documents WHERE instr(key, ?1) = 1 OR ?1 = ''
		UNION
		SELECT DISTINCT key FROM kv_set_members WHERE instr(key, ?1) = 1 OR ?1 = ''
		ORDER BY 1`, lit)
	if err != nil {
		return nil, eris.Wrapf(err, "kv: sqlite keys %s", pattern)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, eris.Wrap(err, "kv: sqlite scan key")
		}
		if re.MatchString(k) {
			keys = append(keys, k)
		}
	}
	return keys, eris.Wrap(rows.Err(), "kv: sqlite iterate keys")
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_documents WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		isSet, serr := s.isSet(ctx, key)
		if serr != nil {
			return nil, serr
		}
		if isSet {
			return nil, ErrWrongType
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "kv: sqlite get %s", key)
	}
	return val, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "kv: sqlite begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM kv_set_members WHERE key = ?`, key); err != nil {
		return eris.Wrapf(err, "kv: sqlite clear set %s", key)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kv_documents (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	); err != nil {
		return eris.Wrapf(err, "kv: sqlite set %s", key)
	}
	return eris.Wrap(tx.Commit(), "kv: sqlite commit")
}

func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "kv: sqlite begin")
	}
	defer tx.Rollback() //nolint:errcheck

	var sets int
	if err := tx.QueryRowContext(ctx,
		`SELECT count(DISTINCT key) FROM kv_set_members WHERE key IN (`+placeholders+`)`, args...,
	).Scan(&sets); err != nil {
		return 0, eris.Wrap(err, "kv: sqlite count sets")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM kv_set_members WHERE key IN (`+placeholders+`)`, args...); err != nil {
		return 0, eris.Wrap(err, "kv: sqlite delete sets")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM kv_documents WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, eris.Wrap(err, "kv: sqlite delete documents")
	}
	docs, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "kv: sqlite commit")
	}
	return int(docs) + sets, nil
}

func (s *SQLiteStore) Members(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT member FROM kv_set_members WHERE key = ? ORDER BY member`, key)
	if err != nil {
		return nil, eris.Wrapf(err, "kv: sqlite members %s", key)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, eris.Wrap(err, "kv: sqlite scan member")
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "kv: sqlite iterate members")
	}

	if len(members) == 0 {
		isDoc, err := s.isDocument(ctx, key)
		if err != nil {
			return nil, err
		}
		if isDoc {
			return nil, ErrWrongType
		}
	}
	return members, nil
}

func (s *SQLiteStore) AddMembers(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}

	isDoc, err := s.isDocument(ctx, key)
	if err != nil {
		return err
	}
	if isDoc {
		return ErrWrongType
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "kv: sqlite begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO kv_set_members (key, member) VALUES (?, ?)`)
	if err != nil {
		return eris.Wrap(err, "kv: sqlite prepare add member")
	}
	defer stmt.Close()

	for _, m := range members {
		if _, err := stmt.ExecContext(ctx, key, m); err != nil {
			return eris.Wrapf(err, "kv: sqlite add member %s", key)
		}
	}
	return eris.Wrap(tx.Commit(), "kv: sqlite commit")
}

func (s *SQLiteStore) isSet(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM kv_set_members WHERE key = ?)`, key).Scan(&ok)
	return ok, eris.Wrapf(err, "kv: sqlite probe set %s", key)
}

func (s *SQLiteStore) isDocument(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM kv_documents WHERE key = ?)`, key).Scan(&ok)
	return ok, eris.Wrapf(err, "kv: sqlite probe document %s", key)
}
