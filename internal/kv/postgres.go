package kv

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-dedupe/internal/db"
)

// PostgresStore keeps the keyspace in two postgres tables. It serves
// deployments where profiles were mirrored into postgres for reporting.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects a pool and returns a store on it.
func NewPostgres(ctx context.Context, connString string, opts db.PoolOptions) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, opts)
	if err != nil {
		return nil, eris.Wrap(err, "kv: postgres")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close leaves the pool open.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS kv_documents (
	key   TEXT PRIMARY KEY,
	value BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS kv_set_members (
	key    TEXT NOT NULL,
	member TEXT NOT NULL,
	PRIMARY KEY (key, member)
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "kv: postgres migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	re, err := GlobRegexp(pattern)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT key FROM kv_documents WHERE key ~ $1
		UNION
		SELECT key FROM kv_set_members WHERE key ~ $1
		ORDER BY 1`, re.String())
	if err != nil {
		return nil, eris.Wrapf(err, "kv: postgres keys %s", pattern)
	}

	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, eris.Wrapf(err, "kv: postgres collect keys %s", pattern)
	}
	return keys, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_documents WHERE key = $1`, key).Scan(&val)
	if errors.Is(err, pgx.ErrNoRows) {
		isSet, serr := s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM kv_set_members WHERE key = $1)`, key)
		if serr != nil {
			return nil, serr
		}
		if isSet {
			return nil, ErrWrongType
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "kv: postgres get %s", key)
	}
	return val, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "kv: postgres begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM kv_set_members WHERE key = $1`, key); err != nil {
		return eris.Wrapf(err, "kv: postgres clear set %s", key)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO kv_documents (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	); err != nil {
		return eris.Wrapf(err, "kv: postgres set %s", key)
	}
	return eris.Wrap(tx.Commit(ctx), "kv: postgres commit")
}

func (s *PostgresStore) Delete(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	var n int
	err := s.pool.QueryRow(ctx, `
		WITH docs AS (
			DELETE FROM kv_documents WHERE key = ANY($1) RETURNING key
		), sets AS (
			DELETE FROM kv_set_members WHERE key = ANY($1) RETURNING key
		)
		SELECT (SELECT count(*) FROM docs) + (SELECT count(DISTINCT key) FROM sets)`,
		keys,
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "kv: postgres delete")
	}
	return n, nil
}

func (s *PostgresStore) Members(ctx context.Context, key string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT member FROM kv_set_members WHERE key = $1 ORDER BY member`, key)
	if err != nil {
		return nil, eris.Wrapf(err, "kv: postgres members %s", key)
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, eris.Wrapf(err, "kv: postgres collect members %s", key)
	}

	if len(members) == 0 {
		isDoc, err := s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM kv_documents WHERE key = $1)`, key)
		if err != nil {
			return nil, err
		}
		if isDoc {
			return nil, ErrWrongType
		}
		return []string{}, nil
	}
	return members, nil
}

func (s *PostgresStore) AddMembers(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}

	isDoc, err := s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM kv_documents WHERE key = $1)`, key)
	if err != nil {
		return err
	}
	if isDoc {
		return ErrWrongType
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO kv_set_members (key, member) SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`,
		key, members,
	)
	return eris.Wrapf(err, "kv: postgres add members %s", key)
}

// BulkSet loads documents with COPY and a single upsert.
func (s *PostgresStore) BulkSet(ctx context.Context, entries []Entry) (int64, error) {
	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = []any{e.Key, e.Value}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "kv_documents",
		Columns:      []string{"key", "value"},
		ConflictKeys: []string{"key"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "kv: postgres bulk set")
	}
	return n, nil
}

func (s *PostgresStore) exists(ctx context.Context, query, key string) (bool, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx, query, key).Scan(&ok); err != nil {
		return false, eris.Wrapf(err, "kv: postgres probe %s", key)
	}
	return ok, nil
}
