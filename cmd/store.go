package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-dedupe/internal/config"
	"github.com/sells-group/profile-dedupe/internal/db"
	"github.com/sells-group/profile-dedupe/internal/kv"
	"github.com/sells-group/profile-dedupe/internal/resilience"
)

// openStore is swapped out by tests.
var openStore = newStore

// newStore opens the configured backend behind retries and rate limiting and
// applies its schema when it has one.
func newStore(ctx context.Context, sc config.StoreConfig) (kv.Store, error) {
	var (
		inner kv.Store
		err   error
	)
	switch sc.Driver {
	case "memory":
		inner = kv.NewMemory()
	case "redis":
		inner, err = kv.NewRedis(ctx, sc.URL)
	case "badger":
		inner, err = kv.NewBadger(kv.BadgerOptions{Dir: sc.Path, SyncWrites: true})
	case "sqlite":
		inner, err = kv.NewSQLite(sc.Path)
	case "postgres":
		inner, err = kv.NewPostgres(ctx, sc.URL, db.PoolOptions{MaxConns: sc.Pool.MaxConns, MinConns: sc.Pool.MinConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
	if err != nil {
		return nil, err
	}

	store := kv.NewResilient(inner, sc.Driver, resilience.RetryFromConfig(sc.Retry), sc.RateLimit, sc.Burst)
	if err := store.Migrate(ctx); err != nil {
		store.Close() //nolint:errcheck
		return nil, err
	}

	zap.L().Debug("store opened", zap.String("driver", sc.Driver))
	return store, nil
}
