package kv

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/profile-dedupe/internal/resilience"
)

// Resilient decorates a Store with client-side rate limiting and retries of
// transient errors. ErrNotFound and ErrWrongType are answers, not failures,
// and are never retried.
type Resilient struct {
	inner   Store
	backend string
	retry   resilience.RetryConfig
	limiter *rate.Limiter
}

// NewResilient wraps inner. A non-positive rps disables rate limiting.
func NewResilient(inner Store, backend string, retry resilience.RetryConfig, rps float64, burst int) *Resilient {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Resilient{
		inner:   inner,
		backend: backend,
		retry:   retry,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Unwrap returns the decorated store.
func (r *Resilient) Unwrap() Store { return r.inner }

func (r *Resilient) cfg(op string) resilience.RetryConfig {
	cfg := r.retry
	cfg.ShouldRetry = func(err error) bool {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrWrongType) {
			return false
		}
		return resilience.IsTransient(err)
	}
	cfg.OnRetry = resilience.LogRetry(r.backend, op)
	return cfg
}

func call[T any](ctx context.Context, r *Resilient, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	return resilience.DoVal(ctx, r.cfg(op), func(ctx context.Context) (T, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, eris.Wrap(err, "kv: rate limit")
		}
		return fn(ctx)
	})
}

func (r *Resilient) Keys(ctx context.Context, pattern string) ([]string, error) {
	return call(ctx, r, "keys", func(ctx context.Context) ([]string, error) {
		return r.inner.Keys(ctx, pattern)
	})
}

func (r *Resilient) Get(ctx context.Context, key string) ([]byte, error) {
	return call(ctx, r, "get", func(ctx context.Context) ([]byte, error) {
		return r.inner.Get(ctx, key)
	})
}

func (r *Resilient) Set(ctx context.Context, key string, value []byte) error {
	_, err := call(ctx, r, "set", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.inner.Set(ctx, key, value)
	})
	return err
}

// Delete is idempotent, so retrying after a lost reply is safe; the count
// from a retried call may undercount.
func (r *Resilient) Delete(ctx context.Context, keys ...string) (int, error) {
	return call(ctx, r, "delete", func(ctx context.Context) (int, error) {
		return r.inner.Delete(ctx, keys...)
	})
}

func (r *Resilient) Members(ctx context.Context, key string) ([]string, error) {
	return call(ctx, r, "members", func(ctx context.Context) ([]string, error) {
		return r.inner.Members(ctx, key)
	})
}

func (r *Resilient) AddMembers(ctx context.Context, key string, members ...string) error {
	_, err := call(ctx, r, "add_members", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.inner.AddMembers(ctx, key, members...)
	})
	return err
}

// Migrate forwards to the inner store when it has a schema.
func (r *Resilient) Migrate(ctx context.Context) error {
	if m, ok := r.inner.(Migrator); ok {
		return m.Migrate(ctx)
	}
	return nil
}

// BulkSet uses the inner store's bulk path when it has one and falls back to
// one Set per entry.
func (r *Resilient) BulkSet(ctx context.Context, entries []Entry) (int64, error) {
	if bw, ok := r.inner.(BulkWriter); ok {
		return call(ctx, r, "bulk_set", func(ctx context.Context) (int64, error) {
			return bw.BulkSet(ctx, entries)
		})
	}
	var n int64
	for _, e := range entries {
		if err := r.Set(ctx, e.Key, e.Value); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (r *Resilient) Close() error {
	return r.inner.Close()
}
