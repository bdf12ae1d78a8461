// Package kv abstracts the schemaless key-value store profiles live in.
// Documents are opaque byte values; index keys are string sets.
package kv

import (
	"context"

	"github.com/rotisserie/eris"
)

var (
	// ErrNotFound is returned by Get for a key that does not exist.
	ErrNotFound = eris.New("kv: key not found")
	// ErrWrongType is returned when a document operation hits a set key or
	// the reverse.
	ErrWrongType = eris.New("kv: operation against a key holding the wrong kind of value")
)

// Store is the capability the reconciliation engine needs from a backend.
type Store interface {
	// Keys returns every document or set key matching a Redis-style glob,
	// sorted and without duplicates.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes a document, replacing whatever the key held before.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes keys of any kind and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int, error)
	// Members returns the sorted members of a set; a missing key is an
	// empty set.
	Members(ctx context.Context, key string) ([]string, error)
	AddMembers(ctx context.Context, key string, members ...string) error
	Close() error
}

// Migrator is implemented by backends that need a schema before use.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Entry is one document for bulk loading.
type Entry struct {
	Key   string
	Value []byte
}

// BulkWriter is implemented by backends that load many documents in one
// round trip.
type BulkWriter interface {
	BulkSet(ctx context.Context, entries []Entry) (int64, error)
}
