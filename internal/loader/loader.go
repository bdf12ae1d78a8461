// Package loader reads profile documents without letting one bad record stop
// a run.
package loader

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/profile-dedupe/internal/kv"
	"github.com/sells-group/profile-dedupe/internal/model"
)

const defaultConcurrency = 8

// Loader turns scanned keys into documents.
type Loader struct {
	store       kv.Store
	concurrency int
	log         *zap.Logger
}

// New returns a Loader reading from store with at most concurrency reads in
// flight. Zero or less means the default of 8.
func New(store kv.Store, concurrency int) *Loader {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Loader{
		store:       store,
		concurrency: concurrency,
		log:         zap.L().With(zap.String("component", "profile_loader")),
	}
}

// Load reads one key. It never fails: store errors, unusable content and
// vanished keys come back as MalformedDocument or AbsentDocument.
func (l *Loader) Load(ctx context.Context, ref model.KeyRef) model.Document {
	raw, err := l.store.Get(ctx, ref.Key)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		l.log.Debug("key vanished since scan", zap.String("key", ref.Key))
		return model.AbsentDocument{Ref: ref}
	case errors.Is(err, kv.ErrWrongType):
		return l.malformed(ref, nil, "key holds a set, not a document")
	case err != nil:
		return l.malformed(ref, nil, "read failed: "+err.Error())
	}

	fields, err := model.DecodeObject(raw)
	if err != nil {
		return l.malformed(ref, raw, err.Error())
	}
	return model.ValidDocument{Ref: ref, Raw: raw, Fields: fields}
}

// LoadAll loads refs concurrently. The result is in refs order.
func (l *Loader) LoadAll(ctx context.Context, refs []model.KeyRef) []model.Document {
	docs := make([]model.Document, len(refs))

	var g errgroup.Group
	g.SetLimit(l.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			docs[i] = l.Load(ctx, ref)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	return docs
}

func (l *Loader) malformed(ref model.KeyRef, raw []byte, reason string) model.Document {
	l.log.Warn("malformed profile document", zap.String("key", ref.Key), zap.String("reason", reason))
	return model.MalformedDocument{Ref: ref, Raw: raw, Reason: reason}
}
