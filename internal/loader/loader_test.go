package loader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-dedupe/internal/kv"
	"github.com/sells-group/profile-dedupe/internal/model"
)

type flakyStore struct{ kv.Store }

func (flakyStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("read tcp: i/o timeout")
}

func ref(key string) model.KeyRef { return model.KeyRef{Key: key, Template: "user:{id}"} }

func TestLoad(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	require.NoError(t, store.Set(ctx, "user:1", []byte(`{"handle":"jane","followerCount":10}`)))
	require.NoError(t, store.Set(ctx, "user:2", []byte(`{"handle":`)))
	require.NoError(t, store.Set(ctx, "user:3", []byte(`["not","an","object"]`)))
	require.NoError(t, store.AddMembers(ctx, "user:4", "x"))

	l := New(store, 2)
	docs := l.LoadAll(ctx, []model.KeyRef{ref("user:1"), ref("user:2"), ref("user:3"), ref("user:4"), ref("user:5")})
	require.Len(t, docs, 5)

	valid, ok := docs[0].(model.ValidDocument)
	require.True(t, ok)
	assert.Equal(t, "jane", valid.Fields["handle"])
	assert.Equal(t, `{"handle":"jane","followerCount":10}`, string(valid.Raw))

	bad, ok := docs[1].(model.MalformedDocument)
	require.True(t, ok)
	assert.Equal(t, `{"handle":`, string(bad.Raw))
	assert.Contains(t, bad.Reason, "decode document")

	notObj, ok := docs[2].(model.MalformedDocument)
	require.True(t, ok)
	assert.Contains(t, notObj.Reason, "JSON array")

	set, ok := docs[3].(model.MalformedDocument)
	require.True(t, ok)
	assert.Contains(t, set.Reason, "holds a set")

	_, ok = docs[4].(model.AbsentDocument)
	assert.True(t, ok)
}

func TestLoad_StoreErrorIsIsolated(t *testing.T) {
	doc := New(flakyStore{kv.NewMemory()}, 0).Load(context.Background(), ref("user:1"))

	bad, ok := doc.(model.MalformedDocument)
	require.True(t, ok)
	assert.Contains(t, bad.Reason, "i/o timeout")
	assert.Equal(t, "user:1", bad.KeyRef().Key)
}
