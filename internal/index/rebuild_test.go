package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-dedupe/internal/config"
	"github.com/sells-group/profile-dedupe/internal/keys"
	"github.com/sells-group/profile-dedupe/internal/kv"
	"github.com/sells-group/profile-dedupe/internal/model"
)

func setup(t *testing.T) (*kv.Memory, *Rebuilder) {
	t.Helper()
	store := kv.NewMemory()
	scanner, err := keys.NewScanner(store, config.KeysConfig{
		Canonical: "user:{id}",
		Patterns:  config.DefaultKeyPatterns(),
		Exclude:   []string{"idx:*"},
	})
	require.NoError(t, err)
	return store, New(store, scanner, "idx")
}

// snapshot returns every index set in the store.
func snapshot(t *testing.T, store kv.Store) map[string][]string {
	t.Helper()
	ctx := context.Background()
	idxKeys, err := store.Keys(ctx, "idx:*")
	require.NoError(t, err)
	out := make(map[string][]string, len(idxKeys))
	for _, k := range idxKeys {
		m, err := store.Members(ctx, k)
		require.NoError(t, err)
		out[k] = m
	}
	return out
}

func TestRebuild(t *testing.T) {
	ctx := context.Background()
	store, r := setup(t)

	require.NoError(t, store.Set(ctx, "user:1", []byte(`{"id":"1","handle":"janedoe","role":"admin",
		"approvalStatus":"approved","displayName":"Jane Doe","tier":"Gold","isKOL":true,
		"walletAddresses":{"eth":"0xABC","sol":["So1","So2"]}}`)))
	require.NoError(t, store.Set(ctx, "user:2", []byte(`{"id":"2","handle":"bob","role":"user","approvalStatus":"pending"}`)))
	require.NoError(t, store.Set(ctx, "user:3", []byte(`{broken`)))
	require.NoError(t, store.Set(ctx, "profile:4", []byte(`{"handle":"legacy","role":"admin"}`)))
	require.NoError(t, store.AddMembers(ctx, "idx:role:admin", "ghost"))
	require.NoError(t, store.AddMembers(ctx, "idx:tier:silver", "ghost"))

	stats, err := r.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Cleared)
	assert.Equal(t, 2, stats.Profiles)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, "user:3", stats.Failures[0].Key)

	got := snapshot(t, store)
	assert.Equal(t, []string{"1"}, got["idx:role:admin"])
	assert.Equal(t, []string{"2"}, got["idx:role:user"])
	assert.Equal(t, []string{"1"}, got["idx:status:approved"])
	assert.Equal(t, []string{"1"}, got["idx:name:jane doe"])
	assert.Equal(t, []string{"1"}, got["idx:tier:gold"])
	assert.Equal(t, []string{"1"}, got["idx:kol:true"])
	assert.Equal(t, []string{"1"}, got["idx:wallet:0xabc"])
	assert.Equal(t, []string{"1"}, got["idx:wallet:eth:0xabc"])
	assert.Equal(t, []string{"1"}, got["idx:wallet:sol:so2"])
	assert.Equal(t, []string{"2"}, got["idx:handle:bob"])
	assert.NotContains(t, got, "idx:tier:silver")
	assert.NotContains(t, got, "idx:handle:legacy")
	assert.Equal(t, stats.Entries, stats.Dimensions["handle"]+stats.Dimensions["role"]+
		stats.Dimensions["status"]+stats.Dimensions["name"]+stats.Dimensions["wallet"]+
		stats.Dimensions["tier"]+stats.Dimensions["kol"])

	second, err := r.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.Entries, second.Entries)
	assert.Equal(t, got, snapshot(t, store), "rebuild must be idempotent")
}

func TestRebuild_EmptyStore(t *testing.T) {
	_, r := setup(t)
	stats, err := r.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Profiles)
	assert.Zero(t, stats.Cleared)
}

func TestPlan(t *testing.T) {
	_, r := setup(t)
	entries, stats := r.Plan([]model.CanonicalProfile{
		{ID: "1", Fields: map[string]any{"handle": "a", "role": "kol"}},
		{ID: "2", Fields: map[string]any{"handle": "b", "role": "kol", "kol": "true"}},
	})

	assert.True(t, stats.Planned)
	assert.Equal(t, 2, stats.Profiles)
	assert.Equal(t, 6, stats.Entries)
	assert.Equal(t, []model.IndexEntry{
		{IndexKey: "idx:handle:a", MemberIDs: []string{"1"}},
		{IndexKey: "idx:handle:b", MemberIDs: []string{"2"}},
		{IndexKey: "idx:kol:true", MemberIDs: []string{"1", "2"}},
		{IndexKey: "idx:role:kol", MemberIDs: []string{"1", "2"}},
	}, entries)
}

func TestKeys_WalletShapes(t *testing.T) {
	_, r := setup(t)
	got := r.Keys(map[string]any{
		"wallets": []any{
			map[string]any{"chain": "ETH", "address": "0xA"},
			"0xB",
		},
		"walletAddress": "0xA",
		"name":          "  ",
	})
	assert.Equal(t, []string{"idx:wallet:0xa", "idx:wallet:eth:0xa", "idx:wallet:0xb"}, got["wallet"])
	assert.NotContains(t, got, "name")
}
