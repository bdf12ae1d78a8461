//go:build !integration

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-dedupe/internal/config"
	"github.com/sells-group/profile-dedupe/internal/kv"
	"github.com/sells-group/profile-dedupe/internal/reconcile"
	"github.com/sells-group/profile-dedupe/internal/scorer"
)

// useTestConfig installs a memory-backed config for the test and restores
// the globals afterwards.
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	prevCfg, prevOpen := cfg, openStore
	t.Cleanup(func() { cfg, openStore = prevCfg, prevOpen })

	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "memory"},
		Keys: config.KeysConfig{
			Canonical:   "user:{id}",
			Patterns:    config.DefaultKeyPatterns(),
			Exclude:     []string{"idx:*"},
			IndexPrefix: "idx",
		},
		Identity: config.IdentityConfig{HandleFields: []string{"handle", "twitterHandle", "xHandle", "username"}},
		Scoring:  scorer.DefaultScorerConfig(),
		Run: config.RunConfig{
			OutputDir:     t.TempDir(),
			BackupDir:     t.TempDir(),
			ConfirmPhrase: "MIGRATE PROFILES",
		},
		Server: config.ServerConfig{Port: 8080, CORSOrigins: []string{"*"}},
	}
	return cfg
}

// seededStore returns a memory store with two spellings of janedoe and a
// legacy single.
func seededStore(t *testing.T) *kv.Memory {
	t.Helper()
	store := kv.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "user:profile:jd1", []byte(`{"handle":"JaneDoe","role":"admin","email":"jane@example.com"}`)))
	require.NoError(t, store.Set(ctx, "profile:jd2", []byte(`{"handle":"@janedoe","followerCount":500}`)))
	require.NoError(t, store.Set(ctx, "users:al", []byte(`{"handle":"Al"}`)))
	return store
}

func testController(t *testing.T, store kv.Store) *reconcile.Controller {
	t.Helper()
	ctrl, err := reconcile.New(store, cfg, reconcile.WithClock(func() time.Time {
		return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, err)
	return ctrl
}

func reconcileDryRun() reconcile.Options {
	return reconcile.Options{DryRun: true}
}
