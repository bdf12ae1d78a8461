//go:build !integration

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"run", "preview", "migrate", "reindex", "restore", "snapshot", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "profile-dedupe", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("patterns-file"))
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("metrics-file"))
}

func TestMigrateCommand_Flags(t *testing.T) {
	for _, name := range []string{"all", "handles", "handles-file", "role", "confirm"} {
		assert.NotNil(t, migrateCmd.Flags().Lookup(name), "migrate should have --%s", name)
	}
}

func TestPreviewCommand_Flags(t *testing.T) {
	assert.NotNil(t, previewCmd.Flags().Lookup("xlsx"))
}

func TestSnapshotCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range snapshotCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["export"])
	assert.True(t, names["import"])
	flag := snapshotExportCmd.Flags().Lookup("pattern")
	require.NotNil(t, flag)
	assert.Equal(t, "*", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}
