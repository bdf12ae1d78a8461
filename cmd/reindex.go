package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var reindexConfirm string

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Clear and rebuild the idx:<dimension>:<value> indexes from canonical profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if reindexConfirm != cfg.Run.ConfirmPhrase {
			return eris.Errorf("reindex clears every index key; pass --confirm %q", cfg.Run.ConfirmPhrase)
		}

		env, err := initRun(ctx, "commit")
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Controller.Indexer().Rebuild(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("reindex complete",
			zap.Int("cleared", stats.Cleared),
			zap.Int("profiles", stats.Profiles),
			zap.Int("entries", stats.Entries),
			zap.Int("failed", stats.Failed),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d index keys; indexed %d profiles into %d entries (%d failed)\n",
			stats.Cleared, stats.Profiles, stats.Entries, stats.Failed)
		for _, f := range stats.Failures {
			fmt.Fprintf(cmd.OutOrStdout(), "- %s: %s\n", f.Key, f.Reason)
		}
		return nil
	},
}

func init() {
	reindexCmd.Flags().StringVar(&reindexConfirm, "confirm", "", "confirmation phrase")
	rootCmd.AddCommand(reindexCmd)
}
