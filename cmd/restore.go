package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/profile-dedupe/internal/backup"
	"github.com/sells-group/profile-dedupe/internal/fetcher"
	"github.com/sells-group/profile-dedupe/internal/identity"
)

var (
	restoreBackup  string
	restoreHandles string
	restoreConfirm string
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Roll groups back to their pre-commit documents from a backup artifact",
	Long: "Writes every backed-up source document of the selected handles back to its original key, removes " +
		"the canonical key the commit created when it was not one of the sources, and rebuilds the indexes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if restoreBackup == "" {
			return eris.New("--backup is required")
		}
		if restoreConfirm != cfg.Run.ConfirmPhrase {
			return eris.Errorf("restore overwrites live keys; pass --confirm %q", cfg.Run.ConfirmPhrase)
		}

		recs, err := backup.ReadRecords(restoreBackup)
		if err != nil {
			return err
		}
		var handles []string
		for _, h := range fetcher.SplitHandles(restoreHandles) {
			handles = append(handles, identity.Normalize(h))
		}

		env, err := initRun(ctx, "commit")
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := backup.Restore(ctx, env.Store, recs, handles)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Restored %d keys across %d groups; removed %d canonical keys\n", stats.Restored, stats.Groups, stats.Removed)
		if len(stats.Missing) > 0 {
			fmt.Fprintf(out, "Not in backup: %s\n", strings.Join(stats.Missing, ", "))
		}

		ix, err := env.Controller.Indexer().Rebuild(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Rebuilt indexes: %d profiles, %d entries\n", ix.Profiles, ix.Entries)
		return nil
	},
}

func init() {
	restoreCmd.Flags().StringVar(&restoreBackup, "backup", "", "backup artifact (.jsonl) to restore from")
	restoreCmd.Flags().StringVar(&restoreHandles, "handles", "", "comma separated handles to restore (default: every group)")
	restoreCmd.Flags().StringVar(&restoreConfirm, "confirm", "", "confirmation phrase")
	rootCmd.AddCommand(restoreCmd)
}
