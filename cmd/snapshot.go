package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/profile-dedupe/internal/kv"
)

var (
	snapshotOut     string
	snapshotIn      string
	snapshotPattern string
	snapshotConfirm string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Copy the keyspace to and from a JSONL dump for rehearsal runs",
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump every key matching --pattern to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if snapshotOut == "" {
			return eris.New("--out is required")
		}

		if err := cfg.Validate("preview"); err != nil {
			return err
		}
		store, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		f, err := os.OpenFile(snapshotOut, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			return eris.Wrapf(err, "create %s", snapshotOut)
		}
		defer f.Close() //nolint:errcheck

		stats, err := kv.Dump(ctx, store, snapshotPattern, f)
		if err != nil {
			return err
		}
		if err := f.Sync(); err != nil {
			return eris.Wrapf(err, "sync %s", snapshotOut)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d documents and %d sets to %s\n", stats.Documents, stats.Sets, snapshotOut)
		return nil
	},
}

var snapshotImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a dump into the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if snapshotIn == "" {
			return eris.New("--in is required")
		}
		if snapshotConfirm != cfg.Run.ConfirmPhrase {
			return eris.Errorf("import overwrites keys in the %s store; pass --confirm %q", cfg.Store.Driver, cfg.Run.ConfirmPhrase)
		}

		if err := cfg.Validate("commit"); err != nil {
			return err
		}
		store, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		f, err := os.Open(snapshotIn)
		if err != nil {
			return eris.Wrapf(err, "open %s", snapshotIn)
		}
		defer f.Close() //nolint:errcheck

		stats, err := kv.Load(ctx, store, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d documents and %d sets from %s\n", stats.Documents, stats.Sets, snapshotIn)
		return nil
	},
}

func init() {
	snapshotExportCmd.Flags().StringVar(&snapshotOut, "out", "", "dump file to create")
	snapshotExportCmd.Flags().StringVar(&snapshotPattern, "pattern", "*", "key glob to export")
	snapshotImportCmd.Flags().StringVar(&snapshotIn, "in", "", "dump file to load")
	snapshotImportCmd.Flags().StringVar(&snapshotConfirm, "confirm", "", "confirmation phrase")
	snapshotCmd.AddCommand(snapshotExportCmd, snapshotImportCmd)
	rootCmd.AddCommand(snapshotCmd)
}
