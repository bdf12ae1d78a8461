package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/profile-dedupe/internal/fetcher"
	"github.com/sells-group/profile-dedupe/internal/model"
	"github.com/sells-group/profile-dedupe/internal/operator"
	"github.com/sells-group/profile-dedupe/internal/reconcile"
)

var (
	migrateAll         bool
	migrateHandles     string
	migrateHandlesFile string
	migrateRole        string
	migrateConfirm     string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Merge and migrate profiles (destructive, backed up)",
	Long: "Commits the reconciliation for all identities, a handle list or one role. Source keys are deleted only " +
		"after the group's backup is verified and the canonical profile reads back. Without --confirm the " +
		"confirmation phrase is asked for on stdin.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sel, err := buildSelection(ctx, migrateAll, migrateHandles, migrateHandlesFile, migrateRole)
		if err != nil {
			return err
		}

		env, err := initRun(ctx, "commit")
		if err != nil {
			return err
		}
		defer env.Close()

		out := cmd.OutOrStdout()
		opts := reconcile.Options{
			Selection: sel,
			Review:    reviewPlan(out),
			Progress:  operator.NewBar(cmd.ErrOrStderr()),
		}
		if migrateConfirm != "" {
			opts.Confirmer = operator.Preconfirmed{Given: migrateConfirm}
		} else {
			opts.Confirmer = operator.NewTerminal(os.Stdin, out)
		}

		rep, runErr := env.Controller.Run(ctx, opts)
		return finishRun(ctx, out, rep, runErr)
	},
}

// buildSelection turns the selection flags into a Selection. Exactly one of
// them must be set.
func buildSelection(ctx context.Context, all bool, handles, handlesFile, role string) (model.Selection, error) {
	set := 0
	for _, on := range []bool{all, handles != "", handlesFile != "", role != ""} {
		if on {
			set++
		}
	}
	if set != 1 {
		return model.Selection{}, eris.New("exactly one of --all, --handles, --handles-file or --role is required")
	}

	switch {
	case all:
		return model.Selection{Mode: model.SelectAll}, nil
	case role != "":
		return model.Selection{Mode: model.SelectRole, Role: role}, nil
	}

	list := fetcher.SplitHandles(handles)
	if handlesFile != "" {
		var err error
		if list, err = fetcher.ReadHandles(ctx, handlesFile); err != nil {
			return model.Selection{}, err
		}
	}
	if len(list) == 0 {
		return model.Selection{}, eris.New("handle list is empty")
	}
	return model.Selection{Mode: model.SelectHandles, Handles: list}, nil
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateAll, "all", false, "migrate every identity group")
	migrateCmd.Flags().StringVar(&migrateHandles, "handles", "", "comma separated handles to migrate")
	migrateCmd.Flags().StringVar(&migrateHandlesFile, "handles-file", "", "file of handles (.txt, .csv, .json or .xlsx)")
	migrateCmd.Flags().StringVar(&migrateRole, "role", "", "migrate identities whose canonical role matches")
	migrateCmd.Flags().StringVar(&migrateConfirm, "confirm", "", "confirmation phrase for non-interactive use")
	rootCmd.AddCommand(migrateCmd)
}
