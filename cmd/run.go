package main

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/profile-dedupe/internal/fetcher"
	"github.com/sells-group/profile-dedupe/internal/model"
	"github.com/sells-group/profile-dedupe/internal/operator"
	"github.com/sells-group/profile-dedupe/internal/reconcile"
)

var menuOptions = []string{
	"Preview (dry run, nothing is written)",
	"Migrate all profiles",
	"Migrate specific handles",
	"Migrate by role",
	"Exit",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Interactive reconciliation menu",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initRun(ctx, "commit")
		if err != nil {
			return err
		}
		defer env.Close()

		out := cmd.OutOrStdout()
		term := operator.NewTerminal(os.Stdin, out)
		return runMenu(ctx, term, env.Controller, out, operator.NewBar(cmd.ErrOrStderr()))
	},
}

// runMenu loops over the operator menu until Exit or a closed input. Fatal
// run errors are shown and the menu continues; the operator decides whether
// to retry.
func runMenu(ctx context.Context, ch operator.Channel, ctrl *reconcile.Controller, out io.Writer, progress reconcile.Progress) error {
	log := zap.L().With(zap.String("component", "menu"))

	for {
		choice, err := ch.Select(ctx, "What do you want to do?", menuOptions)
		if err != nil {
			return err
		}

		opts := reconcile.Options{Confirmer: ch, Review: reviewPlan(out), Progress: progress}
		switch choice {
		case 0:
			opts.DryRun = true
			opts.Confirmer = nil
			opts.Review = nil
		case 1:
			opts.Selection = model.Selection{Mode: model.SelectAll}
		case 2:
			answer, err := ch.Ask(ctx, "Handles (comma separated, or a .txt/.csv/.json/.xlsx file)")
			if err != nil {
				return err
			}
			handles, err := menuHandles(ctx, answer)
			if err != nil {
				ch.Notify(err.Error())
				continue
			}
			opts.Selection = model.Selection{Mode: model.SelectHandles, Handles: handles}
		case 3:
			role, err := ch.Ask(ctx, "Role (admin, core, team, kol, scout, user, viewer)")
			if err != nil {
				return err
			}
			if !model.KnownRole(model.NormalizeRole(role)) {
				ch.Notify("Unknown role " + role)
				continue
			}
			opts.Selection = model.Selection{Mode: model.SelectRole, Role: role}
		default:
			ch.Notify("Bye.")
			return nil
		}

		rep, runErr := ctrl.Run(ctx, opts)
		if errors.Is(runErr, reconcile.ErrCancelled) {
			ch.Notify("Commit cancelled; the preview above is all that happened.")
		}
		if err := finishRun(ctx, out, rep, runErr); err != nil {
			var fatal *reconcile.FatalError
			if !errors.As(err, &fatal) {
				return err
			}
			log.Error("run aborted", zap.String("stage", fatal.Stage), zap.Error(fatal.Err))
			ch.Notify("Run aborted: " + fatal.Error())
		}
	}
}

// menuHandles reads answer as a file path when one exists, else as a typed
// list.
func menuHandles(ctx context.Context, answer string) ([]string, error) {
	var (
		handles []string
		err     error
	)
	if info, statErr := os.Stat(answer); statErr == nil && !info.IsDir() {
		handles, err = fetcher.ReadHandles(ctx, answer)
	} else {
		handles = fetcher.SplitHandles(answer)
	}
	if err != nil {
		return nil, err
	}
	if len(handles) == 0 {
		return nil, eris.New("no handles given")
	}
	return handles, nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
