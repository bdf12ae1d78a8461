package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/profile-dedupe/internal/model"
	"github.com/sells-group/profile-dedupe/internal/reconcile"
	"github.com/sells-group/profile-dedupe/internal/report"
)

var (
	previewXLSX    string
	previewHandles string
	previewRole    string
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Dry run: report what a migration would do without writing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sel := model.Selection{Mode: model.SelectAll}
		if previewHandles != "" || previewRole != "" {
			var err error
			if sel, err = buildSelection(ctx, false, previewHandles, "", previewRole); err != nil {
				return err
			}
		}

		env, err := initRun(ctx, "preview")
		if err != nil {
			return err
		}
		defer env.Close()

		rep, runErr := env.Controller.Run(ctx, reconcile.Options{DryRun: true, Selection: sel})
		if previewXLSX != "" && rep != nil {
			if err := report.ExportXLSX(rep, previewXLSX); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Review workbook: %s\n", previewXLSX)
		}
		return finishRun(ctx, cmd.OutOrStdout(), rep, runErr)
	},
}

func init() {
	previewCmd.Flags().StringVar(&previewXLSX, "xlsx", "", "also write a review workbook to this path")
	previewCmd.Flags().StringVar(&previewHandles, "handles", "", "limit the preview to these comma separated handles")
	previewCmd.Flags().StringVar(&previewRole, "role", "", "limit the preview to one canonical role")
	rootCmd.AddCommand(previewCmd)
}
