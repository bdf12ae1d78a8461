package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/profile-dedupe/internal/config"
)

var (
	cfg          *config.Config
	patternsFile string
	metricsFile  string
)

var rootCmd = &cobra.Command{
	Use:   "profile-dedupe",
	Short: "Deduplicate and reconcile user profiles in a key-value store",
	Long: "Scans every key naming scheme profiles were written under, groups documents by normalized handle, " +
		"merges each identity into one canonical profile behind a verified backup, and rebuilds the secondary indexes.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if patternsFile != "" {
			if err := config.LoadPatternsFile(patternsFile, &c.Keys); err != nil {
				return err
			}
		}
		if metricsFile != "" {
			c.Monitoring.MetricsFile = metricsFile
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&patternsFile, "patterns-file", "", "YAML file overriding keys.canonical, keys.patterns and keys.exclude")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write run metrics to this node_exporter textfile")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
