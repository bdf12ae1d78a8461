package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sells-group/profile-dedupe/internal/kv"
	"github.com/sells-group/profile-dedupe/internal/model"
	"github.com/sells-group/profile-dedupe/internal/monitoring"
	"github.com/sells-group/profile-dedupe/internal/reconcile"
	"github.com/sells-group/profile-dedupe/internal/report"
)

// runEnv holds what every reconciling command needs.
type runEnv struct {
	Store      kv.Store
	Controller *reconcile.Controller
}

func (e *runEnv) Close() {
	if e.Store != nil {
		e.Store.Close() //nolint:errcheck
	}
}

// initRun validates the config for mode, opens the store and wires a
// controller.
func initRun(ctx context.Context, mode string) (*runEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	ctrl, err := reconcile.New(store, cfg)
	if err != nil {
		store.Close() //nolint:errcheck
		return nil, err
	}
	return &runEnv{Store: store, Controller: ctrl}, nil
}

// finishRun persists and publishes a report: JSON artifact, printed summary,
// optional metrics textfile and webhook alerts. runErr is the error the run
// returned; a cancelled commit is not an error.
func finishRun(ctx context.Context, out io.Writer, rep *model.Report, runErr error) error {
	path, err := report.Write(cfg.Run.OutputDir, rep)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, report.FormatSummary(rep))
	fmt.Fprintf(out, "Report: %s\n", path)

	snap := monitoring.Collect(rep)
	if cfg.Monitoring.MetricsFile != "" {
		reg := prometheus.NewRegistry()
		m, err := monitoring.NewMetrics(reg)
		if err != nil {
			return err
		}
		m.Observe(snap, rep.Cancelled)
		if err := monitoring.WriteTextfile(cfg.Monitoring.MetricsFile, reg); err != nil {
			zap.L().Warn("metrics textfile not written", zap.Error(err))
		}
	}
	if cfg.Monitoring.WebhookURL != "" {
		a := monitoring.NewAlerter(cfg.Monitoring)
		a.SendAlerts(ctx, a.Evaluate(snap))
	}

	if errors.Is(runErr, reconcile.ErrCancelled) {
		return nil
	}
	return runErr
}

// reviewPlan prints every planned group and saves the plan as a dry report
// before the operator is asked to confirm a commit.
func reviewPlan(out io.Writer) func(*model.Report) {
	return func(plan *model.Report) {
		fmt.Fprintln(out, report.FormatSummary(plan))
		path, err := report.Write(cfg.Run.OutputDir, plan)
		if err != nil {
			zap.L().Warn("plan report not written", zap.Error(err))
			return
		}
		fmt.Fprintf(out, "Plan: %s\n", path)
	}
}
