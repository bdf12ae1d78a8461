package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-dedupe/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate AlertType = "group_failure_rate"
	AlertFatal       AlertType = "run_fatal"
	AlertOrphans     AlertType = "orphan_count"
	AlertDrift       AlertType = "duplicate_drift"
)

// minAttempted is the number of attempted groups below which the failure
// rate is not evaluated.
const minAttempted = 5

// Alert is one alert to deliver.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	RunID     string         `json:"run_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates run snapshots against configured thresholds and posts
// alerts to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates an Alerter.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate returns the alerts snap triggers. Duplicate groups only alert on
// dry runs; after a commit they are expected to be gone.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.Fatal != "" {
		alerts = append(alerts, Alert{
			Type:      AlertFatal,
			Severity:  "critical",
			Message:   "Reconciliation run aborted: " + snap.Fatal,
			RunID:     snap.RunID,
			Details:   map[string]any{"succeeded_before_abort": snap.Succeeded},
			Timestamp: now,
		})
	}

	attempted := snap.Succeeded + snap.Failed
	if attempted >= minAttempted && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Group failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d attempted, %d transient)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100, snap.Failed, attempted, snap.Transient,
			),
			RunID: snap.RunID,
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.Failed,
				"transient":    snap.Transient,
			},
			Timestamp: now,
		})
	}

	if a.cfg.OrphanThreshold > 0 && snap.Orphans > a.cfg.OrphanThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertOrphans,
			Severity: "medium",
			Message: fmt.Sprintf("%d documents have no usable handle (threshold %d)",
				snap.Orphans, a.cfg.OrphanThreshold),
			RunID:     snap.RunID,
			Details:   map[string]any{"orphans": snap.Orphans, "threshold": a.cfg.OrphanThreshold},
			Timestamp: now,
		})
	}

	if snap.DryRun && snap.Duplicates > 0 {
		alerts = append(alerts, Alert{
			Type:      AlertDrift,
			Severity:  "medium",
			Message:   fmt.Sprintf("%d identity groups have duplicate documents again", snap.Duplicates),
			RunID:     snap.RunID,
			Details:   map[string]any{"duplicate_groups": snap.Duplicates, "groups": snap.Groups},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL and returns how
// many were accepted.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
