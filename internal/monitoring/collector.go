// Package monitoring turns run reports into metrics and alerts.
package monitoring

import (
	"time"

	"github.com/sells-group/profile-dedupe/internal/model"
)

// Snapshot is the health view of one run.
type Snapshot struct {
	RunID      string  `json:"run_id"`
	DryRun     bool    `json:"dry_run"`
	Selected   int     `json:"selected"`
	Succeeded  int     `json:"succeeded"`
	Failed     int     `json:"failed"`
	Skipped    int     `json:"skipped"`
	Transient  int     `json:"transient"`
	FailRate   float64 `json:"fail_rate"`
	Groups     int     `json:"groups"`
	Duplicates int     `json:"duplicates"`
	Orphans    int     `json:"orphans"`
	Malformed  int     `json:"malformed"`
	Noop       int     `json:"noop"`
	Fatal      string  `json:"fatal,omitempty"`

	IndexEntries int `json:"index_entries"`
	IndexFailed  int `json:"index_failed"`

	Duration    time.Duration `json:"duration"`
	CollectedAt time.Time     `json:"collected_at"`
}

// Collect summarizes r.
func Collect(r *model.Report) *Snapshot {
	s := r.Summary
	snap := &Snapshot{
		RunID:       r.RunID,
		DryRun:      r.DryRun,
		Selected:    s.Selected,
		Succeeded:   s.Succeeded,
		Failed:      s.Failed,
		Skipped:     s.Skipped,
		Groups:      s.Groups,
		Duplicates:  s.Duplicates,
		Orphans:     s.Orphans,
		Malformed:   s.Malformed,
		Noop:        s.Noop,
		Fatal:       r.Fatal,
		Duration:    time.Duration(r.DurationMs) * time.Millisecond,
		CollectedAt: time.Now().UTC(),
	}
	for _, f := range r.Results.Failed {
		if f.ErrorType == "transient" {
			snap.Transient++
		}
	}
	if attempted := snap.Succeeded + snap.Failed; attempted > 0 {
		snap.FailRate = float64(snap.Failed) / float64(attempted)
	}
	if r.Index != nil {
		snap.IndexEntries = r.Index.Entries
		snap.IndexFailed = r.Index.Failed
	}
	return snap
}
