// Package reconcile drives a deduplication run from key scan to final report.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-dedupe/internal/backup"
	"github.com/sells-group/profile-dedupe/internal/identity"
	"github.com/sells-group/profile-dedupe/internal/merge"
	"github.com/sells-group/profile-dedupe/internal/model"
)

// ErrCancelled is returned when the operator declines the commit.
var ErrCancelled = eris.New("reconcile: commit cancelled by operator")

// FatalError aborts a whole run. Scan failures and unreadable backups are
// fatal; everything else is isolated to its group.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("reconcile: fatal during %s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Confirmer gates the commit. It reports whether the operator typed phrase.
type Confirmer interface {
	Confirm(ctx context.Context, prompt, phrase string) (bool, error)
}

// Progress receives per-group commit progress.
type Progress interface {
	Start(total int)
	Increment()
	Finish()
}

type nopProgress struct{}

func (nopProgress) Start(int)  {}
func (nopProgress) Increment() {}
func (nopProgress) Finish()    {}

// Options configure one run.
type Options struct {
	DryRun    bool
	Selection model.Selection
	// Confirmer is asked before committing. Nil commits without asking; the
	// caller is responsible for having obtained consent.
	Confirmer Confirmer
	// Review receives the dry report of a commit run before the Confirmer is
	// asked, so the operator sees every planned group first.
	Review   func(plan *model.Report)
	Progress Progress
}

// backupLog is the part of *backup.Recorder a commit writes through.
type backupLog interface {
	Append(handle, canonicalKey string, cands []model.CandidateRecord) (backup.Receipt, error)
	Verify(rc backup.Receipt) error
	Path() string
	Close() error
}

func openRecorder(dir, runID string, now func() time.Time) (backupLog, error) {
	rec, err := backup.Open(dir, runID, now)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// plan is the dry outcome for one identity group.
type plan struct {
	group  model.IdentityGroup // scored, best first
	result merge.Result
	stage  string
	err    error
}

func (p *plan) failed() bool { return p.err != nil }

// RunContext carries everything one run produces from stage to stage.
type RunContext struct {
	RunID    string
	Started  time.Time
	State    model.RunState
	Refs     []model.KeyRef
	Grouping identity.Result
	Report   *model.Report

	plans    []*plan
	selected []*plan
	recorder backupLog
}

func (rc *RunContext) transition(s model.RunState) {
	rc.State = s
	rc.Report.State = s
}

// actionable returns the selected plans a commit would write.
func (rc *RunContext) actionable() []*plan {
	var out []*plan
	for _, p := range rc.selected {
		if !p.failed() && p.result.Action != model.GroupActionNoop {
			out = append(out, p)
		}
	}
	return out
}
