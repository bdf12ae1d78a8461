package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/google/go-cmp/cmp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-dedupe/internal/model"
)

// stageError is a group-level failure at one commit stage.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// commit writes every actionable group in order. Group failures are recorded
// and the loop moves on; a fatal error stops it and the remaining groups are
// reported as skipped.
func (c *Controller) commit(ctx context.Context, rc *RunContext, todo []*plan, progress Progress) (int, *FatalError) {
	rc.transition(model.RunStateCommitting)
	rc.Report.Results.Success = []model.GroupResult{}
	if len(todo) == 0 {
		return 0, nil
	}

	rec, err := c.openBackup(c.backupDir, rc.RunID, c.now)
	if err != nil {
		return 0, &FatalError{Stage: model.StageBackup, Err: err}
	}
	rc.recorder = rec
	defer rec.Close() //nolint:errcheck
	rc.Report.BackupFile = rec.Path()

	progress.Start(len(todo))
	defer progress.Finish()

	committed := 0
	for i, p := range todo {
		res, err := c.commitGroup(ctx, rc, p)
		progress.Increment()

		var fatal *FatalError
		if errors.As(err, &fatal) {
			rc.Report.Results.Failed = append(rc.Report.Results.Failed, failure(p, fatal.Stage, fatal.Err))
			for _, rest := range todo[i+1:] {
				rc.Report.Results.Skipped = append(rc.Report.Results.Skipped, model.SkippedGroup{
					Handle: rest.group.NormalizedHandle,
					Reason: "run aborted before commit: " + fatal.Error(),
				})
			}
			return committed, fatal
		}

		var se *stageError
		if errors.As(err, &se) {
			rc.Report.Results.Failed = append(rc.Report.Results.Failed, failure(p, se.stage, se.err))
			c.log.Error("reconcile: group commit failed",
				zap.String("handle", p.group.NormalizedHandle),
				zap.String("stage", se.stage),
				zap.Error(se.err),
			)
			continue
		}

		rc.Report.Results.Success = append(rc.Report.Results.Success, res)
		committed++
	}
	return committed, nil
}

// commitGroup runs backup, verify, write, read-back and delete for one group.
func (c *Controller) commitGroup(ctx context.Context, rc *RunContext, p *plan) (model.GroupResult, error) {
	handle := p.group.NormalizedHandle
	profile := p.result.Profile
	gr := groupResult(p)
	gr.DeletedKeys = nil

	receipt, err := rc.recorder.Append(handle, profile.Key, p.group.Candidates)
	if err != nil {
		return gr, &stageError{stage: model.StageBackup, err: err}
	}
	rc.Report.Backups[handle] = receipt.Entries
	if err := rc.recorder.Verify(receipt); err != nil {
		return gr, &FatalError{Stage: model.StageBackup, Err: err}
	}

	body, err := json.Marshal(profile.Fields)
	if err != nil {
		return gr, &stageError{stage: model.StageMerge, err: eris.Wrap(err, "reconcile: encode canonical profile")}
	}

	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.store.Set(ctx, profile.Key, body)
	})
	if err != nil {
		return gr, &stageError{stage: model.StageWrite, err: eris.Wrapf(err, "reconcile: write %s", profile.Key)}
	}

	stored, err := c.store.Get(ctx, profile.Key)
	if err != nil {
		return gr, &stageError{stage: model.StageReadBack, err: eris.Wrapf(err, "reconcile: read back %s", profile.Key)}
	}
	if !sameDocument(stored, body) {
		return gr, &stageError{stage: model.StageReadBack, err: eris.Errorf("reconcile: %s differs after write", profile.Key)}
	}

	if len(p.result.Superseded) > 0 {
		var deleted int
		err = c.breaker.Execute(ctx, func(ctx context.Context) error {
			n, derr := c.store.Delete(ctx, p.result.Superseded...)
			deleted = n
			return derr
		})
		if err != nil {
			return gr, &stageError{stage: model.StageDelete, err: eris.Wrap(err, "reconcile: delete superseded keys")}
		}
		if deleted != len(p.result.Superseded) {
			c.log.Warn("reconcile: fewer keys deleted than expected",
				zap.String("handle", handle),
				zap.Int("expected", len(p.result.Superseded)),
				zap.Int("deleted", deleted),
			)
		}
		gr.DeletedKeys = p.result.Superseded
	}

	c.log.Info("reconcile: group committed",
		zap.String("handle", handle),
		zap.String("action", string(p.result.Action)),
		zap.String("canonical_key", profile.Key),
		zap.Int("deleted", len(gr.DeletedKeys)),
	)
	return gr, nil
}

// sameDocument compares a stored document with what was written. Stores may
// re-encode, so byte equality falls back to a decoded comparison.
func sameDocument(stored, written []byte) bool {
	if bytes.Equal(stored, written) {
		return true
	}
	a, errA := model.DecodeObject(stored)
	b, errB := model.DecodeObject(written)
	return errA == nil && errB == nil && cmp.Equal(a, b)
}
