package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-dedupe/internal/config"
	"github.com/sells-group/profile-dedupe/internal/identity"
	"github.com/sells-group/profile-dedupe/internal/index"
	"github.com/sells-group/profile-dedupe/internal/keys"
	"github.com/sells-group/profile-dedupe/internal/kv"
	"github.com/sells-group/profile-dedupe/internal/loader"
	"github.com/sells-group/profile-dedupe/internal/merge"
	"github.com/sells-group/profile-dedupe/internal/model"
	"github.com/sells-group/profile-dedupe/internal/resilience"
	"github.com/sells-group/profile-dedupe/internal/scorer"
)

// Controller runs the scan, group, score, merge, commit and index stages in
// order, one group at a time.
type Controller struct {
	store     kv.Store
	scanner   *keys.Scanner
	loader    *loader.Loader
	grouper   *identity.Grouper
	scorer    *scorer.Scorer
	merger    *merge.Engine
	indexer   *index.Rebuilder
	breaker   *resilience.CircuitBreaker
	backupDir string
	// openBackup opens the run's backup artifact.
	openBackup func(dir, runID string, now func() time.Time) (backupLog, error)
	phrase     string
	now        func() time.Time
	newRunID   func() string
	log        *zap.Logger
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces time.Now for scoring, stamping and artifact names.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithRunID replaces the run id generator.
func WithRunID(fn func() string) Option {
	return func(c *Controller) { c.newRunID = fn }
}

// New wires a Controller for store from cfg.
func New(store kv.Store, cfg *config.Config, opts ...Option) (*Controller, error) {
	if err := scorer.ValidateConfig(cfg.Scoring); err != nil {
		return nil, err
	}
	scanner, err := keys.NewScanner(store, cfg.Keys)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		store:      store,
		scanner:    scanner,
		loader:     loader.New(store, cfg.Run.ReadConcurrency),
		grouper:    identity.NewGrouper(cfg.Identity.HandleFields),
		breaker:    resilience.NewCircuitBreaker(resilience.CircuitFromConfig(cfg.Store.Circuit)),
		backupDir:  cfg.Run.BackupDir,
		openBackup: openRecorder,
		phrase:     cfg.Run.ConfirmPhrase,
		now:        time.Now,
		newRunID:   func() string { return uuid.NewString()[:8] },
		log:        zap.L().With(zap.String("component", "reconcile")),
	}
	for _, o := range opts {
		o(c)
	}
	c.scorer = scorer.New(cfg.Scoring, c.now)
	c.merger = merge.NewEngine(scanner, c.now)
	c.indexer = index.New(store, scanner, cfg.Keys.IndexPrefix)
	return c, nil
}

// Indexer exposes the index rebuilder for standalone rebuilds.
func (c *Controller) Indexer() *index.Rebuilder { return c.indexer }

// Run executes one run. The dry outcome is always computed first; a commit
// follows only when opts.DryRun is false and the Confirmer, if any, agrees.
// The returned report is never nil. The error is a *FatalError, ErrCancelled
// or nil; group failures are only recorded in the report.
func (c *Controller) Run(ctx context.Context, opts Options) (*model.Report, error) {
	if opts.Progress == nil {
		opts.Progress = nopProgress{}
	}
	if opts.Selection.Mode == "" {
		opts.Selection.Mode = model.SelectAll
	}

	rc := &RunContext{
		RunID:   c.newRunID(),
		Started: c.now(),
		Report: &model.Report{
			DryRun:    true,
			Selection: opts.Selection,
			Results: model.Results{
				Success: []model.GroupResult{},
				Failed:  []model.GroupFailure{},
				Skipped: []model.SkippedGroup{},
			},
			Orphans:   []model.Orphan{},
			Malformed: []model.MalformedKey{},
			Backups:   map[string][]model.BackupEntry{},
		},
	}
	rc.Report.RunID = rc.RunID
	rc.Report.Timestamp = rc.Started.UTC()
	log := c.log.With(zap.String("run_id", rc.RunID))

	rc.transition(model.RunStateScanning)
	refs, err := c.scanner.Scan(ctx)
	if err != nil {
		return c.abort(rc, &FatalError{Stage: "scan", Err: err})
	}
	rc.Refs = refs
	log.Info("reconcile: scan complete", zap.Int("keys", len(refs)))

	rc.Grouping = c.grouper.Group(c.loader.LoadAll(ctx, refs))
	rc.transition(model.RunStateGrouped)

	c.plan(ctx, rc)
	c.selectGroups(rc, opts.Selection)
	c.recordDry(rc)
	rc.transition(model.RunStateDryMerged)

	todo := rc.actionable()
	log.Info("reconcile: dry run complete",
		zap.Int("groups", len(rc.Grouping.Groups)),
		zap.Int("selected", len(rc.selected)),
		zap.Int("actionable", len(todo)),
	)

	if opts.DryRun {
		profiles := make([]model.CanonicalProfile, 0, len(rc.selected))
		for _, p := range rc.selected {
			if !p.failed() {
				profiles = append(profiles, p.result.Profile)
			}
		}
		_, stats := c.indexer.Plan(profiles)
		rc.Report.Index = &stats
		return c.finish(rc), nil
	}

	if opts.Review != nil && len(todo) > 0 {
		opts.Review(c.planReport(rc))
	}
	if opts.Confirmer != nil && len(todo) > 0 {
		rc.transition(model.RunStateConfirm)
		ok, err := opts.Confirmer.Confirm(ctx, c.prompt(todo), c.phrase)
		if err != nil || !ok {
			if err != nil {
				log.Warn("reconcile: confirmation failed", zap.Error(err))
			}
			rc.Report.Cancelled = true
			log.Info("reconcile: commit cancelled")
			return c.finish(rc), ErrCancelled
		}
	}

	rc.Report.DryRun = false
	committed, fatal := c.commit(ctx, rc, todo, opts.Progress)

	if fatal == nil || committed > 0 {
		rc.transition(model.RunStateIndexing)
		stats, err := c.indexer.Rebuild(ctx)
		rc.Report.Index = &stats
		if err != nil && fatal == nil {
			fatal = &FatalError{Stage: "index", Err: err}
		}
	}
	if fatal != nil {
		return c.abort(rc, fatal)
	}
	return c.finish(rc), nil
}

func (c *Controller) prompt(todo []*plan) string {
	merges, migrates := 0, 0
	for _, p := range todo {
		if p.result.Action == model.GroupActionMerge {
			merges++
		} else {
			migrates++
		}
	}
	return fmt.Sprintf("About to commit %d group(s): %d merge(s), %d migration(s). Source keys will be deleted after backup.",
		len(todo), merges, migrates)
}

// plan scores and merges every group and checks canonical key ownership.
func (c *Controller) plan(ctx context.Context, rc *RunContext) {
	claimed := make(map[string]string)

	for _, g := range rc.Grouping.Groups {
		p := &plan{group: c.scorer.Rank(g)}
		rc.plans = append(rc.plans, p)

		res, err := c.merger.Merge(p.group)
		if err != nil {
			p.stage, p.err = model.StageMerge, err
			var verr *merge.ValidationError
			if errors.As(err, &verr) {
				p.stage = model.StageValidate
			}
			continue
		}
		p.result = res

		key := res.Profile.Key
		if other, taken := claimed[key]; taken {
			p.stage = model.StageMerge
			p.err = eris.Errorf("reconcile: canonical key %s is already claimed by %q", key, other)
			continue
		}
		claimed[key] = g.NormalizedHandle

		if !slices.Contains(p.group.Keys(), key) {
			_, err := c.store.Get(ctx, key)
			switch {
			case errors.Is(err, kv.ErrNotFound):
			case err == nil, errors.Is(err, kv.ErrWrongType):
				p.stage = model.StageMerge
				p.err = eris.Errorf("reconcile: canonical key %s holds a record outside this identity", key)
			default:
				p.stage = model.StageLoad
				p.err = eris.Wrapf(err, "reconcile: probe canonical key %s", key)
			}
		}
	}
}

// selectGroups narrows the plans to the requested selection. Requested
// handles with no documents are reported as skipped.
func (c *Controller) selectGroups(rc *RunContext, sel model.Selection) {
	switch sel.Mode {
	case model.SelectHandles:
		byHandle := make(map[string]*plan, len(rc.plans))
		for _, p := range rc.plans {
			byHandle[p.group.NormalizedHandle] = p
		}
		seen := make(map[string]bool)
		for _, raw := range sel.Handles {
			h := identity.Normalize(raw)
			if h == "" || seen[h] {
				continue
			}
			seen[h] = true
			if p, ok := byHandle[h]; ok {
				rc.selected = append(rc.selected, p)
				continue
			}
			rc.Report.Results.Skipped = append(rc.Report.Results.Skipped,
				model.SkippedGroup{Handle: h, Reason: "no documents found for handle"})
		}
	case model.SelectRole:
		role := model.NormalizeRole(sel.Role)
		for _, p := range rc.plans {
			if planRole(p) == role {
				rc.selected = append(rc.selected, p)
			}
		}
	default:
		rc.selected = rc.plans
	}
}

// planRole is the canonical role of a merged group, or the best role among
// its candidates when the merge failed.
func planRole(p *plan) string {
	if !p.failed() {
		return model.NormalizeRole(p.result.Profile.Fields["role"])
	}
	best := ""
	for _, cand := range p.group.Candidates {
		r := model.NormalizeRole(cand.RawFields["role"])
		if model.RoleRank(r) > model.RoleRank(best) {
			best = r
		}
	}
	return best
}

// recordDry fills the report with what a commit would do.
func (c *Controller) recordDry(rc *RunContext) {
	g := rc.Grouping
	rc.Report.Orphans = append(rc.Report.Orphans, g.Orphans...)
	rc.Report.Malformed = append(rc.Report.Malformed, g.Malformed...)

	for _, p := range rc.selected {
		switch {
		case p.failed():
			rc.Report.Results.Failed = append(rc.Report.Results.Failed, failure(p, p.stage, p.err))
		case p.result.Action == model.GroupActionNoop:
			rc.Report.Summary.Noop++
		default:
			rc.Report.Results.Success = append(rc.Report.Results.Success, groupResult(p))
		}
	}
}

func groupResult(p *plan) model.GroupResult {
	r := p.result
	scores := make([]model.CandidateScore, 0, len(p.group.Candidates))
	for _, cand := range p.group.Candidates {
		scores = append(scores, model.CandidateScore{Key: cand.Key, Score: cand.Score, Breakdown: cand.Breakdown})
	}
	logEntries := r.Log
	if logEntries == nil {
		logEntries = model.MergeLog{}
	}
	return model.GroupResult{
		Handle:       p.group.NormalizedHandle,
		Action:       r.Action,
		CanonicalKey: r.Profile.Key,
		CanonicalID:  r.Profile.ID,
		PrimaryKey:   p.group.Candidates[0].Key,
		SourceKeys:   p.group.Keys(),
		DeletedKeys:  r.Superseded,
		Scores:       scores,
		MergeLog:     logEntries,
		Canonical:    r.Profile.Fields,
	}
}

func failure(p *plan, stage string, err error) model.GroupFailure {
	return model.GroupFailure{
		Handle:    p.group.NormalizedHandle,
		Stage:     stage,
		Reason:    err.Error(),
		ErrorType: resilience.ClassifyError(err),
		Keys:      p.group.Keys(),
	}
}

// abort records a fatal error and closes the report.
func (c *Controller) abort(rc *RunContext, fatal *FatalError) (*model.Report, error) {
	rc.Report.Fatal = fatal.Error()
	c.log.Error("reconcile: run aborted", zap.String("run_id", rc.RunID), zap.String("stage", fatal.Stage), zap.Error(fatal.Err))
	return c.finish(rc), fatal
}

// planReport is a copy of the dry report as it stands before any commit.
func (c *Controller) planReport(rc *RunContext) *model.Report {
	r := *rc.Report
	r.Results = model.Results{
		Success: slices.Clone(rc.Report.Results.Success),
		Failed:  slices.Clone(rc.Report.Results.Failed),
		Skipped: slices.Clone(rc.Report.Results.Skipped),
	}
	r.Backups = map[string][]model.BackupEntry{}
	c.summarize(rc, &r)
	r.DurationMs = c.now().Sub(rc.Started).Milliseconds()
	return &r
}

// finish fills the summary and moves the run to its terminal state.
func (c *Controller) finish(rc *RunContext) *model.Report {
	r := rc.Report
	c.summarize(rc, r)

	r.DurationMs = c.now().Sub(rc.Started).Milliseconds()
	rc.transition(model.RunStateReported)

	c.log.Info("reconcile: run reported",
		zap.String("run_id", rc.RunID),
		zap.Bool("dry_run", r.DryRun),
		zap.Int("succeeded", r.Summary.Succeeded),
		zap.Int("failed", r.Summary.Failed),
		zap.Int("orphans", r.Summary.Orphans),
	)
	return r
}

func (c *Controller) summarize(rc *RunContext, r *model.Report) {
	s := &r.Summary
	s.KeysScanned = len(rc.Refs)
	s.Documents = rc.Grouping.Documents
	s.Absent = rc.Grouping.Absent
	s.Malformed = len(rc.Grouping.Malformed) - rc.Grouping.Absent
	s.Orphans = len(rc.Grouping.Orphans)
	s.Groups = len(rc.Grouping.Groups)
	for _, g := range rc.Grouping.Groups {
		if len(g.Candidates) > 1 {
			s.Duplicates++
		}
	}
	s.Selected = len(rc.selected)
	s.Succeeded = len(r.Results.Success)
	s.Failed = len(r.Results.Failed)
	s.Skipped = len(r.Results.Skipped)
}
