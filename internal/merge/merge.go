package merge

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-dedupe/internal/model"
)

// KeyRenderer renders the canonical store key of a profile id.
type KeyRenderer interface {
	CanonicalKey(id string) string
}

// ValidationError reports a merged profile that must not be written.
type ValidationError struct {
	Handle   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("merge: invalid canonical profile for %q: %s", e.Handle, strings.Join(e.Problems, "; "))
}

// Result is the outcome of merging one identity group.
type Result struct {
	Profile model.CanonicalProfile
	Log     model.MergeLog
	Action  model.GroupAction
	// Superseded lists the group keys other than the canonical key. They are
	// deleted once the canonical profile is durable.
	Superseded []string
}

// Engine merges identity groups.
type Engine struct {
	keys  KeyRenderer
	now   func() time.Time
	newID func() string
	log   *zap.Logger
}

// NewEngine returns an Engine. now stamps missing dates; nil means time.Now.
func NewEngine(keys KeyRenderer, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		keys:  keys,
		now:   now,
		newID: uuid.NewString,
		log:   zap.L().With(zap.String("component", "merge_engine")),
	}
}

// Merge folds a scored group into one canonical profile. Candidates must be
// ordered best first; the first is the primary and every other candidate is
// applied to it in order.
func (e *Engine) Merge(g model.IdentityGroup) (Result, error) {
	if len(g.Candidates) == 0 {
		return Result{}, eris.Errorf("merge: group %q has no candidates", g.NormalizedHandle)
	}

	primary := g.Candidates[0]
	m := &merger{
		acc:    model.CloneFields(primary.RawFields),
		origin: make(map[string]string, len(primary.RawFields)),
	}
	for f := range m.acc {
		m.origin[f] = primary.Key
	}

	for _, src := range g.Candidates[1:] {
		for _, f := range sortedKeys(src.RawFields) {
			m.apply(f, src.Key, src.RawFields[f])
		}
	}

	id, idSource := e.resolveID(g)
	m.finish(g.NormalizedHandle, id, idSource, primary.Key, e.now())

	if err := validate(g.NormalizedHandle, m.acc); err != nil {
		return Result{}, err
	}

	key := e.keys.CanonicalKey(id)
	res := Result{
		Profile: model.CanonicalProfile{
			ID:               id,
			NormalizedHandle: g.NormalizedHandle,
			Key:              key,
			Fields:           m.acc,
		},
		Log: m.log,
	}
	res.Profile.CreatedAt, _ = model.ParseTime(m.acc["createdAt"])
	res.Profile.UpdatedAt, _ = model.ParseTime(m.acc["updatedAt"])

	for _, c := range g.Candidates {
		if c.Key != key {
			res.Superseded = append(res.Superseded, c.Key)
		}
	}

	switch {
	case len(g.Candidates) > 1:
		res.Action = model.GroupActionMerge
	case primary.Key == key && equal(m.acc, primary.RawFields):
		res.Action = model.GroupActionNoop
	default:
		res.Action = model.GroupActionMigrate
	}

	e.log.Debug("merged group",
		zap.String("handle", g.NormalizedHandle),
		zap.String("canonical_key", key),
		zap.String("action", string(res.Action)),
		zap.Int("log_entries", len(res.Log)),
	)
	return res, nil
}

// resolveID picks the canonical id: the primary's id field, then the first
// source id field, then the id captured from the primary key, else a new
// UUID. Ids that cannot be rendered into a key are passed over.
func (e *Engine) resolveID(g model.IdentityGroup) (id, source string) {
	for _, c := range g.Candidates {
		if s, ok := model.AsString(c.RawFields["id"]); ok && usableID(s) {
			return strings.TrimSpace(s), c.Key
		}
	}
	for _, c := range g.Candidates {
		if usableID(c.Ref.ID) {
			return c.Ref.ID, c.Key
		}
	}
	return e.newID(), ""
}

func usableID(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && !strings.ContainsAny(s, ": \t\r\n*?[]")
}

func validate(handle string, fields map[string]any) error {
	var problems []string
	if s, _ := model.AsString(fields["id"]); s == "" {
		problems = append(problems, "id is empty")
	}
	if s, _ := model.AsString(fields["handle"]); s == "" {
		problems = append(problems, "handle is empty")
	} else if s != handle {
		problems = append(problems, fmt.Sprintf("handle %q is not the normalized form", s))
	}
	if role := model.NormalizeRole(fields["role"]); !model.KnownRole(role) {
		problems = append(problems, fmt.Sprintf("unknown role %q", role))
	}
	if status := model.NormalizeRole(fields["approvalStatus"]); !model.KnownStatus(status) {
		problems = append(problems, fmt.Sprintf("unknown approvalStatus %q", status))
	}
	if len(problems) > 0 {
		return &ValidationError{Handle: handle, Problems: problems}
	}
	return nil
}
