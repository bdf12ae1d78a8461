// Package keys finds profile documents in the store by the key naming schemes
// they were written under.
package keys

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-dedupe/internal/config"
	"github.com/sells-group/profile-dedupe/internal/kv"
	"github.com/sells-group/profile-dedupe/internal/model"
)

const idPlaceholder = "{id}"

// Template is a compiled key pattern.
type Template struct {
	config.KeyPattern
	Glob    string // scan glob, {id} replaced by *
	re      *regexp.Regexp
	literal int // count of literal characters, used to rank specificity
	order   int
}

// Compile parses a template such as "user:profile:{id}". The {id}
// placeholder matches one colon-free segment; * matches anything.
func Compile(p config.KeyPattern) (Template, error) {
	if p.Template == "" {
		return Template{}, eris.New("keys: empty template")
	}
	if strings.Count(p.Template, idPlaceholder) > 1 {
		return Template{}, eris.Errorf("keys: template %q has more than one {id}", p.Template)
	}

	var expr strings.Builder
	expr.WriteByte('^')
	literal := 0
	rest := p.Template
	for rest != "" {
		switch {
		case strings.HasPrefix(rest, idPlaceholder):
			expr.WriteString(`(?P<id>[^:]+)`)
			rest = rest[len(idPlaceholder):]
		case rest[0] == '*':
			expr.WriteString(`.*`)
			rest = rest[1:]
		default:
			next := strings.IndexAny(rest[1:], "*{")
			chunk := rest
			if next >= 0 {
				chunk = rest[:next+1]
			}
			expr.WriteString(regexp.QuoteMeta(chunk))
			literal += len(chunk)
			rest = rest[len(chunk):]
		}
	}
	expr.WriteByte('$')

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return Template{}, eris.Wrapf(err, "keys: compile template %q", p.Template)
	}

	return Template{
		KeyPattern: p,
		Glob:       strings.ReplaceAll(p.Template, idPlaceholder, "*"),
		re:         re,
		literal:    literal,
	}, nil
}

// Match returns the {id} capture when key fits the template.
func (t Template) Match(key string) (id string, ok bool) {
	m := t.re.FindStringSubmatch(key)
	if m == nil {
		return "", false
	}
	if i := t.re.SubexpIndex("id"); i > 0 {
		id = m[i]
	}
	return id, true
}

// Render substitutes id into the template.
func (t Template) Render(id string) string {
	return strings.Replace(t.Template, idPlaceholder, id, 1)
}

// Scanner enumerates profile keys.
type Scanner struct {
	store     kv.Store
	templates []Template
	canonical Template
	exclude   []*regexp.Regexp
	log       *zap.Logger
}

// NewScanner compiles cfg. The canonical template is scanned too even when
// cfg.Patterns does not list it.
func NewScanner(store kv.Store, cfg config.KeysConfig) (*Scanner, error) {
	canonical, err := Compile(config.KeyPattern{Template: cfg.Canonical})
	if err != nil {
		return nil, eris.Wrap(err, "keys: canonical template")
	}
	if !strings.Contains(cfg.Canonical, idPlaceholder) {
		return nil, eris.Errorf("keys: canonical template %q has no {id}", cfg.Canonical)
	}

	s := &Scanner{
		store:     store,
		canonical: canonical,
		log:       zap.L().With(zap.String("component", "key_scanner")),
	}

	hasCanonical := false
	for i, p := range cfg.Patterns {
		t, err := Compile(p)
		if err != nil {
			return nil, err
		}
		t.order = i
		if p.Template == cfg.Canonical {
			hasCanonical = true
		}
		s.templates = append(s.templates, t)
	}
	if !hasCanonical {
		canonical.order = len(s.templates)
		s.templates = append(s.templates, canonical)
	}

	for _, glob := range cfg.Exclude {
		re, err := kv.GlobRegexp(glob)
		if err != nil {
			return nil, eris.Wrap(err, "keys: exclude pattern")
		}
		s.exclude = append(s.exclude, re)
	}
	return s, nil
}

// Templates returns the compiled templates in configuration order.
func (s *Scanner) Templates() []Template { return s.templates }

// Scan returns every profile key in the store, attributed to its most
// specific template and sorted by key. Any store error is returned as is:
// a partial scan must not be trusted.
func (s *Scanner) Scan(ctx context.Context) ([]model.KeyRef, error) {
	return s.scan(ctx, s.templates)
}

// ScanCanonical returns only keys whose most specific template is the
// canonical one.
func (s *Scanner) ScanCanonical(ctx context.Context) ([]model.KeyRef, error) {
	refs, err := s.scan(ctx, []Template{s.canonical})
	if err != nil {
		return nil, err
	}
	out := refs[:0]
	for _, ref := range refs {
		if ref.Template == s.canonical.Template {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (s *Scanner) scan(ctx context.Context, templates []Template) ([]model.KeyRef, error) {
	globs := make(map[string]struct{})
	seen := make(map[string]struct{})
	var refs []model.KeyRef

	for _, t := range templates {
		if _, done := globs[t.Glob]; done {
			continue
		}
		globs[t.Glob] = struct{}{}

		found, err := s.store.Keys(ctx, t.Glob)
		if err != nil {
			return nil, eris.Wrapf(err, "keys: scan %s", t.Glob)
		}
		s.log.Debug("scanned pattern", zap.String("glob", t.Glob), zap.Int("keys", len(found)))

		for _, key := range found {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			ref, ok := s.Resolve(key)
			if !ok {
				continue
			}
			refs = append(refs, ref)
		}
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Key < refs[j].Key })
	return refs, nil
}

// Resolve attributes key to the most specific matching template. Excluded
// keys and keys matching no template are rejected.
func (s *Scanner) Resolve(key string) (model.KeyRef, bool) {
	for _, re := range s.exclude {
		if re.MatchString(key) {
			return model.KeyRef{}, false
		}
	}

	var best *Template
	var bestID string
	for i := range s.templates {
		t := &s.templates[i]
		id, ok := t.Match(key)
		if !ok {
			continue
		}
		if best == nil || t.literal > best.literal || (t.literal == best.literal && t.order < best.order) {
			best, bestID = t, id
		}
	}
	if best == nil {
		return model.KeyRef{}, false
	}

	return model.KeyRef{
		Key:       key,
		Template:  best.Template,
		ID:        bestID,
		Legacy:    best.Legacy,
		Preferred: best.Preferred,
	}, true
}

// CanonicalKey renders the canonical key for a profile id.
func (s *Scanner) CanonicalKey(id string) string {
	return s.canonical.Render(id)
}

// IsCanonical reports whether ref is already at its canonical location.
func (s *Scanner) IsCanonical(ref model.KeyRef) bool {
	return ref.Template == s.canonical.Template
}
