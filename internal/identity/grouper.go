package identity

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/profile-dedupe/internal/model"
)

// DefaultHandleFields are the document fields that have held a handle over
// the life of the store.
var DefaultHandleFields = []string{"handle", "twitterHandle", "xHandle", "username"}

// Grouper buckets documents by normalized handle.
type Grouper struct {
	handleFields []string
	log          *zap.Logger
}

// Result is the outcome of grouping one scan.
type Result struct {
	Groups    []model.IdentityGroup // sorted by handle
	Orphans   []model.Orphan
	Malformed []model.MalformedKey
	Documents int // valid documents
	Absent    int
}

// NewGrouper looks handles up in fields, first non-empty wins.
func NewGrouper(fields []string) *Grouper {
	if len(fields) == 0 {
		fields = DefaultHandleFields
	}
	return &Grouper{
		handleFields: fields,
		log:          zap.L().With(zap.String("component", "identity_grouper")),
	}
}

// Handle returns the raw handle of a document and the field it came from.
func (g *Grouper) Handle(fields map[string]any) (handle, field string) {
	for _, f := range g.handleFields {
		s, ok := model.AsString(fields[f])
		if ok && !model.IsEmpty(s) {
			return s, f
		}
	}
	return "", ""
}

// Group sorts documents into identity groups. Documents without a usable
// handle become orphans; malformed and absent documents are reported, never
// grouped.
func (g *Grouper) Group(docs []model.Document) Result {
	var res Result
	byHandle := make(map[string]*model.IdentityGroup)

	for _, doc := range docs {
		switch d := doc.(type) {
		case model.ValidDocument:
			res.Documents++
			raw, _ := g.Handle(d.Fields)
			if raw == "" {
				res.Orphans = append(res.Orphans, model.Orphan{Key: d.Ref.Key, Reason: "no handle field"})
				g.log.Warn("orphan document", zap.String("key", d.Ref.Key), zap.String("reason", "no handle field"))
				continue
			}
			handle := Normalize(raw)
			if handle == "" {
				res.Orphans = append(res.Orphans, model.Orphan{Key: d.Ref.Key, Reason: "handle empty after normalization"})
				g.log.Warn("orphan document", zap.String("key", d.Ref.Key), zap.String("raw_handle", raw))
				continue
			}

			grp, ok := byHandle[handle]
			if !ok {
				grp = &model.IdentityGroup{NormalizedHandle: handle}
				byHandle[handle] = grp
			}
			grp.Candidates = append(grp.Candidates, model.CandidateRecord{
				Key:       d.Ref.Key,
				Ref:       d.Ref,
				Raw:       d.Raw,
				RawFields: d.Fields,
			})

		case model.MalformedDocument:
			res.Malformed = append(res.Malformed, model.MalformedKey{Key: d.Ref.Key, Reason: d.Reason})

		case model.AbsentDocument:
			res.Absent++
			res.Malformed = append(res.Malformed, model.MalformedKey{Key: d.Ref.Key, Reason: "key disappeared after scan", Absent: true})
		}
	}

	res.Groups = make([]model.IdentityGroup, 0, len(byHandle))
	for _, grp := range byHandle {
		sort.Slice(grp.Candidates, func(i, j int) bool { return grp.Candidates[i].Key < grp.Candidates[j].Key })
		res.Groups = append(res.Groups, *grp)
	}
	sort.Slice(res.Groups, func(i, j int) bool {
		return res.Groups[i].NormalizedHandle < res.Groups[j].NormalizedHandle
	})

	g.log.Info("grouped documents",
		zap.Int("groups", len(res.Groups)),
		zap.Int("orphans", len(res.Orphans)),
		zap.Int("malformed", len(res.Malformed)),
	)
	return res
}
