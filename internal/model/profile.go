package model

import "time"

// ScoreBreakdown records how each signal contributed to a candidate's score.
type ScoreBreakdown struct {
	PreferredKey float64 `json:"preferredKey"`
	Approved     float64 `json:"approved"`
	Role         float64 `json:"role"`
	Fields       float64 `json:"fields"`
	Age          float64 `json:"age"`
}

// Total sums the breakdown.
func (b ScoreBreakdown) Total() float64 {
	return b.PreferredKey + b.Approved + b.Role + b.Fields + b.Age
}

// CandidateRecord is one loaded document competing to become the primary of
// its identity group. RawFields must not be mutated once loaded.
type CandidateRecord struct {
	Key       string         `json:"key"`
	Ref       KeyRef         `json:"-"`
	Raw       []byte         `json:"-"`
	RawFields map[string]any `json:"rawFields"`
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// IdentityGroup is every document sharing one normalized handle. Candidates
// are ordered by score, best first, once scored.
type IdentityGroup struct {
	NormalizedHandle string            `json:"normalizedHandle"`
	Candidates       []CandidateRecord `json:"candidates"`
}

// Keys returns the store keys of the group's candidates in candidate order.
func (g IdentityGroup) Keys() []string {
	keys := make([]string, 0, len(g.Candidates))
	for _, c := range g.Candidates {
		keys = append(keys, c.Key)
	}
	return keys
}

// Orphan is a document that could not be attributed to an identity.
type Orphan struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// CanonicalProfile is the single merged record for an identity.
type CanonicalProfile struct {
	ID               string         `json:"id"`
	NormalizedHandle string         `json:"normalizedHandle"`
	Key              string         `json:"key"`
	Fields           map[string]any `json:"fields"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// MergeLog is the provenance trail of one merge, in the order decisions were
// made.
type MergeLog []string

// IndexEntry is one secondary index key and the canonical ids it holds.
type IndexEntry struct {
	IndexKey  string   `json:"indexKey"`
	MemberIDs []string `json:"memberIds"`
}
