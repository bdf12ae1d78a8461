package scorer

import (
	"math"
	"sort"
	"time"

	"github.com/sells-group/profile-dedupe/internal/config"
	"github.com/sells-group/profile-dedupe/internal/model"
)

// valuableFields groups the field names that count toward completeness. A
// group counts once when any of its names holds a non-empty value.
var valuableFields = [][]string{
	{"email"},
	{"discordId", "discord", "discordUsername"},
	{"walletAddresses", "wallets"},
	{"campaigns"},
	{"notes"},
	{"tier"},
}

// Scorer computes deterministic desirability scores.
type Scorer struct {
	cfg config.ScoringConfig
	now func() time.Time
}

// New returns a Scorer. now anchors record age; nil means time.Now.
func New(cfg config.ScoringConfig, now func() time.Time) *Scorer {
	if now == nil {
		now = time.Now
	}
	return &Scorer{cfg: cfg, now: now}
}

// Score returns the breakdown for one document stored under ref.
func (s *Scorer) Score(ref model.KeyRef, fields map[string]any) model.ScoreBreakdown {
	var b model.ScoreBreakdown

	if ref.Preferred {
		b.PreferredKey = s.cfg.PreferredKeyWeight
	}
	if model.NormalizeRole(fields["approvalStatus"]) == model.StatusApproved {
		b.Approved = s.cfg.ApprovedWeight
	}
	if role := model.NormalizeRole(fields["role"]); role != "" {
		b.Role = s.cfg.RoleWeights[role]
	}

	populated := 0
	for _, names := range valuableFields {
		for _, name := range names {
			if !model.IsEmpty(fields[name]) {
				populated++
				break
			}
		}
	}
	b.Fields = float64(populated) * s.cfg.FieldWeight

	if created, ok := model.ParseTime(fields["createdAt"]); ok {
		days := s.now().Sub(created).Hours() / 24
		if days > 0 {
			b.Age = math.Min(days*s.cfg.AgeWeightPerDay, s.cfg.AgeCap)
		}
	}
	return b
}

// Rank scores every candidate and orders the group best first. Equal scores
// fall back to ascending key order.
func (s *Scorer) Rank(g model.IdentityGroup) model.IdentityGroup {
	out := model.IdentityGroup{
		NormalizedHandle: g.NormalizedHandle,
		Candidates:       make([]model.CandidateRecord, len(g.Candidates)),
	}
	for i, c := range g.Candidates {
		c.Breakdown = s.Score(c.Ref, c.RawFields)
		c.Score = c.Breakdown.Total()
		out.Candidates[i] = c
	}
	sort.SliceStable(out.Candidates, func(i, j int) bool {
		a, b := out.Candidates[i], out.Candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Key < b.Key
	})
	return out
}
