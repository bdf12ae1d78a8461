package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-dedupe/internal/config"
	"github.com/sells-group/profile-dedupe/internal/model"
)

var fixedNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestScorer() *Scorer {
	return New(DefaultScorerConfig(), func() time.Time { return fixedNow })
}

func cand(key string, preferred bool, fields map[string]any) model.CandidateRecord {
	return model.CandidateRecord{
		Key:       key,
		Ref:       model.KeyRef{Key: key, Preferred: preferred},
		RawFields: fields,
	}
}

func TestScore_Signals(t *testing.T) {
	s := newTestScorer()

	b := s.Score(model.KeyRef{Key: "user:profile:1", Preferred: true}, map[string]any{
		"approvalStatus":  "Approved",
		"role":            "admin",
		"email":           "x@y.com",
		"discordId":       "123",
		"walletAddresses": map[string]any{"eth": "0xabc"},
		"campaigns":       []any{},
		"notes":           []any{"vip"},
		"tier":            "gold",
		"createdAt":       "2024-05-22T00:00:00Z",
	})

	assert.Equal(t, 1000.0, b.PreferredKey)
	assert.Equal(t, 800.0, b.Approved)
	assert.Equal(t, 500.0, b.Role)
	assert.Equal(t, 5*25.0, b.Fields) // empty campaigns do not count
	assert.InDelta(t, 10*0.05, b.Age, 1e-9)
}

func TestScore_AgeIsCapped(t *testing.T) {
	s := newTestScorer()
	b := s.Score(model.KeyRef{}, map[string]any{"createdAt": "2001-01-01"})
	assert.Equal(t, 20.0, b.Age)

	future := s.Score(model.KeyRef{}, map[string]any{"createdAt": "2030-01-01"})
	assert.Zero(t, future.Age)
}

func TestScore_UnknownRoleScoresZero(t *testing.T) {
	s := newTestScorer()
	b := s.Score(model.KeyRef{}, map[string]any{"role": "wizard"})
	assert.Zero(t, b.Total())
}

func TestScore_Deterministic(t *testing.T) {
	s := newTestScorer()
	fields := map[string]any{"role": "kol", "email": "a@b.c", "createdAt": "2023-01-01"}
	first := s.Score(model.KeyRef{Key: "profile:1"}, fields)
	for range 5 {
		assert.Equal(t, first, s.Score(model.KeyRef{Key: "profile:1"}, fields))
	}
}

func TestRank_TierOrder(t *testing.T) {
	s := newTestScorer()
	g := model.IdentityGroup{NormalizedHandle: "jane", Candidates: []model.CandidateRecord{
		cand("user:1", false, map[string]any{
			"role": "admin", "email": "a", "discord": "b", "wallets": map[string]any{"x": "y"},
			"campaigns": []any{1}, "notes": []any{1}, "tier": "t", "createdAt": "2001-01-01",
		}),
		cand("profile:2", false, map[string]any{"approvalStatus": "approved"}),
		cand("user:profile:3", true, map[string]any{}),
	}}

	ranked := s.Rank(g)
	assert.Equal(t, []string{"user:profile:3", "profile:2", "user:1"}, ranked.Keys())
	assert.Equal(t, ranked.Candidates[0].Breakdown.Total(), ranked.Candidates[0].Score)

	// Input is not reordered.
	assert.Equal(t, "user:1", g.Candidates[0].Key)
}

func TestRank_CompletenessCanOutweighOneRoleStep(t *testing.T) {
	s := newTestScorer()
	g := model.IdentityGroup{NormalizedHandle: "jane", Candidates: []model.CandidateRecord{
		cand("user:1", false, map[string]any{"role": "kol"}),
		cand("user:2", false, map[string]any{
			"role": "user", "email": "a", "discord": "b", "wallets": map[string]any{"x": "y"},
			"campaigns": []any{1}, "notes": []any{1}, "tier": "t", "createdAt": "2001-01-01",
		}),
		cand("user:3", false, map[string]any{"role": "team"}),
	}}

	ranked := s.Rank(g)
	assert.Equal(t, []string{"user:3", "user:2", "user:1"}, ranked.Keys())
}

func TestRank_TiesBreakByKey(t *testing.T) {
	s := newTestScorer()
	g := model.IdentityGroup{Candidates: []model.CandidateRecord{
		cand("users:b", false, map[string]any{"role": "user"}),
		cand("profile:a", false, map[string]any{"role": "user"}),
		cand("user:c", false, map[string]any{"role": "user"}),
	}}

	for range 3 {
		require.Equal(t, []string{"profile:a", "user:c", "users:b"}, s.Rank(g).Keys())
	}
}

func TestValidateConfig(t *testing.T) {
	require.NoError(t, ValidateConfig(DefaultScorerConfig()))

	tests := []struct {
		name   string
		mutate func(c *config.ScoringConfig)
		want   string
	}{
		{"approval above key format", func(c *config.ScoringConfig) { c.ApprovedWeight = 2000 }, "preferred_key_weight must be > approved_weight"},
		{"role above approval", func(c *config.ScoringConfig) { c.RoleWeights["admin"] = 900 }, "approved_weight must be > max role weight"},
		{"field above role", func(c *config.ScoringConfig) { c.FieldWeight = 600; c.AgeCap = 1 }, "max role weight must be > field_weight"},
		{"age above field", func(c *config.ScoringConfig) { c.AgeCap = 30 }, "field_weight must be > age_cap"},
		{"roles not monotone", func(c *config.ScoringConfig) { c.RoleWeights["team"] = 450 }, "role_weights.core must be > role_weights.team"},
		{"kol scout differ", func(c *config.ScoringConfig) { c.RoleWeights["scout"] = 150 }, "role_weights.scout must equal role_weights.kol"},
		{"missing role", func(c *config.ScoringConfig) { delete(c.RoleWeights, "viewer") }, "role_weights.viewer is missing"},
		{"negative", func(c *config.ScoringConfig) { c.AgeWeightPerDay = -1 }, "age_weight_per_day must be >= 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultScorerConfig()
			tt.mutate(&c)
			err := ValidateConfig(c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
