// Package scorer ranks the documents of an identity group.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-dedupe/internal/config"
)

// roleOrder lists roles from most to least privileged. Roles sharing a slot
// must carry equal weight.
var roleOrder = [][]string{
	{"admin"},
	{"core"},
	{"team"},
	{"kol", "scout"},
	{"user"},
	{"viewer"},
}

// DefaultScorerConfig returns a config.ScoringConfig with the default tiers.
func DefaultScorerConfig() config.ScoringConfig {
	return config.ScoringConfig{
		PreferredKeyWeight: 1000,
		ApprovedWeight:     800,
		RoleWeights:        config.DefaultRoleWeights(),
		FieldWeight:        25,
		AgeWeightPerDay:    0.05,
		AgeCap:             20,
	}
}

// MaxRoleWeight returns the largest role weight.
func MaxRoleWeight(c config.ScoringConfig) float64 {
	var maxW float64
	for _, w := range c.RoleWeights {
		if w > maxW {
			maxW = w
		}
	}
	return maxW
}

// ValidateConfig checks that the weights keep their tier order:
// key format > approval > role > completeness > age. Each tier is compared
// against one unit of the next; the score is additive, so a fully populated
// record can still outrank an empty one a single role step higher.
func ValidateConfig(c config.ScoringConfig) error {
	var errs []string

	weights := map[string]float64{
		"preferred_key_weight": c.PreferredKeyWeight,
		"approved_weight":      c.ApprovedWeight,
		"field_weight":         c.FieldWeight,
		"age_weight_per_day":   c.AgeWeightPerDay,
		"age_cap":              c.AgeCap,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}
	for role, w := range c.RoleWeights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("role_weights.%s must be >= 0", role))
		}
	}

	maxRole := MaxRoleWeight(c)
	if c.PreferredKeyWeight <= c.ApprovedWeight {
		errs = append(errs, "preferred_key_weight must be > approved_weight")
	}
	if c.ApprovedWeight <= maxRole {
		errs = append(errs, fmt.Sprintf("approved_weight must be > max role weight (%.1f)", maxRole))
	}
	if maxRole <= c.FieldWeight {
		errs = append(errs, "max role weight must be > field_weight")
	}
	if c.FieldWeight <= c.AgeCap {
		errs = append(errs, "field_weight must be > age_cap")
	}

	// Roles must be monotone by privilege.
	prev := -1.0
	prevRole := ""
	for i := len(roleOrder) - 1; i >= 0; i-- {
		slot := roleOrder[i]
		w, ok := c.RoleWeights[slot[0]]
		if !ok {
			errs = append(errs, fmt.Sprintf("role_weights.%s is missing", slot[0]))
			continue
		}
		for _, peer := range slot[1:] {
			if pw, ok := c.RoleWeights[peer]; !ok || pw != w {
				errs = append(errs, fmt.Sprintf("role_weights.%s must equal role_weights.%s", peer, slot[0]))
			}
		}
		if prevRole != "" && w <= prev {
			errs = append(errs, fmt.Sprintf("role_weights.%s must be > role_weights.%s", slot[0], prevRole))
		}
		prev, prevRole = w, slot[0]
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
