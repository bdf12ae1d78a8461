// Package merge folds the documents of an identity group into one canonical
// profile under per-field policies.
package merge

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sells-group/profile-dedupe/internal/model"
)

// Policy decides how a source value is folded into the accumulator.
type Policy int

// Field policies.
const (
	FirstNonEmpty Policy = iota // fill only while the accumulator is empty
	Max                         // numeric maximum
	Earliest                    // earliest timestamp
	Latest                      // latest timestamp
	Union                       // list union keyed by id, else deep equality
	MapMerge                    // shallow map merge, accumulator keys win
	ElementMax                  // element-wise maximum of metric maps
	Or                          // logical OR
	BestRole                    // most privileged role
	BestStatus                  // best approval status
	Identity                    // resolved by the engine, never merged
)

var policyNames = map[Policy]string{
	FirstNonEmpty: "first_non_empty",
	Max:           "max",
	Earliest:      "earliest",
	Latest:        "latest",
	Union:         "union",
	MapMerge:      "map_merge",
	ElementMax:    "element_max",
	Or:            "or",
	BestRole:      "best_role",
	BestStatus:    "best_status",
	Identity:      "identity",
}

func (p Policy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// fieldPolicies maps known profile fields to their policy. Fields not listed
// here are merged by value shape.
var fieldPolicies = map[string]Policy{
	"id":     Identity,
	"handle": Identity,

	"name":            FirstNonEmpty,
	"displayName":     FirstNonEmpty,
	"bio":             FirstNonEmpty,
	"image":           FirstNonEmpty,
	"avatar":          FirstNonEmpty,
	"profileImage":    FirstNonEmpty,
	"email":           FirstNonEmpty,
	"phone":           FirstNonEmpty,
	"discord":         FirstNonEmpty,
	"discordId":       FirstNonEmpty,
	"discordUsername": FirstNonEmpty,
	"telegram":        FirstNonEmpty,
	"twitter":         FirstNonEmpty,
	"twitterHandle":   FirstNonEmpty,
	"xHandle":         FirstNonEmpty,
	"username":        FirstNonEmpty,
	"website":         FirstNonEmpty,
	"tier":            FirstNonEmpty,

	"followerCount":  Max,
	"followers":      Max,
	"followingCount": Max,
	"points":         Max,
	"earnings":       Max,
	"totalEarnings":  Max,
	"totalViews":     Max,
	"views":          Max,
	"engagement":     Max,
	"impressions":    Max,

	"createdAt":    Earliest,
	"joinedAt":     Earliest,
	"updatedAt":    Latest,
	"lastLoginAt":  Latest,
	"lastActiveAt": Latest,
	"lastSeenAt":   Latest,

	"campaigns": Union,
	"notes":     Union,
	"tags":      Union,
	"chains":    Union,
	"badges":    Union,
	"contests":  Union,

	"walletAddresses": MapMerge,
	"wallets":         MapMerge,
	"socialLinks":     MapMerge,
	"socials":         MapMerge,
	"contactMethods":  MapMerge,
	"socialAccounts":  MapMerge,

	"engagementRates": ElementMax,
	"metrics":         ElementMax,
	"stats":           ElementMax,

	"isKOL":         Or,
	"kol":           Or,
	"verified":      Or,
	"isVerified":    Or,
	"emailVerified": Or,

	"role":           BestRole,
	"approvalStatus": BestStatus,
}

// itemIDFields name the identity field of collection entries, in lookup order.
var itemIDFields = []string{"id", "campaignId", "_id"}

// PolicyFor returns the policy of field. Unknown fields follow the shape of
// v: lists union, maps merge, anything else is first-non-empty.
func PolicyFor(field string, v any) Policy {
	if p, ok := fieldPolicies[field]; ok {
		return p
	}
	switch v.(type) {
	case []any:
		return Union
	case map[string]any:
		return MapMerge
	default:
		return FirstNonEmpty
	}
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func equal(a, b any) bool {
	return cmp.Equal(a, b)
}

// itemID returns the identity of a collection entry, if it has one.
func itemID(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	for _, f := range itemIDFields {
		if s, ok := model.AsString(m[f]); ok && s != "" {
			return f + "=" + s, true
		}
	}
	return "", false
}

// itemUpdated returns the updatedAt of a collection entry or the zero time.
func itemUpdated(v any) time.Time {
	m, ok := v.(map[string]any)
	if !ok {
		return time.Time{}
	}
	t, _ := model.ParseTime(m["updatedAt"])
	return t
}
