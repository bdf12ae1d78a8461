// Package identity resolves user handles and groups documents that belong to
// the same person.
package identity

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the comparison form of a handle: trimmed, one leading @
// removed, NFKC-normalized and case-folded. "  @JaneDoe " and "janedoe" both
// normalize to "janedoe".
func Normalize(handle string) string {
	h := strings.TrimSpace(handle)
	h = strings.TrimPrefix(h, "@")
	h = strings.TrimSpace(h)
	if h == "" {
		return ""
	}
	return cases.Fold().String(norm.NFKC.String(h))
}
