package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobRegexp(t *testing.T) {
	tests := []struct {
		pattern string
		match   []string
		noMatch []string
	}{
		{"user:*", []string{"user:1", "user:profile:2", "user:"}, []string{"users:1", "xuser:1"}},
		{"user:?", []string{"user:1"}, []string{"user:12"}},
		{"idx:role:[ab]*", []string{"idx:role:admin", "idx:role:b"}, []string{"idx:role:core"}},
		{"idx:role:[^a]*", []string{"idx:role:core"}, []string{"idx:role:admin"}},
		{`lit\*star`, []string{"lit*star"}, []string{"litXstar"}},
		{"a.b+c", []string{"a.b+c"}, []string{"aXbbc"}},
		{"open[bracket", []string{"open[bracket"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			re, err := GlobRegexp(tt.pattern)
			require.NoError(t, err)
			for _, s := range tt.match {
				assert.True(t, re.MatchString(s), "%q should match %q", tt.pattern, s)
			}
			for _, s := range tt.noMatch {
				assert.False(t, re.MatchString(s), "%q should not match %q", tt.pattern, s)
			}
		})
	}
}

func TestLiteralPrefix(t *testing.T) {
	assert.Equal(t, "user:profile:", LiteralPrefix("user:profile:*"))
	assert.Equal(t, "idx:", LiteralPrefix("idx:[a-z]*"))
	assert.Equal(t, "exact", LiteralPrefix("exact"))
	assert.Equal(t, "", LiteralPrefix("*"))
}
