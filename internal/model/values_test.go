package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeObject(t *testing.T) {
	t.Parallel()

	obj, err := DecodeObject([]byte(`{"handle":"jane","followerCount":1200}`))
	require.NoError(t, err)
	assert.Equal(t, "jane", obj["handle"])
	assert.Equal(t, json.Number("1200"), obj["followerCount"])
}

func TestDecodeObject_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"invalid", `{"handle":`, "decode document"},
		{"array", `[1,2]`, "JSON array"},
		{"string", `"jane"`, "JSON string"},
		{"null", `null`, "JSON null"},
		{"trailing", `{"a":1}{"b":2}`, "trailing data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeObject([]byte(tt.raw))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestIsEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty("  "))
	assert.True(t, IsEmpty([]any{}))
	assert.True(t, IsEmpty(map[string]any{}))
	assert.False(t, IsEmpty(false))
	assert.False(t, IsEmpty(json.Number("0")))
	assert.False(t, IsEmpty("x"))
}

func TestAsFloat(t *testing.T) {
	t.Parallel()

	f, ok := AsFloat(json.Number("12.5"))
	assert.True(t, ok)
	assert.InDelta(t, 12.5, f, 0.0001)

	f, ok = AsFloat(" 40 ")
	assert.True(t, ok)
	assert.InDelta(t, 40, f, 0.0001)

	_, ok = AsFloat("many")
	assert.False(t, ok)
	_, ok = AsFloat(map[string]any{})
	assert.False(t, ok)
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	want := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
	}{
		{"date", "2022-06-01"},
		{"rfc3339", "2022-06-01T00:00:00Z"},
		{"offset", "2022-06-01T02:00:00+02:00"},
		{"epoch seconds", json.Number("1654041600")},
		{"epoch millis", json.Number("1654041600000")},
		{"numeric string", "1654041600000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseTime(tt.in)
			require.True(t, ok)
			assert.True(t, want.Equal(got), "got %s", got)
		})
	}

	_, ok := ParseTime("last tuesday")
	assert.False(t, ok)
	_, ok = ParseTime(nil)
	assert.False(t, ok)
}

func TestRanks(t *testing.T) {
	t.Parallel()

	assert.Greater(t, RoleRank("admin"), RoleRank("core"))
	assert.Greater(t, RoleRank("core"), RoleRank("team"))
	assert.Greater(t, RoleRank("team"), RoleRank("kol"))
	assert.Equal(t, RoleRank("kol"), RoleRank("scout"))
	assert.Greater(t, RoleRank("scout"), RoleRank("user"))
	assert.Greater(t, RoleRank("user"), RoleRank("viewer"))
	assert.Zero(t, RoleRank("superuser"))

	assert.Greater(t, StatusRank("approved"), StatusRank("pending"))
	assert.Greater(t, StatusRank("pending"), StatusRank("rejected"))
	assert.True(t, KnownStatus("rejected"))
	assert.False(t, KnownRole(""))

	assert.Equal(t, "admin", NormalizeRole(" Admin "))
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	orig := map[string]any{
		"campaigns": []any{map[string]any{"id": "c1"}},
		"wallets":   map[string]any{"eth": "0xabc"},
	}
	cp := CloneFields(orig)
	cp["campaigns"].([]any)[0].(map[string]any)["id"] = "changed"
	cp["wallets"].(map[string]any)["sol"] = "S1"

	assert.Equal(t, "c1", orig["campaigns"].([]any)[0].(map[string]any)["id"])
	assert.NotContains(t, orig["wallets"].(map[string]any), "sol")
	assert.Empty(t, CloneFields(nil))
}

func TestDocumentVariants(t *testing.T) {
	t.Parallel()

	ref := KeyRef{Key: "user:1", Template: "user:{id}", ID: "1"}
	docs := []Document{
		ValidDocument{Ref: ref},
		MalformedDocument{Ref: ref, Reason: "bad"},
		AbsentDocument{Ref: ref},
	}
	for _, d := range docs {
		assert.Equal(t, "user:1", d.KeyRef().Key)
	}
}

func TestGroupKeysAndBreakdown(t *testing.T) {
	t.Parallel()

	g := IdentityGroup{
		NormalizedHandle: "jane",
		Candidates:       []CandidateRecord{{Key: "b"}, {Key: "a"}},
	}
	assert.Equal(t, []string{"b", "a"}, g.Keys())

	b := ScoreBreakdown{PreferredKey: 1000, Approved: 800, Role: 500, Fields: 50, Age: 2.5}
	assert.InDelta(t, 2352.5, b.Total(), 0.0001)
}
