package merge

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-dedupe/internal/model"
)

type prefixRenderer string

func (p prefixRenderer) CanonicalKey(id string) string { return string(p) + id }

var mergeNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	e := NewEngine(prefixRenderer("user:"), func() time.Time { return mergeNow })
	e.newID = func() string { return "generated-id" }
	return e
}

func doc(t *testing.T, key, id, raw string) model.CandidateRecord {
	t.Helper()
	fields, err := model.DecodeObject([]byte(raw))
	require.NoError(t, err)
	return model.CandidateRecord{
		Key:       key,
		Ref:       model.KeyRef{Key: key, ID: id},
		Raw:       []byte(raw),
		RawFields: fields,
	}
}

func group(cands ...model.CandidateRecord) model.IdentityGroup {
	return model.IdentityGroup{NormalizedHandle: "janedoe", Candidates: cands}
}

func TestMerge_FollowerCountTakesMax(t *testing.T) {
	res, err := newTestEngine().Merge(group(
		doc(t, "user:profile:1", "1", `{"handle":"janedoe","followerCount":100}`),
		doc(t, "profile:2", "2", `{"handle":"janedoe","followerCount":500}`),
	))
	require.NoError(t, err)
	assert.Equal(t, json.Number("500"), res.Profile.Fields["followerCount"])
	assert.Contains(t, res.Log, "followerCount from profile:2")
}

func TestMerge_EmailFilledFromSource(t *testing.T) {
	res, err := newTestEngine().Merge(group(
		doc(t, "user:profile:1", "1", `{"handle":"janedoe"}`),
		doc(t, "profile:2", "2", `{"handle":"janedoe","email":"x@y.com"}`),
	))
	require.NoError(t, err)
	assert.Equal(t, "x@y.com", res.Profile.Fields["email"])
	assert.Contains(t, res.Log, "email from profile:2")
}

func TestMerge_FirstNonEmptyKeepsPrimary(t *testing.T) {
	res, err := newTestEngine().Merge(group(
		doc(t, "user:profile:1", "1", `{"handle":"janedoe","email":"a@a.com","bio":""}`),
		doc(t, "profile:2", "2", `{"handle":"janedoe","email":"b@b.com","bio":"hello"}`),
	))
	require.NoError(t, err)
	assert.Equal(t, "a@a.com", res.Profile.Fields["email"])
	assert.Equal(t, "hello", res.Profile.Fields["bio"])
	assert.Contains(t, res.Log, "email from profile:2 superseded: kept value from user:profile:1")
}

func TestMerge_CreatedAtEarliestUpdatedAtLatest(t *testing.T) {
	res, err := newTestEngine().Merge(group(
		doc(t, "user:profile:1", "1", `{"handle":"janedoe","createdAt":"2023-01-01","updatedAt":"2023-03-01"}`),
		doc(t, "profile:2", "2", `{"handle":"janedoe","createdAt":"2022-06-01","updatedAt":"2024-01-01"}`),
	))
	require.NoError(t, err)
	assert.Equal(t, "2022-06-01", res.Profile.Fields["createdAt"])
	assert.Equal(t, "2024-01-01", res.Profile.Fields["updatedAt"])
	assert.Equal(t, time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC), res.Profile.CreatedAt)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), res.Profile.UpdatedAt)
}

func TestMerge_CampaignUnionKeepsNewest(t *testing.T) {
	res, err := newTestEngine().Merge(group(
		doc(t, "user:profile:1", "1", `{"handle":"janedoe","campaigns":[{"id":1}]}`),
		doc(t, "profile:2", "2", `{"handle":"janedoe","campaigns":[{"id":1,"updatedAt":"2024-05-01"},{"id":2}]}`),
	))
	require.NoError(t, err)

	want := []any{
		map[string]any{"id": json.Number("1"), "updatedAt": "2024-05-01"},
		map[string]any{"id": json.Number("2")},
	}
	if diff := cmp.Diff(want, res.Profile.Fields["campaigns"]); diff != "" {
		t.Errorf("campaigns mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_UnionByDeepEquality(t *testing.T) {
	res, err := newTestEngine().Merge(group(
		doc(t, "user:profile:1", "1", `{"handle":"janedoe","tags":["a","b"]}`),
		doc(t, "profile:2", "2", `{"handle":"janedoe","tags":["b","c"]}`),
	))
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, res.Profile.Fields["tags"])
}

func TestMerge_MapsAndMetrics(t *testing.T) {
	res, err := newTestEngine().Merge(group(
		doc(t, "user:profile:1", "1", `{"handle":"janedoe","walletAddresses":{"eth":"0xA"},
			"engagementRates":{"x":1.5,"weekly":{"likes":3}},"isKOL":false,"role":"kol"}`),
		doc(t, "profile:2", "2", `{"handle":"janedoe","walletAddresses":{"eth":"0xB","sol":"So1"},
			"engagementRates":{"x":0.5,"y":2,"weekly":{"likes":9}},"isKOL":true,"role":"Admin"}`),
	))
	require.NoError(t, err)

	f := res.Profile.Fields
	assert.Equal(t, map[string]any{"eth": "0xA", "sol": "So1"}, f["walletAddresses"])
	want := map[string]any{
		"x":      json.Number("1.5"),
		"y":      json.Number("2"),
		"weekly": map[string]any{"likes": json.Number("9")},
	}
	if diff := cmp.Diff(want, f["engagementRates"]); diff != "" {
		t.Errorf("engagementRates mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, true, f["isKOL"])
	assert.Equal(t, "admin", f["role"])
	assert.Contains(t, res.Log, "role from profile:2")
}

func TestMerge_MetricMapSurvivesScalarSource(t *testing.T) {
	res, err := newTestEngine().Merge(group(
		doc(t, "user:profile:1", "1", `{"handle":"janedoe","engagementRates":{"likes":0.5,"views":100}}`),
		doc(t, "profile:2", "2", `{"handle":"janedoe","engagementRates":3}`),
	))
	require.NoError(t, err)

	want := map[string]any{"likes": json.Number("0.5"), "views": json.Number("100")}
	if diff := cmp.Diff(want, res.Profile.Fields["engagementRates"]); diff != "" {
		t.Errorf("engagementRates mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, res.Log, "engagementRates from profile:2 superseded: not a metric map")
	assert.NotContains(t, res.Log, "engagementRates from profile:2")
}

func TestMerge_DefaultsAndNormalizedHandle(t *testing.T) {
	res, err := newTestEngine().Merge(group(
		doc(t, "profile:abc", "abc", `{"twitterHandle":"@JaneDoe"}`),
	))
	require.NoError(t, err)

	f := res.Profile.Fields
	assert.Equal(t, "janedoe", f["handle"])
	assert.Equal(t, "user", f["role"])
	assert.Equal(t, "pending", f["approvalStatus"])
	assert.Equal(t, "abc", f["id"])
	assert.Equal(t, "2024-06-01T12:00:00Z", f["createdAt"])
	assert.Equal(t, "user:abc", res.Profile.Key)
	assert.Equal(t, model.GroupActionMigrate, res.Action)
	assert.Equal(t, []string{"profile:abc"}, res.Superseded)
	assert.Contains(t, res.Log, "role defaulted to user")
}

func TestMerge_IDResolution(t *testing.T) {
	e := newTestEngine()

	res, err := e.Merge(group(
		doc(t, "user:profile:k1", "k1", `{"handle":"janedoe"}`),
		doc(t, "profile:k2", "k2", `{"handle":"janedoe","id":"doc-id"}`),
	))
	require.NoError(t, err)
	assert.Equal(t, "doc-id", res.Profile.ID)
	assert.Contains(t, res.Log, "id from profile:k2")
	assert.ElementsMatch(t, []string{"user:profile:k1", "profile:k2"}, res.Superseded)

	res, err = e.Merge(group(
		doc(t, "legacy", "", `{"handle":"janedoe","id":"has:colon"}`),
	))
	require.NoError(t, err)
	assert.Equal(t, "generated-id", res.Profile.ID)
	assert.Contains(t, res.Log, "id generated: generated-id")
	assert.Equal(t, "has:colon", res.Profile.Fields["legacyId"])
}

func TestMerge_UnusableIDKeptAsLegacyID(t *testing.T) {
	res, err := newTestEngine().Merge(group(
		doc(t, "user:profile:1", "1", `{"handle":"janedoe","id":"twitter:123"}`),
	))
	require.NoError(t, err)

	assert.Equal(t, "1", res.Profile.ID)
	assert.Equal(t, "1", res.Profile.Fields["id"])
	assert.Equal(t, "twitter:123", res.Profile.Fields["legacyId"])
	assert.Contains(t, res.Log, `id "twitter:123" replaced by 1 (not usable in a key)`)
}

func TestMerge_UnusableIDDoesNotOverwriteLegacyID(t *testing.T) {
	res, err := newTestEngine().Merge(group(
		doc(t, "user:profile:1", "1", `{"handle":"janedoe","id":"twitter:123","legacyId":"v1-7"}`),
	))
	require.NoError(t, err)

	assert.Equal(t, "v1-7", res.Profile.Fields["legacyId"])
	assert.Contains(t, res.Log, `id "twitter:123" not kept as legacyId: already "v1-7"`)
}

func TestMerge_TrimmedIDIsLogged(t *testing.T) {
	res, err := newTestEngine().Merge(group(
		doc(t, "user:profile:1", "1", `{"handle":"janedoe","id":" abc "}`),
	))
	require.NoError(t, err)

	assert.Equal(t, "abc", res.Profile.ID)
	assert.NotContains(t, res.Profile.Fields, "legacyId")
	assert.Contains(t, res.Log, `id " abc " trimmed`)
}

func TestMerge_Noop(t *testing.T) {
	raw := `{"id":"42","handle":"janedoe","role":"user","approvalStatus":"pending",
		"createdAt":"2023-01-01T00:00:00Z","updatedAt":"2023-01-02T00:00:00Z"}`
	res, err := newTestEngine().Merge(group(doc(t, "user:42", "42", raw)))
	require.NoError(t, err)
	assert.Equal(t, model.GroupActionNoop, res.Action)
	assert.Empty(t, res.Superseded)
	assert.Empty(t, res.Log)
}

func TestMerge_InvalidProfile(t *testing.T) {
	_, err := newTestEngine().Merge(group(
		doc(t, "user:1", "1", `{"handle":"janedoe","role":"wizard","approvalStatus":"maybe"}`),
	))
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 2)
	assert.Contains(t, err.Error(), `unknown role "wizard"`)
}

func TestMerge_EmptyGroup(t *testing.T) {
	_, err := newTestEngine().Merge(model.IdentityGroup{NormalizedHandle: "x"})
	require.Error(t, err)
}

func TestMerge_NoFieldSilentlyDropped(t *testing.T) {
	cands := []model.CandidateRecord{
		doc(t, "user:profile:1", "1", `{"handle":"JaneDoe","email":"a@a.com","tags":"oops","points":"n/a"}`),
		doc(t, "profile:2", "2", `{"handle":"janedoe ","bio":"","tags":["x"],"points":7,"walletAddresses":{}}`),
		doc(t, "user:3", "3", `{"twitterHandle":"@janedoe","discord":"jd#1","custom":{"a":1},"notes":[]}`),
	}
	res, err := newTestEngine().Merge(group(cands...))
	require.NoError(t, err)

	for _, c := range cands {
		for field := range c.RawFields {
			if _, ok := res.Profile.Fields[field]; ok {
				continue
			}
			named := false
			for _, entry := range res.Log {
				if strings.HasPrefix(entry, field+" ") {
					named = true
					break
				}
			}
			assert.Truef(t, named, "field %q from %s is neither in the profile nor in the merge log", field, c.Key)
		}
	}
	assert.Contains(t, res.Log, "bio from profile:2 skipped: empty value")
}

func TestPolicyFor(t *testing.T) {
	assert.Equal(t, Max, PolicyFor("followerCount", nil))
	assert.Equal(t, Union, PolicyFor("somethingNew", []any{}))
	assert.Equal(t, MapMerge, PolicyFor("somethingNew", map[string]any{}))
	assert.Equal(t, FirstNonEmpty, PolicyFor("somethingNew", "x"))
	assert.Equal(t, "element_max", ElementMax.String())
}
