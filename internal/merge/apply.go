package merge

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/profile-dedupe/internal/model"
)

// merger is the accumulator of one group merge. origin tracks which key the
// current value of each field came from.
type merger struct {
	acc    map[string]any
	origin map[string]string
	log    model.MergeLog
}

func (m *merger) logf(format string, args ...any) {
	m.log = append(m.log, fmt.Sprintf(format, args...))
}

func (m *merger) take(field, src string, v any) {
	m.acc[field] = model.Clone(v)
	m.origin[field] = src
	m.logf("%s from %s", field, src)
}

func (m *merger) superseded(field, src, why string) {
	m.logf("%s from %s superseded: %s", field, src, why)
}

// apply folds one source field into the accumulator.
func (m *merger) apply(field, src string, v any) {
	cur, present := m.acc[field]

	if model.IsEmpty(v) {
		if !present {
			m.logf("%s from %s skipped: empty value", field, src)
		}
		return
	}
	if !present || model.IsEmpty(cur) {
		if p := PolicyFor(field, v); p != Identity {
			m.take(field, src, normalizeFor(p, v))
			return
		}
	}

	switch PolicyFor(field, v) {
	case Identity:
		if present && !equal(cur, v) {
			m.superseded(field, src, "resolved for the canonical profile")
		}
	case FirstNonEmpty:
		if !equal(cur, v) {
			m.superseded(field, src, "kept value from "+m.origin[field])
		}
	case Max:
		m.applyMax(field, src, cur, v)
	case Earliest:
		m.applyTime(field, src, cur, v, func(a, b time.Time) bool { return a.Before(b) })
	case Latest:
		m.applyTime(field, src, cur, v, func(a, b time.Time) bool { return a.After(b) })
	case Union:
		m.applyUnion(field, src, cur, v)
	case MapMerge:
		m.applyMap(field, src, cur, v)
	case ElementMax:
		m.applyElementMax(field, src, cur, v)
	case Or:
		have, _ := model.AsBool(cur)
		want, _ := model.AsBool(v)
		if want && !have {
			m.take(field, src, true)
		}
	case BestRole:
		role := model.NormalizeRole(v)
		if model.RoleRank(role) > model.RoleRank(model.NormalizeRole(cur)) {
			m.take(field, src, role)
		} else if role != model.NormalizeRole(cur) {
			m.superseded(field, src, "lower privilege than "+m.origin[field])
		}
	case BestStatus:
		status := model.NormalizeRole(v)
		if model.StatusRank(status) > model.StatusRank(model.NormalizeRole(cur)) {
			m.take(field, src, status)
		} else if status != model.NormalizeRole(cur) {
			m.superseded(field, src, "lower status than "+m.origin[field])
		}
	}
}

func normalizeFor(p Policy, v any) any {
	switch p {
	case BestRole, BestStatus:
		return model.NormalizeRole(v)
	default:
		return v
	}
}

func (m *merger) applyMax(field, src string, cur, v any) {
	a, okA := model.AsFloat(cur)
	b, okB := model.AsFloat(v)
	switch {
	case okB && (!okA || b > a):
		m.take(field, src, v)
	case !okB:
		m.superseded(field, src, "not numeric")
	}
}

func (m *merger) applyTime(field, src string, cur, v any, better func(a, b time.Time) bool) {
	a, okA := model.ParseTime(cur)
	b, okB := model.ParseTime(v)
	switch {
	case okB && (!okA || better(b, a)):
		m.take(field, src, v)
	case !okB:
		m.superseded(field, src, "not a timestamp")
	}
}

func (m *merger) applyUnion(field, src string, cur, v any) {
	have, okA := cur.([]any)
	add, okB := v.([]any)
	if !okA || !okB {
		if !equal(cur, v) {
			m.superseded(field, src, "not a list")
		}
		return
	}

	out := model.Clone(have).([]any)
	byID := make(map[string]int, len(out))
	for i, item := range out {
		if id, ok := itemID(item); ok {
			byID[id] = i
		}
	}

	changed := false
	for _, item := range add {
		if id, ok := itemID(item); ok {
			if i, seen := byID[id]; seen {
				if itemUpdated(item).After(itemUpdated(out[i])) {
					out[i] = model.Clone(item)
					changed = true
				}
				continue
			}
			byID[id] = len(out)
			out = append(out, model.Clone(item))
			changed = true
			continue
		}
		if !containsEqual(out, item) {
			out = append(out, model.Clone(item))
			changed = true
		}
	}
	if changed {
		m.acc[field] = out
		m.logf("%s from %s", field, src)
	}
}

func containsEqual(list []any, item any) bool {
	for _, e := range list {
		if equal(e, item) {
			return true
		}
	}
	return false
}

func (m *merger) applyMap(field, src string, cur, v any) {
	have, okA := cur.(map[string]any)
	add, okB := v.(map[string]any)
	if !okA || !okB {
		if !equal(cur, v) {
			m.superseded(field, src, "not a map")
		}
		return
	}

	var out map[string]any
	for _, k := range sortedKeys(add) {
		if existing, ok := have[k]; ok && !model.IsEmpty(existing) {
			continue
		}
		if model.IsEmpty(add[k]) {
			continue
		}
		if out == nil {
			out = model.Clone(have).(map[string]any)
		}
		out[k] = model.Clone(add[k])
	}
	if out != nil {
		m.acc[field] = out
		m.logf("%s from %s", field, src)
	}
}

func (m *merger) applyElementMax(field, src string, cur, v any) {
	have, okA := cur.(map[string]any)
	add, okB := v.(map[string]any)
	switch {
	case okA && !okB:
		m.superseded(field, src, "not a metric map")
		return
	case !okA:
		m.applyMax(field, src, cur, v)
		return
	}
	out, changed := elementMax(have, add)
	if changed {
		m.acc[field] = out
		m.logf("%s from %s", field, src)
	}
}

// elementMax returns a copy of a where every numeric element is raised to the
// matching element of b. Nested maps recurse; keys only in b are added.
func elementMax(a, b map[string]any) (map[string]any, bool) {
	out := model.Clone(a).(map[string]any)
	changed := false
	for _, k := range sortedKeys(b) {
		bv := b[k]
		av, ok := out[k]
		if !ok || model.IsEmpty(av) {
			if !model.IsEmpty(bv) {
				out[k] = model.Clone(bv)
				changed = true
			}
			continue
		}
		am, aIsMap := av.(map[string]any)
		bm, bIsMap := bv.(map[string]any)
		if aIsMap && bIsMap {
			if sub, c := elementMax(am, bm); c {
				out[k] = sub
				changed = true
			}
			continue
		}
		x, okX := model.AsFloat(av)
		y, okY := model.AsFloat(bv)
		if okX && okY && y > x {
			out[k] = bv
			changed = true
		}
	}
	return out, changed
}

// keepLegacyID stores a replaced primary id under legacyId so records that
// still reference it can be traced.
func (m *merger) keepLegacyID(old any, primaryKey string) {
	prev, taken := m.acc["legacyId"]
	if taken && !model.IsEmpty(prev) {
		if !equal(prev, old) {
			m.logf("id %q not kept as legacyId: already %q", fmt.Sprint(old), fmt.Sprint(prev))
		}
		return
	}
	m.acc["legacyId"] = old
	m.origin["legacyId"] = primaryKey
}

// finish applies the canonical id, the normalized handle and defaults.
func (m *merger) finish(handle, id, idSource, primaryKey string, now time.Time) {
	old, hadID := m.acc["id"]
	if s, _ := model.AsString(old); s != id {
		switch {
		case !hadID || model.IsEmpty(old):
		case s != "" && strings.TrimSpace(s) == id:
			m.logf("id %q trimmed", s)
		default:
			m.logf("id %q replaced by %s (not usable in a key)", fmt.Sprint(old), id)
			m.keepLegacyID(old, primaryKey)
		}
		switch {
		case idSource == "":
			m.logf("id generated: %s", id)
		case idSource != primaryKey:
			m.logf("id from %s", idSource)
		}
		m.acc["id"] = id
		m.origin["id"] = idSource
	}

	if s, _ := model.AsString(m.acc["handle"]); s != handle {
		if s != "" {
			m.logf("handle normalized from %q", s)
		}
		m.acc["handle"] = handle
	}

	m.defaultValue("role", model.DefaultRole)
	m.defaultValue("approvalStatus", model.DefaultStatus)

	stamp := now.UTC().Format(time.RFC3339)
	if _, ok := model.ParseTime(m.acc["createdAt"]); !ok {
		m.defaultValue("createdAt", stamp)
	}
	if _, ok := model.ParseTime(m.acc["updatedAt"]); !ok {
		m.defaultValue("updatedAt", stamp)
	}
}

// defaultValue fills an absent or empty field. A present but differently
// cased role or status is lower-cased.
func (m *merger) defaultValue(field string, v string) {
	cur := m.acc[field]
	if model.IsEmpty(cur) {
		m.acc[field] = v
		m.logf("%s defaulted to %s", field, v)
		return
	}
	if field == "role" || field == "approvalStatus" {
		if s, ok := cur.(string); ok && s != model.NormalizeRole(s) {
			m.acc[field] = model.NormalizeRole(s)
		}
	}
}
