package model

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Default values for fields a canonical profile must always carry.
const (
	DefaultRole    = "user"
	DefaultStatus  = "pending"
	StatusApproved = "approved"
)

// roleRank orders roles by privilege. kol and scout share a rank.
var roleRank = map[string]int{
	"admin":  6,
	"core":   5,
	"team":   4,
	"kol":    3,
	"scout":  3,
	"user":   2,
	"viewer": 1,
}

var statusRank = map[string]int{
	"approved": 3,
	"pending":  2,
	"rejected": 1,
}

// NormalizeRole lower-cases and trims a role value.
func NormalizeRole(v any) string {
	s, _ := AsString(v)
	return strings.ToLower(strings.TrimSpace(s))
}

// RoleRank returns the privilege rank of role, or 0 when unknown.
func RoleRank(role string) int { return roleRank[role] }

// StatusRank returns the rank of an approval status, or 0 when unknown.
func StatusRank(status string) int { return statusRank[status] }

// KnownRole reports whether role is part of the role hierarchy.
func KnownRole(role string) bool {
	_, ok := roleRank[role]
	return ok
}

// KnownStatus reports whether status is a recognized approval status.
func KnownStatus(status string) bool {
	_, ok := statusRank[status]
	return ok
}

// DecodeObject parses raw as a single JSON object. Numbers are kept as
// json.Number so re-encoding does not change their text.
func DecodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, eris.Wrap(err, "model: decode document")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, eris.New("model: trailing data after document")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, eris.Errorf("model: document is a JSON %s, not an object", jsonKind(v))
	}
	return obj, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	default:
		return "number"
	}
}

// IsEmpty reports whether v carries no information: nil, a blank string, or
// an empty list or map. false and 0 are values.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return false
	}
}

// AsString returns v as a string when it is a string or a number.
func AsString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	default:
		return "", false
	}
}

// AsFloat returns v as a float64 when it holds a number or a numeric string.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// AsBool interprets booleans and the strings "true"/"false".
func AsBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return parsed, err == nil
	default:
		return false, false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime interprets v as a timestamp. Strings are tried against common
// layouts; numbers are unix epochs, in milliseconds when they are too large
// to be seconds.
func ParseTime(v any) (time.Time, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return time.Time{}, false
		}
	}

	f, ok := AsFloat(v)
	if !ok || f <= 0 {
		return time.Time{}, false
	}
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	return time.Unix(int64(f), 0).UTC(), true
}

// Clone deep-copies a decoded JSON value.
func Clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}

// CloneFields deep-copies a document.
func CloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	return Clone(fields).(map[string]any)
}
