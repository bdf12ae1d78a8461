package fetcher

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// decodeHandleArray reads a JSON array whose elements are handle strings or
// objects carrying one of fields.
func decodeHandleArray(r io.Reader, fields []string) ([]string, error) {
	var items []json.RawMessage
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, eris.Wrap(err, "json: decode handle list")
	}

	out := make([]string, 0, len(items))
	for i, raw := range items {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, eris.Errorf("json: element %d is neither a string nor an object", i)
		}
		for _, f := range fields {
			if s, ok := obj[f].(string); ok && s != "" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}
