package serialize

import (
	"bytes"
	"encoding/json"
)

// Text renders Normalize(v) as compact JSON for humans: <, > and & are left
// unescaped. Strings are returned as-is.
func Text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Normalize(v)); err != nil {
		return "null"
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
