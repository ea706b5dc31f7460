package serialize

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePrimitives(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"string", "hello", "hello"},
		{"int", 42, int64(42)},
		{"uint", uint8(7), uint64(7)},
		{"float", 1.5, 1.5},
		{"bool", true, true},
		{"bytes", []byte("abc"), "abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalizeDropsUnsupported(t *testing.T) {
	in := map[string]any{
		"fn":   func() {},
		"ch":   make(chan int),
		"nan":  math.NaN(),
		"inf":  math.Inf(1),
		"keep": "yes",
	}
	assert.Equal(t, map[string]any{"keep": "yes"}, Normalize(in))
}

func TestNormalizeSelfReference(t *testing.T) {
	m := map[string]any{"name": "root"}
	m["self"] = m
	out := Normalize(m).(map[string]any)
	assert.Equal(t, "root", out["name"])
	assert.Equal(t, CircularMarker, out["self"])

	list := []any{1, nil}
	list[1] = list
	assert.Equal(t, []any{int64(1), CircularMarker}, Normalize(list))
}

func TestNormalizeSharedValueMarkedOnSecondVisit(t *testing.T) {
	shared := map[string]any{"x": 1}
	out := Normalize([]any{shared, shared}).([]any)
	assert.Equal(t, map[string]any{"x": int64(1)}, out[0])
	assert.Equal(t, CircularMarker, out[1])
}

func TestNormalizeSharedAddressDistinctValues(t *testing.T) {
	type inner struct{ N int }
	type outer struct {
		In  inner
		Ptr *inner
	}
	o := &outer{In: inner{N: 1}}
	o.Ptr = &o.In
	assert.Equal(t, map[string]any{
		"In":  map[string]any{"N": int64(1)},
		"Ptr": map[string]any{"N": int64(1)},
	}, Normalize(o))

	base := []any{1, 2, 3}
	assert.Equal(t, []any{
		[]any{int64(1), int64(2), int64(3)},
		[]any{int64(1)},
	}, Normalize([]any{base, base[:1]}))
}

func TestNormalizeReducesResponseShape(t *testing.T) {
	resp := map[string]any{
		"data":    map[string]any{"ok": true},
		"status":  200,
		"headers": map[string]any{"content-type": "application/json"},
		"config":  map[string]any{"url": "https://example.com", "adapter": func() {}},
		"request": map[string]any{"socket": "huge"},
	}
	out := Normalize(resp).(map[string]any)
	assert.ElementsMatch(t, []string{"data", "status", "headers"}, keys(out))
}

func TestNormalizeReducesErrorShape(t *testing.T) {
	in := map[string]any{
		"name":         "AxiosError",
		"message":      "Request failed with status code 404",
		"isAxiosError": true,
		"stack":        "long",
		"config":       map[string]any{"url": "https://example.com", "method": "get", "transformRequest": []any{}},
		"response":     map[string]any{"status": 404},
	}
	out := Normalize(in).(map[string]any)
	assert.ElementsMatch(t, []string{"name", "message", "response", "config"}, keys(out))
	assert.Equal(t, map[string]any{"url": "https://example.com", "method": "get"}, out["config"])
}

func TestNormalizeGoTypes(t *testing.T) {
	type inner struct {
		A int `json:"a"`
		B string
		c int
	}
	out := Normalize(&inner{A: 1, B: "b", c: 3})
	assert.Equal(t, map[string]any{"a": int64(1), "B": "b"}, out)

	resp := &http.Response{StatusCode: 201, Header: http.Header{"X-Id": []string{"1"}}}
	assert.Equal(t, map[string]any{
		"status":  int64(201),
		"headers": map[string]any{"x-id": "1"},
	}, Normalize(resp))

	assert.Equal(t, map[string]any{"name": "errorString", "message": "boom"}, Normalize(errors.New("boom")))
}

func TestValueAndMarshalAreTotal(t *testing.T) {
	m := map[string]any{"n": 1}
	m["loop"] = []any{m, func() {}}
	b := Marshal(m)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, float64(1), decoded["n"])
	assert.Equal(t, []any{CircularMarker, nil}, decoded["loop"])
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestText(t *testing.T) {
	assert.Equal(t, "plain", Text("plain"))
	assert.Equal(t, `{"html":"<b>&</b>"}`, Text(map[string]any{"html": "<b>&</b>"}))
	assert.Equal(t, "null", Text(nil))
	assert.Equal(t, `[1,"[Circular]"]`, Text(func() []any { l := []any{1, nil}; l[1] = l; return l }()))
}
