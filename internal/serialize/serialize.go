// Package serialize turns arbitrary call results and errors into values that
// can cross the RPC boundary.
package serialize

import (
	"encoding/base64"
	"fmt"
	"math"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// CircularMarker replaces a value on its second visit.
const CircularMarker = "[Circular]"

// Normalize converts v into a JSON-safe tree made of map[string]any, []any,
// string, bool, int64, uint64, float64 and nil. It never panics.
func Normalize(v any) (out any) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
		}
	}()
	n := &normalizer{seen: make(map[visitKey]struct{})}
	out, _ = n.value(reflect.ValueOf(v))
	return out
}

// Value returns the protobuf form of Normalize(v).
func Value(v any) *structpb.Value {
	pv, err := structpb.NewValue(Normalize(v))
	if err != nil {
		return structpb.NewNullValue()
	}
	return pv
}

// Marshal encodes Value(v) as JSON.
func Marshal(v any) []byte {
	b, err := protojson.Marshal(Value(v))
	if err != nil {
		return []byte("null")
	}
	return b
}

type normalizer struct {
	seen map[visitKey]struct{}
}

var (
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	timeType  = reflect.TypeOf(time.Time{})
	respType  = reflect.TypeOf(&http.Response{})
)

// value returns the normalized form and false when v must be dropped.
func (n *normalizer) value(v reflect.Value) (any, bool) {
	if !v.IsValid() {
		return nil, true
	}

	switch {
	case v.Type() == respType:
		if v.IsNil() {
			return nil, true
		}
		return httpResponse(v.Interface().(*http.Response)), true
	case v.Type() == timeType:
		return v.Interface().(time.Time).UTC().Format(time.RFC3339Nano), true
	case v.Kind() != reflect.Map && v.Kind() != reflect.Interface && v.Type().Implements(errorType):
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return nil, true
		}
		return errorValue(v.Interface().(error)), true
	}

	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint(), true
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return f, true
	case reflect.String:
		return v.String(), true
	case reflect.Interface:
		if v.IsNil() {
			return nil, true
		}
		return n.value(v.Elem())
	case reflect.Pointer:
		if v.IsNil() {
			return nil, true
		}
		if n.visit(v.Pointer(), v.Type(), 0) {
			return CircularMarker, true
		}
		return n.value(v.Elem())
	case reflect.Map:
		if v.IsNil() {
			return nil, true
		}
		if n.visit(v.Pointer(), v.Type(), 0) {
			return CircularMarker, true
		}
		return n.mapValue(v), true
	case reflect.Slice:
		if v.IsNil() {
			return nil, true
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return bytesValue(v.Bytes()), true
		}
		if v.Len() > 0 && n.visit(v.Pointer(), v.Type(), v.Len()) {
			return CircularMarker, true
		}
		return n.list(v), true
	case reflect.Array:
		return n.list(v), true
	case reflect.Struct:
		return n.structValue(v), true
	default:
		// Func, Chan, UnsafePointer, Complex.
		return nil, false
	}
}

// visitKey identifies a reference value. A struct and its first field, or
// two slices starting at the same element, share an address but not a key.
type visitKey struct {
	ptr uintptr
	typ reflect.Type
	len int
}

func (n *normalizer) visit(p uintptr, t reflect.Type, length int) bool {
	if p == 0 {
		return false
	}
	k := visitKey{ptr: p, typ: t, len: length}
	if _, ok := n.seen[k]; ok {
		return true
	}
	n.seen[k] = struct{}{}
	return false
}

func (n *normalizer) list(v reflect.Value) []any {
	out := make([]any, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		item, ok := n.value(v.Index(i))
		if !ok {
			// Arrays keep their positions; a dropped element becomes null.
			item = nil
		}
		out = append(out, item)
	}
	return out
}

func (n *normalizer) mapValue(v reflect.Value) map[string]any {
	keys, reduced := reduceKeys(v)
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		mv := v.MapIndex(k)
		item, ok := n.value(mv)
		if !ok {
			continue
		}
		name := keyString(k)
		if reduced && name == "config" {
			item = reduceConfig(item)
		}
		out[name] = item
	}
	return out
}

func (n *normalizer) structValue(v reflect.Value) map[string]any {
	out := make(map[string]any)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		fv := v.Field(i)
		if f.Anonymous && fv.Kind() == reflect.Struct {
			for k, item := range n.structValue(fv) {
				out[k] = item
			}
			continue
		}
		item, ok := n.value(fv)
		if !ok {
			continue
		}
		out[name] = item
	}
	return out
}

// reduceKeys returns the keys worth keeping for well-known large shapes
// (HTTP client responses and errors), or every key otherwise.
func reduceKeys(v reflect.Value) ([]reflect.Value, bool) {
	all := v.MapKeys()
	if v.Type().Key().Kind() != reflect.String {
		sort.Slice(all, func(i, j int) bool { return keyString(all[i]) < keyString(all[j]) })
		return all, false
	}
	has := make(map[string]reflect.Value, len(all))
	for _, k := range all {
		has[k.String()] = k
	}
	var keep []string
	switch {
	case isErrorShape(v, has):
		keep = []string{"name", "message", "response", "config"}
	case isResponseShape(has):
		keep = []string{"data", "status", "headers"}
	default:
		sort.Slice(all, func(i, j int) bool { return all[i].String() < all[j].String() })
		return all, false
	}
	out := make([]reflect.Value, 0, len(keep))
	for _, name := range keep {
		if k, ok := has[name]; ok {
			out = append(out, k)
		}
	}
	return out, true
}

func isResponseShape(has map[string]reflect.Value) bool {
	_, data := has["data"]
	_, status := has["status"]
	_, headers := has["headers"]
	_, config := has["config"]
	_, request := has["request"]
	return data && status && headers && (config || request)
}

func isErrorShape(v reflect.Value, has map[string]reflect.Value) bool {
	if _, ok := has["message"]; !ok {
		return false
	}
	if k, ok := has["isAxiosError"]; ok {
		flag := v.MapIndex(k)
		for flag.Kind() == reflect.Interface && !flag.IsNil() {
			flag = flag.Elem()
		}
		if flag.Kind() == reflect.Bool && flag.Bool() {
			return true
		}
	}
	_, response := has["response"]
	_, config := has["config"]
	return response && config
}

// reduceConfig keeps only the request identity of an HTTP client config.
func reduceConfig(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any)
	for _, k := range []string{"method", "url", "baseURL", "timeout"} {
		if item, ok := m[k]; ok {
			out[k] = item
		}
	}
	return out
}

func keyString(k reflect.Value) string {
	for k.Kind() == reflect.Interface && !k.IsNil() {
		k = k.Elem()
	}
	if k.Kind() == reflect.String {
		return k.String()
	}
	return fmt.Sprint(k.Interface())
}

func bytesValue(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return base64.StdEncoding.EncodeToString(b)
}

func httpResponse(r *http.Response) map[string]any {
	headers := make(map[string]any, len(r.Header))
	for k, vs := range r.Header {
		headers[strings.ToLower(k)] = strings.Join(vs, ", ")
	}
	return map[string]any{
		"status":  int64(r.StatusCode),
		"headers": headers,
	}
}

func errorValue(err error) map[string]any {
	name := reflect.TypeOf(err).String()
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return map[string]any{
		"name":    name,
		"message": err.Error(),
	}
}
