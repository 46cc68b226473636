// Package sanitize turns arbitrary event payloads into JSON-safe values for
// durable storage. Times become ISO-8601 UTC strings with millisecond
// precision, NaN and infinities become null, functions and channels are
// dropped, and structs are flattened into maps keyed by their json names.
package sanitize

import (
	"encoding"
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"time"
)

// TimeLayout is the timestamp format written into stored snapshots.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

const maxDepth = 32

// Value returns a copy of v built only from nil, bool, float64, string,
// []any and map[string]any. A map, slice or pointer that refers back to one
// of its ancestors becomes nil.
func Value(v any) any {
	return newWalker().walk(reflect.ValueOf(v), 0)
}

// Map sanitizes a map payload. A nil input yields an empty map.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	if m == nil {
		return out
	}
	w := newWalker()
	w.enter(reflect.ValueOf(m))
	for k, v := range m {
		rv := reflect.ValueOf(v)
		if dropped(rv) {
			continue
		}
		out[k] = w.walk(rv, 1)
	}
	return out
}

// visit identifies a reference value on the current path. The type is part
// of the key because a struct and its first field share an address.
type visit struct {
	ptr uintptr
	typ reflect.Type
}

type walker struct {
	path map[visit]struct{}
}

func newWalker() *walker {
	return &walker{path: make(map[visit]struct{})}
}

// enter records rv on the current path. It reports false when rv is already
// there, i.e. the value is cyclic.
func (w *walker) enter(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
	default:
		return true
	}
	ptr := rv.Pointer()
	if ptr == 0 {
		return true
	}
	v := visit{ptr: ptr, typ: rv.Type()}
	if _, ok := w.path[v]; ok {
		return false
	}
	w.path[v] = struct{}{}
	return true
}

func (w *walker) leave(rv reflect.Value) {
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		if ptr := rv.Pointer(); ptr != 0 {
			delete(w.path, visit{ptr: ptr, typ: rv.Type()})
		}
	}
}

func dropped(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	}
	return false
}

var (
	timeType      = reflect.TypeOf(time.Time{})
	marshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textType      = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

func (w *walker) walk(rv reflect.Value, depth int) any {
	if !rv.IsValid() {
		return nil
	}
	if depth > maxDepth {
		return nil
	}

	var entered []reflect.Value
	defer func() {
		for _, e := range entered {
			w.leave(e)
		}
	}()

	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		if rv.Kind() == reflect.Pointer && rv.Type().Elem() == timeType {
			break
		}
		if rv.Kind() == reflect.Pointer {
			if !w.enter(rv) {
				return nil
			}
			entered = append(entered, rv)
		}
		rv = rv.Elem()
	}

	if rv.Type() == timeType {
		return rv.Interface().(time.Time).UTC().Format(TimeLayout)
	}
	if rv.Kind() == reflect.Pointer && rv.Type().Elem() == timeType {
		return rv.Elem().Interface().(time.Time).UTC().Format(TimeLayout)
	}
	if rv.Type().Implements(marshalerType) {
		return viaJSON(rv.Interface().(json.Marshaler))
	}
	if rv.Type().Implements(textType) {
		if b, err := rv.Interface().(encoding.TextMarshaler).MarshalText(); err == nil {
			return string(b)
		}
		return nil
	}

	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 && rv.Kind() == reflect.Slice {
			return string(rv.Bytes())
		}
		if rv.Kind() == reflect.Slice {
			if !w.enter(rv) {
				return nil
			}
			entered = append(entered, rv)
		}
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item := rv.Index(i)
			if dropped(item) {
				out = append(out, nil)
				continue
			}
			out = append(out, w.walk(item, depth+1))
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		if !w.enter(rv) {
			return nil
		}
		entered = append(entered, rv)
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := mapKey(iter.Key())
			if key == "" && iter.Key().Kind() != reflect.String {
				continue
			}
			val := iter.Value()
			if dropped(unwrap(val)) {
				continue
			}
			out[key] = w.walk(val, depth+1)
		}
		return out
	case reflect.Struct:
		return w.structMap(rv, depth)
	}
	return nil
}

func unwrap(rv reflect.Value) reflect.Value {
	for rv.Kind() == reflect.Interface && !rv.IsNil() {
		rv = rv.Elem()
	}
	return rv
}

func mapKey(k reflect.Value) string {
	k = unwrap(k)
	switch k.Kind() {
	case reflect.String:
		return k.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Bool:
		b, err := json.Marshal(k.Interface())
		if err != nil {
			return ""
		}
		return string(b)
	}
	return ""
}

func (w *walker) structMap(rv reflect.Value, depth int) map[string]any {
	t := rv.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, omitEmpty := f.Name, false
		if tag, ok := f.Tag.Lookup("json"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" && len(parts) == 1 {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
			for _, p := range parts[1:] {
				if p == "omitempty" {
					omitEmpty = true
				}
			}
		}
		fv := rv.Field(i)
		if dropped(unwrap(fv)) {
			continue
		}
		if omitEmpty && fv.IsZero() {
			continue
		}
		out[name] = w.walk(fv, depth+1)
	}
	return out
}

func viaJSON(m json.Marshaler) any {
	b, err := m.MarshalJSON()
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
