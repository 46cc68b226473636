package rules

import (
	"reflect"
	"strconv"
	"strings"
)

type undefined struct{}

// Undefined is returned by Lookup when a path does not resolve. It is
// distinct from a present nil value.
var Undefined any = undefined{}

// IsUndefined reports whether v is the Undefined marker.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

// Lookup follows a dot-path ("lead.status", "tags.0") through maps, slices,
// pointers and structs (matched by json tag, then field name).
func Lookup(record any, path string) any {
	if path == "" {
		return Undefined
	}
	cur := record
	for _, key := range strings.Split(path, ".") {
		next, ok := step(cur, key)
		if !ok {
			return Undefined
		}
		cur = next
	}
	return cur
}

func step(cur any, key string) (any, bool) {
	switch m := cur.(type) {
	case nil:
		return nil, false
	case map[string]any:
		v, ok := m[key]
		return v, ok
	case map[string]string:
		v, ok := m[key]
		return v, ok
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(m) {
			return nil, false
		}
		return m[i], true
	}

	rv := reflect.ValueOf(cur)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	case reflect.Struct:
		return structField(rv, key)
	}
	return nil, false
}

func structField(rv reflect.Value, key string) (any, bool) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		if name == key || (name == "" && f.Name == key) {
			return rv.Field(i).Interface(), true
		}
	}
	if f, ok := t.FieldByName(key); ok && f.IsExported() {
		return rv.FieldByIndex(f.Index).Interface(), true
	}
	return nil, false
}
