package rules

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// toNumber coerces v to a float64. Anything that is not a number, a numeric
// string, a bool or a time yields NaN, which compares false with everything.
func toNumber(v any) float64 {
	switch n := v.(type) {
	case nil:
		return math.NaN()
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case time.Time:
		return float64(n.UnixMilli())
	case *time.Time:
		if n == nil {
			return math.NaN()
		}
		return float64(n.UnixMilli())
	case fmt.Stringer:
		return toNumber(n.String())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return toNumber(rv.String())
	}
	return math.NaN()
}

func isNumeric(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// toText renders v the way rule values are compared as text.
func toText(v any) string {
	switch s := v.(type) {
	case nil:
		return "null"
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case time.Time:
		return s.UTC().Format(time.RFC3339Nano)
	}
	if isNumeric(v) {
		return strconv.FormatFloat(toNumber(v), 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// toTime accepts time values and RFC 3339 / date-only strings.
func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// equal is strict equality with numeric normalization: 5 (int) equals 5.0
// (float64, as decoded from JSON) but "5" does not equal 5.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isNumeric(a) && isNumeric(b) {
		return toNumber(a) == toNumber(b)
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() == reflect.String && rb.Kind() == reflect.String {
		return ra.String() == rb.String()
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// asList returns v's elements when v is a slice or array.
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case string, nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if isNumeric(v) {
		n := toNumber(v)
		return n != 0 && !math.IsNaN(n)
	}
	return true
}

// Number coerces v the way numeric operators do. ok is false for NaN.
func Number(v any) (n float64, ok bool) {
	n = toNumber(v)
	return n, !math.IsNaN(n)
}

// Time parses v the way date operators do.
func Time(v any) (time.Time, bool) { return toTime(v) }

// Text renders v the way text operators do.
func Text(v any) string { return toText(v) }

// Truthy reports whether v counts as true for flag-valued operators.
func Truthy(v any) bool { return truthy(v) }

// List returns v's elements when v is a slice or array.
func List(v any) ([]any, bool) { return asList(v) }
