package rules

import (
	"math"
	"strings"
	"time"
)

// Base operator names, used by workflow trigger conditions.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpExists      = "exists"
	OpNotExists   = "not_exists"
)

// Extended operator names, used by segmentation and ad-hoc lead filters.
const (
	OpStartsWith         = "startsWith"
	OpEndsWith           = "endsWith"
	OpIn                 = "in"
	OpNotIn              = "notIn"
	OpBetween            = "between"
	OpDaysAgo            = "daysAgo"
	OpIsNull             = "isNull"
	OpGreaterThanOrEqual = "greaterThanOrEqual"
	OpLessThanOrEqual    = "lessThanOrEqual"
)

// Base returns a registry with the trigger-condition operator set.
func Base(opts ...Option) *Registry {
	r := NewRegistry(opts...)
	r.Register(OpEquals, opEquals)
	r.Register(OpNotEquals, func(a, e any, env Env) bool { return !opEquals(a, e, env) })
	r.Register(OpContains, opContains)
	r.Register(OpNotContains, opNotContains)
	r.Register(OpGreaterThan, numeric(func(a, e float64) bool { return a > e }))
	r.Register(OpLessThan, numeric(func(a, e float64) bool { return a < e }))
	r.Register(OpExists, opExists, AcceptsUndefined())
	r.Register(OpNotExists, func(a, e any, env Env) bool { return !opExists(a, e, env) }, AcceptsUndefined())
	return r
}

// extendedAliases maps alternate spellings found in stored segment rules
// onto canonical operator names.
var extendedAliases = map[string]string{
	"notEquals":             OpNotEquals,
	"notContains":           OpNotContains,
	"greaterThan":           OpGreaterThan,
	"lessThan":              OpLessThan,
	"starts_with":           OpStartsWith,
	"ends_with":             OpEndsWith,
	"not_in":                OpNotIn,
	"days_ago":              OpDaysAgo,
	"is_null":               OpIsNull,
	"greater_than_or_equal": OpGreaterThanOrEqual,
	"less_than_or_equal":    OpLessThanOrEqual,
}

// Canonical resolves an alternate operator spelling to its canonical name.
// Unknown names are returned unchanged.
func Canonical(op string) string {
	if name, ok := extendedAliases[op]; ok {
		return name
	}
	return op
}

// Extended returns a registry with the base operators plus the
// segmentation/filter superset.
func Extended(opts ...Option) *Registry {
	r := Base(opts...)
	r.Register(OpStartsWith, textOp(strings.HasPrefix))
	r.Register(OpEndsWith, textOp(strings.HasSuffix))
	r.Register(OpIn, opIn)
	r.Register(OpNotIn, opNotIn)
	r.Register(OpBetween, opBetween)
	r.Register(OpDaysAgo, opDaysAgo)
	r.Register(OpIsNull, opIsNull, AcceptsUndefined())
	r.Register(OpGreaterThanOrEqual, numeric(func(a, e float64) bool { return a >= e }))
	r.Register(OpLessThanOrEqual, numeric(func(a, e float64) bool { return a <= e }))
	for alias, name := range extendedAliases {
		_ = r.Alias(alias, name)
	}
	return r
}

func opEquals(actual, expected any, _ Env) bool {
	return equal(actual, expected)
}

func opContains(actual, expected any, _ Env) bool {
	if s, ok := actual.(string); ok {
		return strings.Contains(fold(s), fold(toText(expected)))
	}
	if list, ok := asList(actual); ok {
		return member(list, expected)
	}
	return false
}

func opNotContains(actual, expected any, _ Env) bool {
	if s, ok := actual.(string); ok {
		return !strings.Contains(fold(s), fold(toText(expected)))
	}
	if list, ok := asList(actual); ok {
		return !member(list, expected)
	}
	return true
}

// member is list membership; string elements compare case-insensitively.
func member(list []any, v any) bool {
	vs, vIsString := v.(string)
	for _, item := range list {
		if s, ok := item.(string); ok && vIsString {
			if fold(s) == fold(vs) {
				return true
			}
			continue
		}
		if equal(item, v) {
			return true
		}
	}
	return false
}

func numeric(cmp func(actual, expected float64) bool) OperatorFunc {
	return func(actual, expected any, _ Env) bool {
		a, e := toNumber(actual), toNumber(expected)
		if math.IsNaN(a) || math.IsNaN(e) {
			return false
		}
		return cmp(a, e)
	}
}

func opExists(actual, _ any, _ Env) bool {
	return !IsUndefined(actual) && actual != nil
}

func textOp(match func(s, affix string) bool) OperatorFunc {
	return func(actual, expected any, _ Env) bool {
		s, ok := actual.(string)
		if !ok {
			return false
		}
		return match(fold(s), fold(toText(expected)))
	}
}

func valueList(expected any) []any {
	if list, ok := asList(expected); ok {
		return list
	}
	return []any{expected}
}

func opIn(actual, expected any, _ Env) bool {
	if actual == nil {
		return false
	}
	for _, v := range valueList(expected) {
		if equal(actual, v) {
			return true
		}
	}
	return false
}

func opNotIn(actual, expected any, env Env) bool {
	if actual == nil {
		return false
	}
	return !opIn(actual, expected, env)
}

// Bounds extracts {min, max} from a map or a two-element list.
func Bounds(expected any) (lo, hi float64, ok bool) {
	switch b := expected.(type) {
	case map[string]any:
		lo, hi = toNumber(b["min"]), toNumber(b["max"])
	default:
		list, isList := asList(expected)
		if !isList || len(list) != 2 {
			return 0, 0, false
		}
		lo, hi = toNumber(list[0]), toNumber(list[1])
	}
	if math.IsNaN(lo) || math.IsNaN(hi) {
		return 0, 0, false
	}
	return lo, hi, true
}

func opBetween(actual, expected any, _ Env) bool {
	lo, hi, ok := Bounds(expected)
	if !ok {
		return false
	}
	a := toNumber(actual)
	if math.IsNaN(a) {
		return false
	}
	return a >= lo && a <= hi
}

// DaysAgoCutoff is the instant N days before now. Fractional days are allowed.
func DaysAgoCutoff(now time.Time, days any) (time.Time, bool) {
	n := toNumber(days)
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return time.Time{}, false
	}
	return now.Add(-time.Duration(n * float64(24*time.Hour))), true
}

// opDaysAgo matches timestamps at least N days old at evaluation time, so the
// matched set rolls forward as the clock advances.
func opDaysAgo(actual, expected any, env Env) bool {
	t, ok := toTime(actual)
	if !ok {
		return false
	}
	cutoff, ok := DaysAgoCutoff(env.Now, expected)
	if !ok {
		return false
	}
	return !t.After(cutoff)
}

func opIsNull(actual, expected any, _ Env) bool {
	isNull := actual == nil || IsUndefined(actual)
	if truthy(expected) {
		return isNull
	}
	return !isNull
}
