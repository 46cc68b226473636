package domain

import "strings"

// MatchMode combines a rule list as a conjunction (ALL) or disjunction (ANY).
type MatchMode string

const (
	MatchAll MatchMode = "all"
	MatchAny MatchMode = "any"
)

// ParseMatchMode accepts "all"/"any" in any case. Empty input defaults to ALL.
func ParseMatchMode(s string) (MatchMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return MatchAll, true
	case "any":
		return MatchAny, true
	}
	return "", false
}

// Rule is an immutable {field, operator, value} predicate. Field is a
// dot-path into the evaluated record.
type Rule struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}
