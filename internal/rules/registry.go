// Package rules evaluates {field, operator, value} predicates against
// flattened records.
//
// Operators live in a Registry, an open dispatch table keyed by operator
// name. Base returns the operator set used by workflow trigger conditions;
// Extended adds the segmentation and lead-filter operators on top of it.
// Call sites can register further operators on their own registry.
//
// Evaluation never returns an error: a malformed rule or unknown operator is
// logged and treated as a non-match.
package rules

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/pkg/logger"
)

// Env carries per-evaluation state shared by every rule in one pass.
type Env struct {
	// Now is read once per Evaluate call so relative-time operators in the
	// same rule list agree on their cutoff.
	Now time.Time
}

// OperatorFunc compares the resolved field value against the rule value.
type OperatorFunc func(actual, expected any, env Env) bool

type operator struct {
	fn               OperatorFunc
	acceptsUndefined bool
}

// RegisterOption tunes how an operator is dispatched.
type RegisterOption func(*operator)

// AcceptsUndefined lets the operator see values whose path did not resolve.
// Without it a missing path is a non-match before the operator runs.
func AcceptsUndefined() RegisterOption {
	return func(o *operator) { o.acceptsUndefined = true }
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for relative-time operators.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// Registry is a concurrency-safe operator dispatch table.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]operator
	now func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{ops: make(map[string]operator), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces an operator.
func (r *Registry) Register(name string, fn OperatorFunc, opts ...RegisterOption) {
	op := operator{fn: fn}
	for _, opt := range opts {
		opt(&op)
	}
	r.mu.Lock()
	r.ops[name] = op
	r.mu.Unlock()
}

// Alias makes alias dispatch to the operator currently registered as name.
func (r *Registry) Alias(alias, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[name]
	if !ok {
		return fmt.Errorf("alias %q: unknown operator %q", alias, name)
	}
	r.ops[alias] = op
	return nil
}

// Has reports whether an operator is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ops[name]
	return ok
}

// Operators lists registered operator names in sorted order.
func (r *Registry) Operators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone copies the dispatch table so the copy can be extended independently.
func (r *Registry) Clone(opts ...Option) *Registry {
	r.mu.RLock()
	c := &Registry{ops: make(map[string]operator, len(r.ops)), now: r.now}
	for k, v := range r.ops {
		c.ops[k] = v
	}
	r.mu.RUnlock()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the registry's current time.
func (r *Registry) Now() time.Time { return r.now() }

// Evaluate combines rules with mode against record. An empty rule list is
// true under ALL and false under ANY. An unknown match mode fails closed.
func (r *Registry) Evaluate(record any, rules []domain.Rule, mode domain.MatchMode) bool {
	return r.EvaluateAt(record, rules, mode, r.now())
}

// EvaluateAt is Evaluate with an explicit evaluation time.
func (r *Registry) EvaluateAt(record any, rules []domain.Rule, mode domain.MatchMode, now time.Time) bool {
	env := Env{Now: now}
	switch mode {
	case domain.MatchAll:
		for _, rule := range rules {
			if !r.evalRule(record, rule, env) {
				return false
			}
		}
		return true
	case domain.MatchAny:
		for _, rule := range rules {
			if r.evalRule(record, rule, env) {
				return true
			}
		}
		return false
	default:
		logger.Warn("rule evaluation: unknown match mode", "component", "rules", "mode", string(mode))
		return false
	}
}

// EvaluateRule evaluates a single rule.
func (r *Registry) EvaluateRule(record any, rule domain.Rule) bool {
	return r.evalRule(record, rule, Env{Now: r.now()})
}

func (r *Registry) evalRule(record any, rule domain.Rule, env Env) (matched bool) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("rule evaluation: rule panicked", "component", "rules",
				"operator", rule.Operator, "field", rule.Field, "panic", p)
			matched = false
		}
	}()
	if rule.Field == "" {
		logger.Warn("rule evaluation: rule has no field", "component", "rules", "operator", rule.Operator)
		return false
	}
	r.mu.RLock()
	op, ok := r.ops[rule.Operator]
	r.mu.RUnlock()
	if !ok {
		logger.Warn("rule evaluation: unknown operator", "component", "rules",
			"operator", rule.Operator, "field", rule.Field)
		return false
	}

	actual := Lookup(record, rule.Field)
	if IsUndefined(actual) && !op.acceptsUndefined {
		return false
	}

	return op.fn(actual, rule.Value, env)
}

var defaultRegistry = Base()

// Evaluate runs rules against record with the base operator set.
func Evaluate(record any, rules []domain.Rule, mode domain.MatchMode) bool {
	return defaultRegistry.Evaluate(record, rules, mode)
}
