// Package validate holds the per-path predicate registry consulted by the
// sync engine before a value crosses between object and form.
package validate

import (
	"sort"

	"github.com/roach88/bindform/internal/ir"
)

// Rule reports whether a value is acceptable for its path.
type Rule func(ir.Value) bool

// FailFunc is notified of each failed validation.
type FailFunc func(path string, value ir.Value)

// Reading is one field's current value, as collected for ValidateAll.
type Reading struct {
	Path  string
	Value ir.Value
}

// Validator maps bound paths to rules. Rules are fixed at construction.
//
// Thread-safety: safe for concurrent use once constructed.
type Validator struct {
	rules  map[string]Rule
	onFail FailFunc
}

// New creates a validator over rules. A nil onFail is allowed.
func New(rules map[string]Rule, onFail FailFunc) *Validator {
	copied := make(map[string]Rule, len(rules))
	for p, r := range rules {
		if r != nil {
			copied[p] = r
		}
	}
	return &Validator{rules: copied, onFail: onFail}
}

// Validate runs the rule for path. A path without a rule is valid.
// On failure onFail is called before returning false.
func (v *Validator) Validate(path string, value ir.Value) bool {
	if v == nil {
		return true
	}
	rule, ok := v.rules[path]
	if !ok || rule(value) {
		return true
	}
	if v.onFail != nil {
		v.onFail(path, value)
	}
	return false
}

// ValidateAll validates readings in order and stops at the first failure.
func (v *Validator) ValidateAll(readings []Reading) bool {
	for _, r := range readings {
		if !v.Validate(r.Path, r.Value) {
			return false
		}
	}
	return true
}

// Has reports whether path has a rule.
func (v *Validator) Has(path string) bool {
	if v == nil {
		return false
	}
	_, ok := v.rules[path]
	return ok
}

// Paths returns the paths with rules, sorted.
func (v *Validator) Paths() []string {
	if v == nil {
		return nil
	}
	out := make([]string, 0, len(v.rules))
	for p := range v.rules {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Merge returns a rule set containing a's rules overridden by b's.
func Merge(a, b map[string]Rule) map[string]Rule {
	out := make(map[string]Rule, len(a)+len(b))
	for p, r := range a {
		out[p] = r
	}
	for p, r := range b {
		out[p] = r
	}
	return out
}
