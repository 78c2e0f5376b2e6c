package harness

import (
	"github.com/roach88/bindform/internal/history"
	"github.com/roach88/bindform/internal/ir"
)

// Trace event hooks. Step markers use HookStep with the step type as Path.
const (
	HookStep           = "step"
	HookFieldChange    = "field_change"
	HookObjectUpdate   = "object_update"
	HookValidationFail = "validation_fail"
	HookBeforeSubmit   = "before_submit"
	HookSubmit         = "submit"
	HookAfterSubmit    = "after_submit"
)

// TraceEvent is one hook call (or step marker) observed during a run.
// Value holds canonical JSON, or a plain label for step markers and
// after_submit.
type TraceEvent struct {
	Seq   int64  `json:"seq"`
	Hook  string `json:"hook"`
	Path  string `json:"path,omitempty"`
	Value string `json:"value,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step behaved and every assertion held.
	Pass bool `json:"pass"`

	// Trace lists hooks and step markers in dispatch order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds step and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Object is the bound object after the last step.
	Object ir.Object `json:"object"`

	// History is the session's history as of the last step that ran
	// while the form was bound.
	History []history.Meta `json:"history"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Object:  ir.Object{},
		History: []history.Meta{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addTrace appends an event with the next sequence number.
func (r *Result) addTrace(hook, path, value string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:   int64(len(r.Trace) + 1),
		Hook:  hook,
		Path:  path,
		Value: value,
	})
}
