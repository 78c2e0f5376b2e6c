package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/bindform/internal/dom"
	"github.com/roach88/bindform/internal/form"
	"github.com/roach88/bindform/internal/ir"
	"github.com/roach88/bindform/internal/objpath"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		buf.Write(FormatTrace(e.Trace))
	}
	return buf.String()
}

// AssertionContext gives field assertions access to the document.
type AssertionContext struct {
	Doc   *dom.Document
	Class string // validation class checked by field assertions
}

// assertObject compares the value at Path (the whole object when empty)
// with Expect. A missing path compares as null.
func assertObject(obj ir.Object, a Assertion) error {
	want, err := ir.FromGo(a.Expect)
	if err != nil {
		return fmt.Errorf("object assertion: expect: %w", err)
	}

	var got ir.Value = obj
	if a.Path != "" {
		v, ok := objpath.Get(obj, a.Path)
		if !ok {
			v = ir.Null{}
		}
		got = v
	}
	if ir.Equal(got, want) {
		return nil
	}

	where := "object"
	if a.Path != "" {
		where = a.Path
	}
	return &AssertionError{
		Type:     AssertObject,
		Expected: fmt.Sprintf("%s = %s", where, canonical(want)),
		Actual:   fmt.Sprintf("%s = %s", where, canonical(got)),
	}
}

// assertField checks what a field shows, and optionally its validation
// class.
func assertField(actx *AssertionContext, a Assertion) error {
	if actx == nil || actx.Doc == nil {
		return fmt.Errorf("field assertion requires a document")
	}
	fields := actx.Doc.FieldsNamed(a.Path)
	if len(fields) == 0 {
		return &AssertionError{
			Type:     AssertField,
			Expected: fmt.Sprintf("field %q", a.Path),
			Actual:   "no such field",
		}
	}

	if a.Expect != nil {
		want, err := ir.FromGo(a.Expect)
		if err != nil {
			return fmt.Errorf("field assertion: expect: %w", err)
		}
		got := FieldState(fields)
		if !ir.Equal(got, want) {
			return &AssertionError{
				Type:     AssertField,
				Expected: fmt.Sprintf("field %q shows %s", a.Path, canonical(want)),
				Actual:   fmt.Sprintf("field %q shows %s", a.Path, canonical(got)),
			}
		}
	}

	if a.Invalid != nil {
		got := fields[0].HasClass(actx.Class)
		if got != *a.Invalid {
			return &AssertionError{
				Type:     AssertField,
				Expected: fmt.Sprintf("field %q invalid=%t", a.Path, *a.Invalid),
				Actual:   fmt.Sprintf("field %q invalid=%t", a.Path, got),
			}
		}
	}
	return nil
}

// FieldState reads what a group of same-named fields shows: a checkbox's
// checked state, the checked radio value (null if none), a multiple
// selection, or the value of the first field.
func FieldState[F form.Field](fields []F) ir.Value {
	if len(fields) == 0 {
		return ir.Null{}
	}
	first := fields[0]
	switch first.Kind() {
	case form.KindCheckbox:
		return ir.Bool(first.Checked())
	case form.KindRadio:
		for _, f := range fields {
			if f.Kind() == form.KindRadio && f.Checked() {
				return ir.String(f.Value())
			}
		}
		return ir.Null{}
	case form.KindSelectMultiple:
		return ir.Strings(first.Values()...)
	default:
		return ir.String(first.Value())
	}
}

func assertHistoryCount(result *Result, a Assertion) error {
	if len(result.History) == a.Count {
		return nil
	}
	ids := make([]string, len(result.History))
	for i, m := range result.History {
		ids[i] = m.ID
	}
	return &AssertionError{
		Type:     AssertHistoryCount,
		Expected: fmt.Sprintf("%d history entries", a.Count),
		Actual:   fmt.Sprintf("%d entries %v", len(result.History), ids),
	}
}

// matchEvent reports whether e is the hook named by a, restricted to
// a.Path and a.Expect when they are set.
func matchEvent(e TraceEvent, a Assertion) (bool, error) {
	if e.Hook != a.Hook {
		return false, nil
	}
	if a.Path != "" && e.Path != a.Path {
		return false, nil
	}
	if a.Expect == nil {
		return true, nil
	}
	if s, ok := a.Expect.(string); ok && (e.Hook == HookStep || e.Hook == HookAfterSubmit) {
		return e.Value == s, nil
	}
	want, err := ir.FromGo(a.Expect)
	if err != nil {
		return false, err
	}
	return e.Value == canonical(want), nil
}

// assertTraceContains checks that the trace holds a matching event.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, e := range trace {
		ok, err := matchEvent(e, a)
		if err != nil {
			return fmt.Errorf("trace_contains: expect: %w", err)
		}
		if ok {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeMatch(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceCount checks that exactly Count events match.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, e := range trace {
		ok, err := matchEvent(e, a)
		if err != nil {
			return fmt.Errorf("trace_count: expect: %w", err)
		}
		if ok {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, describeMatch(a)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func describeMatch(a Assertion) string {
	desc := a.Hook
	if a.Path != "" {
		desc += " " + a.Path
	}
	if a.Expect != nil {
		desc += fmt.Sprintf(" %v", a.Expect)
	}
	return desc
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertObject:
			err = assertObject(result.Object, a)
		case AssertField:
			err = assertField(actx, a)
		case AssertHistoryCount:
			err = assertHistoryCount(result, a)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
