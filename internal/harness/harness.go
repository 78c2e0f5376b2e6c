package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/bindform/internal/dom"
	"github.com/roach88/bindform/internal/engine"
	"github.com/roach88/bindform/internal/form"
	"github.com/roach88/bindform/internal/ir"
	"github.com/roach88/bindform/internal/store"
	"github.com/roach88/bindform/internal/testutil"
	"github.com/roach88/bindform/internal/validate"
)

// Harness runs one scenario against a real session.
//
// Everything time-dependent is deterministic: timers run on a FakeClock
// advanced only by wait steps, history IDs come from a CountingGenerator
// ("entry-1", "entry-2", ...) and history lives in an in-memory backend.
// Identical scenarios therefore produce identical traces.
type Harness struct {
	doc     *dom.Document
	reg     *engine.Registry
	session *engine.Session
	clock   *testutil.FakeClock
	storage *store.Memory
	logger  *slog.Logger

	mu     sync.Mutex
	result *Result
	veto   bool
	fail   string
}

// Options tune a run.
type Options struct {
	// Logger receives engine logs. Nil discards them.
	Logger *slog.Logger
}

// Run executes a scenario with default options.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithOptions(context.Background(), scenario, Options{})
}

// RunWithOptions executes a scenario and returns the result.
//
// Execution flow:
//  1. Parse the form and bind it to the scenario object
//  2. Execute steps; failures are recorded and the run continues
//  3. Evaluate assertions against the final object, fields and trace
//
// The returned error covers setup problems only (bad form markup, rules
// that do not compile, a failed bind). Behavioral failures are reported
// through Result.
func RunWithOptions(ctx context.Context, scenario *Scenario, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	doc, err := dom.ParseString(scenario.Form)
	if err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	initial, err := ir.ObjectFromGo(scenario.Object)
	if err != nil {
		return nil, fmt.Errorf("failed to convert object: %w", err)
	}

	cfg, err := scenario.Config.EngineConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}
	if scenario.Rules != "" {
		inline, err := validate.CompileCUE(scenario.Rules)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rules: %w", err)
		}
		cfg.Validators = validate.Merge(cfg.Validators, inline)
	}

	h := &Harness{
		doc:     doc,
		reg:     engine.NewRegistry(logger),
		clock:   testutil.NewFakeClock(testutil.Epoch),
		storage: store.NewMemory(),
		logger:  logger,
		result:  NewResult(),
	}
	cfg.Storage = h.storage
	cfg.Clock = h.clock
	cfg.IDs = testutil.NewCountingGenerator("entry")
	cfg.Logger = logger
	cfg.Hooks = h.hooks()

	h.session, err = h.reg.Bind(ctx, doc, initial, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to bind form: %w", err)
	}
	defer h.session.Destroy()
	h.capture()

	for i, step := range scenario.Steps {
		h.record(HookStep, step.Type, step.label())
		err := h.execute(ctx, step)
		h.checkStepError(i, step, err)
		h.capture()
	}

	h.mu.Lock()
	result := h.result
	h.mu.Unlock()

	actx := &AssertionContext{Doc: doc, Class: cfg.ValidationClass}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// execute performs one step.
func (h *Harness) execute(ctx context.Context, step Step) error {
	switch step.Type {
	case StepType:
		return h.doc.Type(step.Field, step.Text)
	case StepCheck:
		return h.check(step)
	case StepSelect:
		return h.doc.Select(step.Field, step.Values...)
	case StepSet:
		v, err := ir.FromGo(step.Value)
		if err != nil {
			return err
		}
		_, err = h.session.SetField(step.Field, v)
		return err
	case StepImport:
		obj, err := ir.ObjectFromGo(step.Object)
		if err != nil {
			return err
		}
		_, err = h.session.Import(obj)
		return err
	case StepAppend:
		return h.doc.AppendHTML(step.HTML)
	case StepRemove:
		if h.doc.Remove(step.Field) == 0 {
			return fmt.Errorf("no field %q", step.Field)
		}
		return nil
	case StepWait:
		d := step.Duration
		if d == 0 {
			d = DefaultWait
		}
		h.clock.Advance(d)
		return nil
	case StepSubmit:
		return h.submit(ctx, step)
	case StepRestore:
		return h.session.RestoreHistory(step.Ref)
	case StepSave:
		_, _, err := h.session.SaveHistory(ctx)
		return err
	case StepUnbind:
		return h.reg.Unbind(h.doc)
	default:
		return fmt.Errorf("unknown step type %q", step.Type)
	}
}

// check ticks a checkbox, or picks a radio when the field is a radio
// group.
func (h *Harness) check(step Step) error {
	value := ""
	if step.Value != nil {
		value = ir.Stringify(mustValue(step.Value))
	}
	for _, f := range h.doc.FieldsNamed(step.Field) {
		if f.Kind() == form.KindRadio {
			return h.doc.Choose(step.Field, value)
		}
	}
	on := step.Checked == nil || *step.Checked
	return h.doc.Check(step.Field, value, on)
}

// submit dispatches the form's submit event, which the session handles
// like a browser submission.
func (h *Harness) submit(ctx context.Context, step Step) error {
	if h.session.Closed() {
		return &engine.Error{Code: engine.CodeNotBound, Op: "submit", Err: errors.New("form is not bound")}
	}
	h.mu.Lock()
	h.veto, h.fail = step.Veto, step.Fail
	h.mu.Unlock()

	h.doc.Submit(ctx)

	h.mu.Lock()
	h.veto, h.fail = false, ""
	h.mu.Unlock()
	return nil
}

func (h *Harness) checkStepError(i int, step Step, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case step.ExpectError == "" && err != nil:
		h.result.AddError(fmt.Sprintf("steps[%d] (%s): %v", i, step.Type, err))
	case step.ExpectError != "" && err == nil:
		h.result.AddError(fmt.Sprintf("steps[%d] (%s): expected error containing %q, got none", i, step.Type, step.ExpectError))
	case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
		h.result.AddError(fmt.Sprintf("steps[%d] (%s): expected error containing %q, got %q", i, step.Type, step.ExpectError, err))
	}
}

// capture snapshots the object and, while bound, the history.
func (h *Harness) capture() {
	obj := h.session.Export()
	entries := h.session.HistoryEntries()
	closed := h.session.Closed()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.Object = obj
	if !closed && entries != nil {
		h.result.History = entries
	}
}

// hooks records every engine hook into the trace.
func (h *Harness) hooks() engine.Hooks {
	return engine.Hooks{
		OnFieldChange: func(path string, v ir.Value) {
			h.record(HookFieldChange, path, canonical(v))
		},
		OnObjectUpdate: func(obj ir.Object) {
			h.record(HookObjectUpdate, "", canonical(obj))
		},
		OnValidationFail: func(path string, v ir.Value) {
			h.record(HookValidationFail, path, canonical(v))
		},
		OnBeforeSubmit: func(_ context.Context, obj ir.Object) bool {
			h.record(HookBeforeSubmit, "", canonical(obj))
			h.mu.Lock()
			defer h.mu.Unlock()
			return !h.veto
		},
		SubmissionHandler: func(_ context.Context, obj ir.Object) (any, error) {
			h.record(HookSubmit, "", canonical(obj))
			h.mu.Lock()
			defer h.mu.Unlock()
			if h.fail != "" {
				return nil, errors.New(h.fail)
			}
			return obj, nil
		},
		OnAfterSubmit: func(_ context.Context, _ any, err error, _ ir.Object) {
			label := "ok"
			if err != nil {
				label = "error: " + err.Error()
			}
			h.record(HookAfterSubmit, "", label)
		},
	}
}

func (h *Harness) record(hook, path, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.addTrace(hook, path, value)
}

// label describes a step for its trace marker.
func (st Step) label() string {
	switch st.Type {
	case StepType:
		return st.Field + "=" + canonical(ir.String(st.Text))
	case StepCheck:
		label := st.Field
		if st.Value != nil {
			label += "=" + ir.Stringify(mustValue(st.Value))
		}
		if st.Checked != nil && !*st.Checked {
			label += " off"
		}
		return label
	case StepSelect:
		return st.Field + "=" + canonical(ir.Strings(st.Values...))
	case StepSet:
		return st.Field + "=" + canonical(mustValue(st.Value))
	case StepImport:
		return canonical(mustValue(st.Object))
	case StepRemove:
		return st.Field
	case StepWait:
		d := st.Duration
		if d == 0 {
			d = DefaultWait
		}
		return d.String()
	case StepRestore:
		return st.Ref
	case StepSubmit:
		switch {
		case st.Veto:
			return "veto"
		case st.Fail != "":
			return "fail"
		}
	}
	return ""
}

// mustValue converts a YAML value, keeping a string rendering when the
// value cannot be represented.
func mustValue(raw any) ir.Value {
	v, err := ir.FromGo(raw)
	if err != nil {
		return ir.String(fmt.Sprint(raw))
	}
	return v
}

func canonical(v ir.Value) string {
	s, err := ir.CanonicalString(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return s
}
