package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bindform/internal/ir"
)

func parse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src), "")
	require.NoError(t, err)
	return s
}

func run(t *testing.T, src string) *Result {
	t.Helper()
	result, err := Run(parse(t, src))
	require.NoError(t, err)
	return result
}

func hooks(result *Result, hook string) []TraceEvent {
	var out []TraceEvent
	for _, e := range result.Trace {
		if e.Hook == hook {
			out = append(out, e)
		}
	}
	return out
}

func TestGoldenScenarios(t *testing.T) {
	for _, name := range []string{"profile_edit", "validation_blocks", "history_submit"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRunIsDeterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "history_submit.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, FormatTrace(first.Trace), FormatTrace(second.Trace))
	assert.Equal(t, first.History, second.History)
	require.Len(t, first.History, 2)
	assert.Equal(t, "entry-1", first.History[0].ID)
	assert.Equal(t, "2024-01-01T00:00:00.400Z", first.History[0].Timestamp)
}

func TestRunObserverBindsAppendedField(t *testing.T) {
	result := run(t, `
name: observer
form: |
  <form id="dyn"><input name="name"></form>
object: { name: Ana, extra: x }
steps:
  - type: append
    html: <input name="extra">
  - type: wait
  - type: type
    field: extra
    text: "y"
  - type: wait
  - type: remove
    field: name
  - type: wait
  - type: type
    field: name
    text: gone
    expect_error: no field
assertions:
  - type: object
    expect: { name: Ana, extra: "y" }
  - type: trace_contains
    hook: field_change
    path: extra
    expect: "y"
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunRadioAndSelects(t *testing.T) {
	result := run(t, `
name: choices
form: |
  <form id="order">
    <input type="radio" name="size" value="s">
    <input type="radio" name="size" value="m">
    <select name="country"><option value="fr">France</option><option value="ch" selected>Switzerland</option></select>
    <select name="colors" multiple><option value="red">Red</option><option value="blue">Blue</option></select>
  </form>
object: { size: s, country: fr, colors: [red] }
steps:
  - type: check
    field: size
    value: m
  - type: select
    field: country
    values: [ch]
  - type: select
    field: colors
    values: [red, blue]
  - type: wait
assertions:
  - type: object
    expect: { size: m, country: ch, colors: [red, blue] }
  - type: field
    path: size
    expect: m
  - type: field
    path: colors
    expect: [red, blue]
  - type: trace_count
    hook: field_change
    count: 3
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunSetAndImportRecordOnce(t *testing.T) {
	result := run(t, `
name: writes
form: |
  <form id="w"><input name="name"><input name="age"></form>
object: { name: Ana }
steps:
  - type: set
    field: name
    value: Zed
  - type: import
    object: { age: 3 }
  - type: wait
assertions:
  - type: object
    expect: { name: Zed, age: 3 }
  - type: field
    path: name
    expect: Zed
  - type: field
    path: age
    expect: "3"
  - type: trace_count
    hook: field_change
    count: 0
  - type: trace_count
    hook: object_update
    count: 2
  - type: history_count
    count: 1
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunUnbindStopsSync(t *testing.T) {
	result := run(t, `
name: unbind
form: |
  <form id="u"><input name="name"></form>
object: { name: Ana }
steps:
  - type: unbind
  - type: set
    field: name
    value: X
    expect_error: NOT_BOUND
  - type: type
    field: name
    text: typed
  - type: wait
  - type: submit
    expect_error: not bound
  - type: unbind
    expect_error: NOT_BOUND
assertions:
  - type: object
    path: name
    expect: Ana
  - type: trace_count
    hook: field_change
    count: 0
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunSubmitOutcomes(t *testing.T) {
	result := run(t, `
name: submit
form: |
  <form id="s"><input name="name"></form>
object: { name: Ana }
rules: |
  name: =~"^[A-Z]"
steps:
  - type: submit
    fail: boom
  - type: type
    field: name
    text: bob
  - type: wait
  - type: submit
assertions:
  - type: trace_contains
    hook: after_submit
    expect: "error: boom"
  - type: trace_count
    hook: before_submit
    count: 1
  - type: trace_count
    hook: validation_fail
    path: name
    count: 2
  - type: field
    path: name
    invalid: true
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunRecordsStepAndAssertionFailures(t *testing.T) {
	result := run(t, `
name: failing
form: |
  <form id="f"><input name="name"></form>
steps:
  - type: type
    field: missing
    text: x
  - type: restore
    ref: entry-9
assertions:
  - type: object
    path: name
    expect: Ana
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "steps[0] (type)")
	assert.Contains(t, result.Errors[1], "steps[1] (restore)")
	assert.Contains(t, result.Errors[2], "Assertion failed: object")
	assert.Equal(t, ir.Object{}, result.Object)
}

func TestRunSetupErrors(t *testing.T) {
	s := parse(t, `
name: bad_rules
form: <form id="x"><input name="a"></form>
rules: "a: string &"
steps: [{ type: wait }]
assertions: [{ type: history_count, count: 0 }]
`)
	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile rules")
}

func TestRunDisabledHistory(t *testing.T) {
	result := run(t, `
name: no_history
form: <form id="nh"><input name="a"></form>
config:
  history:
    enabled: false
steps:
  - type: type
    field: a
    text: x
  - type: wait
  - type: save
assertions:
  - type: history_count
    count: 0
  - type: object
    path: a
    expect: x
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, hooks(result, HookObjectUpdate), 1)
}
