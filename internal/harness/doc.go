// Package harness runs scripted binding scenarios against a real session.
//
// A scenario binds a form to an object, drives it the way a user and a
// caller would, and checks the outcome. The hooks fired along the way form
// a trace that is compared against golden files.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: profile_edit
//	description: "Typing commits after the debounce window"
//	form: |
//	  <form id="profile">
//	    <input name="field1">
//	    <input type="checkbox" name="field2">
//	  </form>
//	object: { field1: "", field2: false }
//	config:
//	  debounce: 300ms
//	rules: |
//	  field1: =~"^[a-z]*$"
//	steps:
//	  - type: type
//	    field: field1
//	    text: hello
//	  - type: wait
//	    duration: 1s
//	assertions:
//	  - type: object
//	    path: field1
//	    expect: hello
//	  - type: trace_count
//	    hook: field_change
//	    count: 1
//
// # Step Types
//
//   - type: set a text field and fire input
//   - check: tick a checkbox (checked: false unticks) or pick a radio
//   - select: set a select's selection and fire change
//   - set, import: write through the session
//   - append, remove: change the form's field set
//   - wait: advance the fake clock
//   - submit: dispatch the submit event (veto, fail shape the hooks)
//   - restore, save: history operations
//   - unbind: destroy the session
//
// # Assertion Types
//
//   - object: the bound object, or the value at path
//   - field: what a field shows, and whether it carries the invalid class
//   - history_count: number of history entries
//   - trace_count: number of matching hook events
//   - trace_contains: at least one matching hook event
//
// # Deterministic Testing
//
// Timers run on testutil.FakeClock and only move on wait steps. History
// IDs come from testutil.CountingGenerator, so entries are "entry-1",
// "entry-2", and so on. History lives in store.Memory.
//
// This ensures identical traces across runs for golden file comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/profile_edit.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
