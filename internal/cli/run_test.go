package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bindform/internal/harness"
)

const passingScenario = `
name: passing
form: <form id="p"><input name="name"></form>
object: { name: Ana }
steps:
  - type: type
    field: name
    text: Bob
  - type: wait
assertions:
  - type: object
    expect: { name: Bob }
`

const failingScenario = `
name: failing
form: <form id="f"><input name="name"></form>
object: { name: Ana }
steps:
  - type: wait
assertions:
  - type: object
    path: name
    expect: Zed
`

var harnessScenarios = filepath.Join("..", "harness", "testdata", "scenarios")

func TestRunScenarioDirectory(t *testing.T) {
	stdout, _, err := execute(t, "run", harnessScenarios)
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ "+filepath.Join(harnessScenarios, "profile_edit.yaml"))
	assert.Contains(t, stdout, "Summary: 3 passed, 0 failed, 3 total")
	assert.Contains(t, stdout, "✓ All scenarios passed")
}

func TestRunReportsFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a_pass.yaml", passingScenario)
	failing := writeFile(t, dir, "b_fail.yaml", failingScenario)

	stdout, _, err := execute(t, "run", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, stdout, "✗ "+failing)
	assert.Contains(t, stdout, "Assertion failed: object")
	assert.Contains(t, stdout, "Summary: 1 passed, 1 failed, 2 total")
}

func TestRunJSONOutput(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pass.yaml", passingScenario)
	writeFile(t, dir, "fail.yaml", failingScenario)

	stdout, _, err := execute(t, "run", "--format", "json", dir)
	require.Error(t, err)

	var resp struct {
		Status string              `json:"status"`
		Data   harness.SuiteResult `json:"data"`
		Error  *CLIError           `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Failures, 1)
	assert.Equal(t, "failing", resp.Data.Failures[0].Scenario)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenarioFailed, resp.Error.Code)
}

func TestRunMissingPath(t *testing.T) {
	_, _, err := execute(t, "run", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario not found")
}

func TestRunEmptyDirectory(t *testing.T) {
	_, _, err := execute(t, "run", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no scenario files found")
}
