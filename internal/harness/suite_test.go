package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755))
	single := filepath.Join(dir, "notes.txt")

	files, err := FindScenarios([]string{dir, single})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		single,
	}, files)

	_, err = FindScenarios([]string{filepath.Join(dir, "missing")})
	var nf *ScenarioNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunSuiteOverTestdata(t *testing.T) {
	result, err := RunSuite(context.Background(), []string{filepath.Join("testdata", "scenarios")}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Passed)
	assert.True(t, result.Pass(), "failures: %+v", result.Failures)
	assert.Len(t, result.Results, 3)
}

func TestRunSuiteCountsLoadFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [unclosed"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "failing.yaml"), []byte(`
name: failing
form: <form id="f"><input name="a"></form>
steps: [{type: wait}]
assertions: [{type: history_count, count: 5}]
`), 0o644))

	result, err := RunSuite(context.Background(), []string{dir}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Failed)
	assert.False(t, result.Pass())
	require.Len(t, result.Failures, 2)
	assert.Contains(t, result.Failures[0].Errors[0], "failed to load scenario")
	assert.Equal(t, "failing", result.Failures[1].Scenario)
}
