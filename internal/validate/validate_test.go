package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bindform/internal/ir"
)

func nonEmpty(v ir.Value) bool {
	s, ok := v.(ir.String)
	return ok && s != ""
}

func TestValidateWithoutRuleIsValid(t *testing.T) {
	v := New(nil, nil)
	assert.True(t, v.Validate("anything", ir.Null{}))
	assert.False(t, v.Has("anything"))
}

func TestValidateFailureCallsOnFail(t *testing.T) {
	type failure struct {
		path  string
		value ir.Value
	}
	var failures []failure
	v := New(map[string]Rule{"email": nonEmpty}, func(p string, val ir.Value) {
		failures = append(failures, failure{p, val})
	})

	assert.True(t, v.Validate("email", ir.String("a@b.c")))
	assert.Empty(t, failures)

	assert.False(t, v.Validate("email", ir.String("")))
	require.Len(t, failures, 1)
	assert.Equal(t, "email", failures[0].path)
	assert.Equal(t, ir.String(""), failures[0].value)
}

func TestValidateAllStopsAtFirstFailure(t *testing.T) {
	calls := 0
	v := New(map[string]Rule{
		"a": nonEmpty,
		"b": func(ir.Value) bool { calls++; return true },
	}, nil)

	ok := v.ValidateAll([]Reading{
		{Path: "a", Value: ir.String("")},
		{Path: "b", Value: ir.String("x")},
	})
	assert.False(t, ok)
	assert.Equal(t, 0, calls)

	ok = v.ValidateAll([]Reading{
		{Path: "a", Value: ir.String("x")},
		{Path: "b", Value: ir.String("x")},
	})
	assert.True(t, ok)
	assert.Equal(t, 1, calls)
}

func TestNilValidator(t *testing.T) {
	var v *Validator
	assert.True(t, v.Validate("a", ir.Null{}))
	assert.Nil(t, v.Paths())
}

func TestMergeAndPaths(t *testing.T) {
	always := func(ir.Value) bool { return true }
	never := func(ir.Value) bool { return false }

	merged := Merge(map[string]Rule{"a": always, "b": always}, map[string]Rule{"b": never})
	v := New(merged, nil)

	assert.Equal(t, []string{"a", "b"}, v.Paths())
	assert.True(t, v.Validate("a", ir.Null{}))
	assert.False(t, v.Validate("b", ir.Null{}))
}
