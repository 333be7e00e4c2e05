package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_ThreadsValueThroughSteps(t *testing.T) {
	addA := func(_ context.Context, input, _ JSON) (JSON, error) {
		out := deepCopy(input).(JSON)
		out["a"] = 1
		return out, nil
	}
	addB := func(_ context.Context, input, _ JSON) (JSON, error) {
		out := deepCopy(input).(JSON)
		out["b"] = 2
		return out, nil
	}

	result, err := Execute(context.Background(), []StepFunc{addA, addB}, JSON{"seed": true})
	require.NoError(t, err)
	assert.Equal(t, JSON{"seed": true, "a": 1, "b": 2}, result)
}

func TestExecute_ShortCircuitsOnErrorKey(t *testing.T) {
	failing := func(_ context.Context, _, _ JSON) (JSON, error) {
		return JSON{"error": "boom"}, nil
	}
	neverRuns := func(_ context.Context, input, _ JSON) (JSON, error) {
		t.Fatal("step after error should not run")
		return input, nil
	}

	result, err := Execute(context.Background(), []StepFunc{failing, neverRuns}, JSON{})
	require.NoError(t, err)
	assert.Equal(t, "boom", result["error"])
}

func TestExecute_ShortCircuitCopyIsNotAliased(t *testing.T) {
	original := JSON{"error": "boom", "nested": JSON{"x": 1}}
	step := func(_ context.Context, input, _ JSON) (JSON, error) { return input, nil }

	result, err := Execute(context.Background(), []StepFunc{step}, original)
	require.NoError(t, err)

	result["nested"].(JSON)["x"] = 999
	assert.Equal(t, 1, original["nested"].(JSON)["x"])
}

func TestExecute_NilResultStopsWithoutError(t *testing.T) {
	failing := func(_ context.Context, _, _ JSON) (JSON, error) { return nil, nil }
	result, err := Execute(context.Background(), []StepFunc{failing}, JSON{})
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestNewRequestContext_DefaultsEmptyObjects(t *testing.T) {
	ctx := NewRequestContext("", "", nil, nil, nil, nil)
	assert.Equal(t, "GET", ctx["method"])
	assert.Equal(t, "/", ctx["url"])
	assert.Equal(t, JSON{}, ctx["query"])
	assert.Equal(t, JSON{}, ctx["headers"])
}
