package fanout_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypads-go/pypads/fanout"
	"github.com/pypads-go/pypads/runcache"
)

// TestExecuteRoundTripsInputAndOutputAsJSON validates testable property #5
// (spec §8): a task's input is transported and decoded intact, and its
// output is returned intact, across the serialize/deserialize boundary.
func TestExecuteRoundTripsInputAndOutputAsJSON(t *testing.T) {
	reg := fanout.NewRegistry()
	reg.Register("double", func(ctx fanout.TaskContext, input json.RawMessage) (json.RawMessage, error) {
		var n int
		require.NoError(t, json.Unmarshal(input, &n))
		return json.Marshal(n * 2)
	})

	input, err := json.Marshal(21)
	require.NoError(t, err)

	result := reg.Execute(context.Background(), fanout.TaskRequest{Task: "double", RunID: "run-1", Input: input}, nil)
	require.Empty(t, result.Err)

	var got int
	require.NoError(t, json.Unmarshal(result.Output, &got))
	assert.Equal(t, 42, got)
}

func TestExecuteReportsUnknownTask(t *testing.T) {
	reg := fanout.NewRegistry()
	result := reg.Execute(context.Background(), fanout.TaskRequest{Task: "missing", RunID: "run-1"}, nil)
	assert.NotEmpty(t, result.Err)
}

// TestMergeResultFoldsChildCacheIntoParentRunScope validates scenario S6
// (spec §8): after a fan-out task returns, the parent's cache observes
// every entry the child accumulated under the same run scope.
func TestMergeResultFoldsChildCacheIntoParentRunScope(t *testing.T) {
	reg := fanout.NewRegistry()
	reg.Register("accumulate", func(ctx fanout.TaskContext, input json.RawMessage) (json.RawMessage, error) {
		ctx.Cache().Run(ctx.RunID()).Add("seen/worker-a", true)
		return json.Marshal("ok")
	})

	result := reg.Execute(context.Background(), fanout.TaskRequest{Task: "accumulate", RunID: "run-1"}, nil)
	require.Empty(t, result.Err)

	parent := runcache.New()
	output, err := fanout.MergeResult(parent, "run-1", result)
	require.NoError(t, err)

	var decoded string
	require.NoError(t, json.Unmarshal(output, &decoded))
	assert.Equal(t, "ok", decoded)

	assert.True(t, parent.Run("run-1").Exists("seen/worker-a"))
}

func TestMergeResultPropagatesTaskFailure(t *testing.T) {
	reg := fanout.NewRegistry()
	reg.Register("fail", func(ctx fanout.TaskContext, input json.RawMessage) (json.RawMessage, error) {
		return nil, assertErr{}
	})

	result := reg.Execute(context.Background(), fanout.TaskRequest{Task: "fail", RunID: "run-1"}, nil)
	require.NotEmpty(t, result.Err)

	parent := runcache.New()
	_, err := fanout.MergeResult(parent, "run-1", result)
	assert.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
