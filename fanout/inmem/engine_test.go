package inmem_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypads-go/pypads/fanout"
	"github.com/pypads-go/pypads/fanout/inmem"
)

func TestDispatchRunsRegisteredTaskAndReturnsCache(t *testing.T) {
	e := inmem.New(4, nil)
	require.NoError(t, e.RegisterTask("square", func(ctx fanout.TaskContext, input json.RawMessage) (json.RawMessage, error) {
		var n int
		require.NoError(t, json.Unmarshal(input, &n))
		ctx.Cache().Run(ctx.RunID()).Add("squared", n*n)
		return json.Marshal(n * n)
	}))

	input, err := json.Marshal(6)
	require.NoError(t, err)

	result, err := e.Dispatch(context.Background(), fanout.TaskRequest{Task: "square", RunID: "run-1", Input: input})
	require.NoError(t, err)

	var got int
	require.NoError(t, json.Unmarshal(result.Output, &got))
	assert.Equal(t, 36, got)
	assert.Equal(t, 36, result.CacheSnapshot["squared"])
}

func TestDispatchSurfacesUnregisteredTaskAsResultError(t *testing.T) {
	e := inmem.New(0, nil)
	result, err := e.Dispatch(context.Background(), fanout.TaskRequest{Task: "missing", RunID: "run-1"})
	require.NoError(t, err, "Dispatch itself does not error; the failure is carried in TaskResult.Err")
	assert.NotEmpty(t, result.Err)
}

// TestDispatchRespectsContextCancellationWhilePoolIsSaturated validates
// that a Dispatch call waiting for a free worker slot unblocks as soon as
// its own context is cancelled, rather than waiting indefinitely behind an
// occupied pool.
func TestDispatchRespectsContextCancellationWhilePoolIsSaturated(t *testing.T) {
	e := inmem.New(1, nil)
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, e.RegisterTask("hold", func(ctx fanout.TaskContext, input json.RawMessage) (json.RawMessage, error) {
		close(started)
		<-release
		return json.Marshal("done")
	}))
	defer close(release)

	go func() {
		_, _ = e.Dispatch(context.Background(), fanout.TaskRequest{Task: "hold", RunID: "run-1"})
	}()
	<-started // the only pool slot is now occupied

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Dispatch(ctx, fanout.TaskRequest{Task: "hold", RunID: "run-2"})
	assert.Error(t, err, "waiting for a pool slot must still respect context cancellation")
}
