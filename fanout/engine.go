// Package fanout implements the subprocess/worker fan-out story of spec
// §5 and §4.7 ("the dispatcher is designed to be re-activated in the
// child: the enclosing run id, the backend URI, the set of already-
// wrapped module names, and the current cache are transported..."), as a
// pluggable Engine, adapted from the teacher's runtime/agent/engine
// abstraction (RegisterWorkflow/RegisterActivity/StartWorkflow) scaled
// down to the single operation spec.md actually needs: run one named Task
// in a worker, carrying the parent run's identity alongside the task input,
// and merge the task's accumulated cache back on join.
package fanout

import (
	"context"
	"encoding/json"

	"github.com/pypads-go/pypads/pyerrors"
	"github.com/pypads-go/pypads/runcache"
	"github.com/pypads-go/pypads/telemetry"
)

// TaskFunc is a unit of forked work. input/output are JSON payloads so
// every adapter (goroutine, Temporal activity, Nexus operation) can
// transport them uniformly, matching spec §5's "serialized at dispatch
// site, deserialized in child."
type TaskFunc func(ctx TaskContext, input json.RawMessage) (json.RawMessage, error)

// TaskContext is what a TaskFunc sees inside the worker: a context, the
// transported run id, a fresh run-scoped Cache the task accumulates into
// (merged back into the parent's cache on join, scenario S6), and
// observability handles.
type TaskContext interface {
	Context() context.Context
	RunID() string
	Cache() *runcache.Cache
	Logger() telemetry.Logger
}

// TaskRequest describes one fan-out dispatch: which registered Task to
// run, the parent run's identity and backend, the set of packages already
// activated in the parent, and the input payload. BackendURI and
// ActivatedPackages are carried to the worker, but Registry.Execute does
// not read them.
type TaskRequest struct {
	Task              string
	RunID             string
	BackendURI        string
	ActivatedPackages []string
	Input             json.RawMessage
}

// TaskResult is what a join receives back: the task's output payload and
// a snapshot of every run-cache entry the child accumulated, ready to be
// folded into the parent's cache via runcache.Cache.MergeRun (spec §5
// scenario S6: "the parent merges the cache into its own run scope").
type TaskResult struct {
	Output        json.RawMessage
	CacheSnapshot map[string]any
	Err           string
}

// Engine abstracts task registration and dispatch so adapters (in-process
// goroutines, Temporal, Nexus) can be swapped without the calling code
// changing, mirroring the teacher's Engine interface.
type Engine interface {
	// RegisterTask binds name to fn. Must be called before Dispatch for
	// that name in every process that may execute it (parent for inmem,
	// worker process for temporal/nexus).
	RegisterTask(name string, fn TaskFunc) error

	// Dispatch runs req.Task with req.Input, waits for completion, and
	// returns its result including the accumulated cache snapshot.
	Dispatch(ctx context.Context, req TaskRequest) (TaskResult, error)
}

// Registry is the shared bookkeeping every adapter embeds: a name→TaskFunc
// table plus the common "build a TaskContext, run the task, snapshot its
// cache" execution helper so each adapter only has to implement how the
// call reaches the worker, not what happens once it is there.
type Registry struct {
	tasks map[string]TaskFunc
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]TaskFunc)}
}

// Register binds name to fn, overwriting any previous registration —
// adapters running in a long-lived worker process may re-register on
// restart.
func (r *Registry) Register(name string, fn TaskFunc) {
	r.tasks = setTask(r.tasks, name, fn)
}

func setTask(tasks map[string]TaskFunc, name string, fn TaskFunc) map[string]TaskFunc {
	if tasks == nil {
		tasks = make(map[string]TaskFunc)
	}
	tasks[name] = fn
	return tasks
}

// Lookup returns the Task registered under name.
func (r *Registry) Lookup(name string) (TaskFunc, bool) {
	fn, ok := r.tasks[name]
	return fn, ok
}

// Tasks returns a shallow copy of every registered name→TaskFunc entry,
// used by worker-side adapter code to bind each task as a native
// activity/operation handler.
func (r *Registry) Tasks() map[string]TaskFunc {
	out := make(map[string]TaskFunc, len(r.tasks))
	for k, v := range r.tasks {
		out[k] = v
	}
	return out
}

// Execute runs the named task against req inside a freshly built
// TaskContext, returning a TaskResult whose CacheSnapshot is ready to
// merge. Every adapter's worker-side code calls this once it has
// deserialized a TaskRequest, so the "execute, snapshot" sequence is
// implemented exactly once. Execute does not re-activate tracking in the
// worker: it builds a fresh Cache keyed by req.RunID, runs the task, and
// leaves req.BackendURI and req.ActivatedPackages unused.
func (r *Registry) Execute(ctx context.Context, req TaskRequest, logger telemetry.Logger) TaskResult {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	fn, ok := r.Lookup(req.Task)
	if !ok {
		err := pyerrors.Newf(pyerrors.KindLoggerNotFound, "fanout: task %q not registered", req.Task)
		return TaskResult{Err: err.Error()}
	}

	cache := runcache.New()
	tctx := &taskContext{ctx: ctx, runID: req.RunID, cache: cache, logger: logger}

	output, err := fn(tctx, req.Input)
	result := TaskResult{Output: output, CacheSnapshot: cache.Run(req.RunID).Snapshot()}
	if err != nil {
		result.Err = err.Error()
	}
	return result
}

type taskContext struct {
	ctx    context.Context
	runID  string
	cache  *runcache.Cache
	logger telemetry.Logger
}

func (t *taskContext) Context() context.Context { return t.ctx }
func (t *taskContext) RunID() string            { return t.runID }
func (t *taskContext) Cache() *runcache.Cache   { return t.cache }
func (t *taskContext) Logger() telemetry.Logger { return t.logger }

// MergeResult folds result's cache snapshot into parent's runID scope
// (spec §5 scenario S6), returning result.Output/Err
// unwrapped for the caller.
func MergeResult(parent *runcache.Cache, runID string, result TaskResult) (json.RawMessage, error) {
	if len(result.CacheSnapshot) > 0 {
		child := runcache.New()
		run := child.Run(runID)
		for k, v := range result.CacheSnapshot {
			run.Add(k, v)
		}
		parent.MergeRun(runID, child, runID)
	}
	if result.Err != "" {
		return result.Output, pyerrors.New(pyerrors.KindTargetFailure, result.Err)
	}
	return result.Output, nil
}
