// Package temporal adapts fanout.Engine onto go.temporal.io/sdk for
// durable, real subprocess/worker-fleet fan-out: the Task is registered as
// a Temporal activity, dispatched by starting a single-activity workflow
// whose input is the serialized fanout.TaskRequest, giving spec §5's
// "enclosing run id... are transported" story a durable, retryable
// transport instead of a bare goroutine.
package temporal

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	sdkopentelemetry "go.temporal.io/sdk/contrib/opentelemetry"

	"github.com/pypads-go/pypads/fanout"
	"github.com/pypads-go/pypads/telemetry"
)

const fanoutWorkflowName = "pypads.fanout.dispatch"
const fanoutActivityPrefix = "pypads.fanout.task."

// Options configures the Temporal-backed Engine.
type Options struct {
	Client    client.Client
	TaskQueue string
	Logger    telemetry.Logger
}

// Engine dispatches fanout.TaskRequests as Temporal workflow executions and
// runs registered tasks as Temporal activities.
type Engine struct {
	*fanout.Registry
	client    client.Client
	taskQueue string
	logger    telemetry.Logger
}

// New constructs a Temporal-backed Engine. The caller owns the Client's
// lifecycle (including closing it).
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Engine{Registry: fanout.NewRegistry(), client: opts.Client, taskQueue: opts.TaskQueue, logger: logger}
}

func (e *Engine) RegisterTask(name string, fn fanout.TaskFunc) error {
	e.Register(name, fn)
	return nil
}

// Dispatch starts the fan-out workflow and blocks for its result.
func (e *Engine) Dispatch(ctx context.Context, req fanout.TaskRequest) (fanout.TaskResult, error) {
	opts := client.StartWorkflowOptions{
		ID:        "pypads-fanout-" + req.RunID + "-" + req.Task,
		TaskQueue: e.taskQueue,
	}
	run, err := e.client.ExecuteWorkflow(ctx, opts, fanoutWorkflowName, req)
	if err != nil {
		return fanout.TaskResult{}, err
	}
	var result fanout.TaskResult
	if err := run.Get(ctx, &result); err != nil {
		return fanout.TaskResult{}, err
	}
	return result, nil
}

// fanoutWorkflow is the single-activity workflow registered with the
// worker: it schedules the one activity matching req.Task and returns its
// TaskResult, deterministic and replay-safe since it does no I/O of its
// own.
func fanoutWorkflow(ctx workflow.Context, req fanout.TaskRequest) (fanout.TaskResult, error) {
	activityOpts := workflow.ActivityOptions{StartToCloseTimeout: 10 * time.Minute}
	ctx = workflow.WithActivityOptions(ctx, activityOpts)
	var result fanout.TaskResult
	err := workflow.ExecuteActivity(ctx, fanoutActivityPrefix+req.Task, req).Get(ctx, &result)
	return result, err
}

// RunWorker registers the fan-out workflow and every task bound to reg as
// Temporal activities, then blocks serving wq until ctx is cancelled —
// the worker process reconstructs a Registry from its own init()-time task
// registrations, then RunWorker makes those reachable from the parent's
// Dispatch calls. Tracking itself is not re-activated in the worker.
func RunWorker(ctx context.Context, c client.Client, taskQueue string, reg *fanout.Registry, logger telemetry.Logger) error {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(fanoutWorkflow, workflow.RegisterOptions{Name: fanoutWorkflowName})

	for name, fn := range reg.Tasks() {
		activityFn := bindActivity(fn)
		w.RegisterActivityWithOptions(activityFn, activity.RegisterOptions{Name: fanoutActivityPrefix + name})
	}

	stop := make(chan interface{})
	go func() {
		<-ctx.Done()
		logger.Info(ctx, "fanout worker stopping", "reason", ctx.Err())
		close(stop)
	}()
	return w.Run(stop)
}

// bindActivity adapts a fanout.TaskFunc into a Temporal activity function:
// the activity builds a TaskContext from the activity-scoped context and
// delegates to Registry.Execute's single implementation of the
// run/snapshot sequence.
func bindActivity(fn fanout.TaskFunc) func(ctx context.Context, req fanout.TaskRequest) (fanout.TaskResult, error) {
	return func(ctx context.Context, req fanout.TaskRequest) (fanout.TaskResult, error) {
		reg := fanout.NewRegistry()
		reg.Register(req.Task, fn)
		return reg.Execute(ctx, req, telemetry.NewNoopLogger()), nil
	}
}

// TracingWorkerOptions builds worker.Options instrumented with
// OpenTelemetry via the SDK's official contrib interceptor, so fan-out
// activity spans join the same trace as the dispatcher phase spans
// (telemetry.Tracer).
func TracingWorkerOptions() (worker.Options, error) {
	tracingInterceptor, err := sdkopentelemetry.NewTracingInterceptor(sdkopentelemetry.TracerOptions{})
	if err != nil {
		return worker.Options{}, err
	}
	return worker.Options{Interceptors: []interceptor.WorkerInterceptor{tracingInterceptor}}, nil
}

var _ fanout.Engine = (*Engine)(nil)
