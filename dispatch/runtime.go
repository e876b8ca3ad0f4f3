// Package dispatch implements the Dispatcher Runtime (spec §4.7, C7): the
// actual call-time behavior a wrap.Engine dispatcher built by Runtime.Builder
// runs on every invocation — recursion control, the pre/next/post callback
// chain, the duplicate-hook guard, phase timing, and the failure/retry
// policy of spec §7-8.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/pypads-go/pypads/config"
	"github.com/pypads-go/pypads/events"
	"github.com/pypads-go/pypads/funcregistry"
	"github.com/pypads-go/pypads/pyerrors"
	"github.com/pypads-go/pypads/runcache"
	"github.com/pypads-go/pypads/telemetry"
	"github.com/pypads-go/pypads/wrap"
)

// Backend is the subset of the Backend Facade (package backend, C8) the
// Dispatcher Runtime needs: which run is active, and where to put failure
// tags and the flushed timing artifact. Any backend.Facade implementation
// satisfies this structurally — dispatch never imports package backend, so
// the two packages can evolve independently.
type Backend interface {
	ActiveRunID(ctx context.Context) (string, bool)
	SetTag(ctx context.Context, runID, key, value string) error
	LogInMemoryArtifact(ctx context.Context, runID, name string, data []byte, format string) error
}

// ConfigProvider resolves the Configuration in effect for a run, so the
// dispatcher's recursion/retry policy is re-evaluated per call rather than
// fixed at wrap time (spec §4.7 preamble: "the hook list is re-evaluated
// per call, because configuration is run-scoped").
type ConfigProvider interface {
	Configuration(ctx context.Context, runID string) config.Configuration
}

// Runtime holds everything the per-call protocol needs across every
// dispatched target: the goroutine-local call stacks, the resolver and
// function registry it consults for the hook chain, the cache used for the
// duplicate-hook guard and retry bookkeeping, and the observability/
// backend dependencies the failure policy touches.
type Runtime struct {
	stacks  *callStacks
	timings *timings

	resolver *events.Resolver
	cache    *runcache.Cache
	engine   *wrap.Engine
	backend  Backend
	configs  ConfigProvider

	logger  telemetry.Logger
	tracer  telemetry.Tracer
	metrics telemetry.Metrics
	limiter *rate.Limiter
}

// Option configures a Runtime at construction.
type Option func(*Runtime)

// WithLogger overrides the no-op default Logger.
func WithLogger(l telemetry.Logger) Option { return func(r *Runtime) { r.logger = l } }

// WithTracer overrides the no-op default Tracer.
func WithTracer(t telemetry.Tracer) Option { return func(r *Runtime) { r.tracer = t } }

// WithMetrics overrides the no-op default Metrics.
func WithMetrics(m telemetry.Metrics) Option { return func(r *Runtime) { r.metrics = m } }

// WithRetryLimiter bounds how often the retry-on-fail path may mint a
// fresh retry attempt across all dispatched calls, guarding against a
// pathological retry storm without changing the single-retry-per-failure
// semantics spec §4.7 step 8 mandates. The limiter is a token bucket: a
// retry it refuses is skipped and the original failure returned, with no
// waiting or backoff. The default allows one retry per 100ms with a burst
// of 5.
func WithRetryLimiter(limiter *rate.Limiter) Option { return func(r *Runtime) { r.limiter = limiter } }

// New constructs a Runtime. resolver, cache and engine are required;
// backend and configs may be nil only in tests that never hit a failure or
// retry path (a nil Backend/ConfigProvider makes every call behave as
// config.Default() with no active run).
func New(resolver *events.Resolver, cache *runcache.Cache, engine *wrap.Engine, backend Backend, configs ConfigProvider, opts ...Option) *Runtime {
	rt := &Runtime{
		stacks:   newCallStacks(),
		timings:  newTimings(),
		resolver: resolver,
		cache:    cache,
		engine:   engine,
		backend:  backend,
		configs:  configs,
		logger:   telemetry.NewNoopLogger(),
		tracer:   telemetry.NewNoopTracer(),
		metrics:  telemetry.NewNoopMetrics(),
		limiter:  rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Builder returns a wrap.DispatchBuilder bound to this Runtime. Every
// wrap.Target wrapped with it shares the same call stacks, cache and
// backend — exactly one Builder per Runtime is expected, since the
// goroutine-local call stack is process-wide per Runtime, not per target.
func (rt *Runtime) Builder() wrap.DispatchBuilder {
	return func(wrapCtx context.Context, original reflect.Value, t wrap.Target) reflect.Value {
		return reflect.MakeFunc(original.Type(), func(args []reflect.Value) []reflect.Value {
			result, err := rt.dispatch(wrapCtx, original, t, args)
			return unpackResults(original.Type(), result, err)
		})
	}
}

var ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()

// contextFrom recovers the per-call context from args when the target
// takes one as its first parameter (the Go convention the whole corpus
// follows for blocking SDK calls), falling back to the context captured
// at wrap time otherwise.
func contextFrom(args []reflect.Value, fallback context.Context) context.Context {
	if len(args) > 0 && args[0].Type().Implements(ctxType) {
		if c, ok := args[0].Interface().(context.Context); ok && c != nil {
			return c
		}
	}
	return fallback
}

// dispatch runs the nine-step per-call protocol of spec §4.7 and returns
// the packed result the caller unpacks back into the target's declared
// return shape.
func (rt *Runtime) dispatch(wrapCtx context.Context, original reflect.Value, t wrap.Target, args []reflect.Value) (any, error) {
	ctx := contextFrom(args, wrapCtx)
	callOriginal := func() (any, error) { return packResults(original.Call(args)) }

	// Step 1: push (mapping, container, target, receiver) on the
	// goroutine-local call stack.
	frame := Frame{Mapping: t.Mapping, Container: t.ContainerID, Target: t.Name, Receiver: receiverOf(t.Shape, args)}
	depth := rt.stacks.push(frame)
	defer rt.stacks.pop()

	var runID string
	if rt.backend != nil {
		runID, _ = rt.backend.ActiveRunID(ctx)
	}
	cfg := config.Default()
	if rt.configs != nil {
		cfg = rt.configs.Configuration(ctx, runID)
	}

	// Step 2: compute the hook list; call the target directly if empty.
	var hooks []events.Resolved
	if t.Mapping != nil {
		hooks = rt.resolver.Resolve(ctx, t.Mapping, t.Name, cfg)
	}
	if len(hooks) == 0 {
		return callOriginal()
	}

	// Step 3: recursion control.
	beneath := rt.stacks.snapshot()
	if shouldSkipHooks(cfg, beneath, depth, frame) {
		return callOriginal()
	}

	ctx, span := rt.tracer.Start(ctx, "pypads.dispatch."+t.Name)
	defer span.End()

	base := funcregistry.Call{
		Args:       reflectArgsToAny(args),
		Receiver:   frame.Receiver,
		TargetName: t.Name,
	}

	// Steps 4-7: fold hooks right-to-left around the target, each layer
	// running its own pre/next/post with the duplicate-hook guard and
	// phase timing.
	chain := rt.buildChain(ctx, runID, hooks, base, callOriginal)

	// Step 8: failure and retry policy.
	result, err := rt.withRetry(ctx, runID, cfg, t, args, chain)
	if err != nil && cfg.LogOnFailure {
		rt.flushCapturedStdout(ctx, runID, t)
	}

	// Step 9: pop happens via the deferred rt.stacks.pop() above.
	return result, err
}

func reflectArgsToAny(args []reflect.Value) []any {
	out := make([]any, len(args))
	for i, v := range args {
		out[i] = v.Interface()
	}
	return out
}

// FlushTimings emits the accumulated per-phase timings for runID as an
// in-memory artifact via the Backend Facade (spec §4.7 step 7: "on run
// end, the accumulated timings are emitted as an artifact"). Callers
// (typically the top-level Instance.EndRun) must invoke this before the
// backend's run is closed.
func (rt *Runtime) FlushTimings(ctx context.Context, runID string) error {
	flushed := rt.timings.flush(runID)
	if len(flushed) == 0 || rt.backend == nil {
		return nil
	}
	payload, err := json.Marshal(flushed)
	if err != nil {
		return pyerrors.Wrap(pyerrors.KindTargetFailure, err, "marshal timing artifact")
	}
	return rt.backend.LogInMemoryArtifact(ctx, runID, "pypads_timings.json", payload, "json")
}

// flushCapturedStdout implements the log_on_failure half of step 8: if the
// run cache holds captured stdout for this call site, flush it as an
// artifact before the failure propagates. Captured stdout is populated by
// loggers that redirect os.Stdout (outside this package's concern); its
// absence is the common case and is not itself an error.
func (rt *Runtime) flushCapturedStdout(ctx context.Context, runID string, t wrap.Target) {
	if rt.backend == nil {
		return
	}
	key := fmt.Sprintf("stdout/%s/%s", t.ContainerID, t.Name)
	v, ok := rt.cache.Run(runID).Pop(key)
	if !ok {
		return
	}
	data, ok := v.([]byte)
	if !ok {
		return
	}
	name := fmt.Sprintf("pypads_stdout_%s_%s.log", t.ContainerID, t.Name)
	if err := rt.backend.LogInMemoryArtifact(ctx, runID, name, data, "text"); err != nil {
		rt.logger.Warn(ctx, "failed to flush captured stdout on failure", "error", err)
	}
}
