package dispatch

import (
	"context"

	"github.com/pypads-go/pypads/events"
	"github.com/pypads-go/pypads/funcregistry"
)

// buildChain folds hooks right-to-left around next (the target-invoking
// callback), matching spec §4.7 step 4: the innermost callback is the
// original target, each outer layer the next hook out. Hooks run in the
// order Resolve already sorted them into (ascending configured order), so
// hooks[0] becomes the outermost layer.
func (rt *Runtime) buildChain(ctx context.Context, runID string, hooks []events.Resolved, base funcregistry.Call, next func() (any, error)) func() (any, error) {
	chained := next
	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		inner := chained
		chained = func() (any, error) {
			return rt.invokeHook(ctx, runID, hook, base, inner)
		}
	}
	return chained
}

// invokeHook runs one layer of the chain: the duplicate-hook guard, timed
// __pre__, the next callback, and timed __post__ (spec §4.7 steps 5-7).
func (rt *Runtime) invokeHook(ctx context.Context, runID string, hook events.Resolved, base funcregistry.Call, next func() (any, error)) (any, error) {
	call := base
	call.Params = hook.With

	// Step 6: the duplicate-hook guard is per receiver; calls without a
	// receiver (free functions, constructors) are bounded by the recursion
	// policy of step 3 alone.
	if call.Receiver != nil {
		guardKey := "active-logger/" + receiverKey(call.Receiver) + "/" + hook.Logger.Name()
		runStore := rt.cache.Run(runID)
		if runStore.Exists(guardKey) {
			// Already active for this receiver, short-circuit to the
			// remainder of the chain without re-entering this logger.
			return next()
		}
		runStore.Add(guardKey, true)
		defer runStore.Pop(guardKey)
	}

	hookCtx, span := rt.tracer.Start(ctx, "pypads.hook."+hook.Event)
	defer span.End()

	if pre, ok := hook.Logger.(funcregistry.PreHook); ok {
		rt.timePhase(runID, call.TargetName, hook.Event, "pre", func() {
			if err := pre.Pre(hookCtx, call); err != nil {
				rt.onLoggerFailure(hookCtx, runID, hook, "pre", err)
			}
		})
	}

	var result any
	var err error
	rt.timePhase(runID, call.TargetName, hook.Event, "next", func() {
		result, err = next()
	})

	if post, ok := hook.Logger.(funcregistry.PostHook); ok {
		rt.timePhase(runID, call.TargetName, hook.Event, "post", func() {
			if postErr := post.Post(hookCtx, call, result, err); postErr != nil {
				rt.onLoggerFailure(hookCtx, runID, hook, "post", postErr)
			}
		})
	}

	return result, err
}

// timePhase runs fn, recording its elapsed time under (target, event,
// phase) for the eventual run-end timing artifact (spec §4.7 step 7).
func (rt *Runtime) timePhase(runID, target, event, phase string, fn func()) {
	start := nowFunc()
	fn()
	rt.timings.record(runID, target, event, phase, nowFunc().Sub(start))
}

// onLoggerFailure implements the __pre__/__post__ half of step 8: the
// phase's panic-free error is caught here (loggers return errors, they do
// not panic), a failure tag is set on the run, and the chain continues —
// the target still executes via next().
func (rt *Runtime) onLoggerFailure(ctx context.Context, runID string, hook events.Resolved, phase string, err error) {
	rt.logger.Warn(ctx, "logger phase failed", "event", hook.Event, "phase", phase, "error", err)
	rt.metrics.IncCounter("pypads.logger.failure", 1, "event", hook.Event, "phase", phase)
	if rt.backend != nil {
		_ = rt.backend.SetTag(ctx, runID, "pypads.failure."+hook.Event+"."+phase, err.Error())
	}
}
