package dispatch

import (
	"context"
	"reflect"

	"github.com/google/uuid"

	"github.com/pypads-go/pypads/config"
	"github.com/pypads-go/pypads/wrap"
)

// withRetry implements spec §4.7 step 8's target-failure branch. Rather
// than comparing Go errors by identity (fragile: wrapped errors, pooled
// sentinel values, and errors.Join all break naive == comparison — the
// Open Question spec §9 flags), a fresh UUID "symbolic token" is minted
// per retry attempt and stored in the run cache keyed by the (container,
// target) the retry is for. A second failure while that token is still
// present means this *is* the retry already in flight, so it is not
// retried again — the token's presence, not the error's identity, is what
// prevents infinite retry.
func (rt *Runtime) withRetry(ctx context.Context, runID string, cfg config.Configuration, t wrap.Target, args []reflect.Value, call func() (any, error)) (any, error) {
	result, err := call()
	if err == nil || !cfg.RetryOnFail {
		return result, err
	}

	key := "retry/" + t.ContainerID + "/" + t.Name
	runStore := rt.cache.Run(runID)
	if runStore.Exists(key) {
		// A retry for this (container, target) is already in flight on an
		// enclosing frame; do not nest another one.
		return result, err
	}

	if !rt.limiter.Allow() {
		rt.logger.Warn(ctx, "retry suppressed by rate limiter", "container", t.ContainerID, "target", t.Name)
		return result, err
	}

	token := uuid.New().String()
	runStore.Add(key, token)
	defer runStore.Pop(key)

	if rt.backend != nil {
		_ = rt.backend.SetTag(ctx, runID, "pypads.retry."+t.ContainerID+"."+t.Name, token)
	}
	rt.logger.Warn(ctx, "retrying target after failure", "container", t.ContainerID, "target", t.Name, "token", token, "cause", err)
	rt.metrics.IncCounter("pypads.dispatch.retry", 1, "container", t.ContainerID, "target", t.Name)

	original, ok := rt.engine.Original(t.ContainerID, t.Name)
	if !ok {
		return result, err
	}
	return packResults(original.Call(args))
}
