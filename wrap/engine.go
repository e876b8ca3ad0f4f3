package wrap

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/pypads-go/pypads/mapping"
	"github.com/pypads-go/pypads/pyerrors"
	"github.com/pypads-go/pypads/telemetry"
)

// Target names what the Wrapping Engine is asked to wrap: a settable slot
// holding the current callable, the container/member identity used to
// derive the shadow key, its CallShape, and the Algorithm mapping that
// justified wrapping it.
type Target struct {
	// ContainerID identifies the owning module or type, e.g. a package
	// path or "pkg.TypeName". Spec §4.5: "a method defined on a base class
	// and accessed through a subclass must not clobber the base's
	// original" — callers must pass the container the member is actually
	// defined on, not an inheriting one, so shadow keys stay distinct.
	ContainerID string
	// Name is the member name (function or method name).
	Name string
	Shape CallShape
	// Slot is an addressable, settable reflect.Value of Kind Func holding
	// the callable currently installed. Obtained from a pointer, e.g.
	// reflect.ValueOf(&pkg.Fit).Elem().
	Slot reflect.Value
	// Mapping is the resolved Algorithm that matched this target.
	Mapping *mapping.Algorithm
}

// DispatchBuilder builds the replacement callable given the preserved
// original and the Target metadata. Supplied by the caller (typically the
// dispatch package's Runtime); the Wrapping Engine only knows how to
// install and recover callables, not how dispatch itself works.
type DispatchBuilder func(ctx context.Context, original reflect.Value, t Target) reflect.Value

// Engine installs dispatchers in place of target callables for every
// CallShape, and tracks enough bookkeeping to make rewrapping the same
// target an idempotent no-op (spec §4.5, testable property #1).
type Engine struct {
	mu      sync.Mutex
	shadow  map[string]reflect.Value // shadow key -> preserved original
	current map[string]reflect.Value // shadow key -> installed dispatcher
	logger  telemetry.Logger
}

// NewEngine constructs an empty Engine.
func NewEngine(logger telemetry.Logger) *Engine {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Engine{
		shadow:  make(map[string]reflect.Value),
		current: make(map[string]reflect.Value),
		logger:  logger,
	}
}

// ShadowKey derives the deterministic name a preserved original is stored
// under (spec §4.5: "_original_<container-id>_<name>").
func ShadowKey(containerID, name string) string {
	return fmt.Sprintf("_original_%s_%s", containerID, name)
}

// Wrap installs a dispatcher for t, building it with build from the
// currently-installed callable. It is idempotent: calling Wrap twice for
// the same (ContainerID, Name) returns the dispatcher installed the first
// time without invoking build again, and without disturbing the preserved
// original (testable property #1).
//
// If t.Slot cannot be set (an immutable/unaddressable target), Wrap
// returns the original slot value unchanged and a WrappingUnsupported
// error, per the spec §4.5/§7 failure policy: log at debug, return the
// original unwrapped, never treat this as fatal.
func (e *Engine) Wrap(ctx context.Context, t Target, build DispatchBuilder) (reflect.Value, error) {
	key := ShadowKey(t.ContainerID, t.Name)

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.current[key]; ok {
		return existing, nil
	}

	if !t.Slot.CanSet() {
		e.logger.Debug(ctx, "wrapping unsupported: target is not settable",
			"container", t.ContainerID, "name", t.Name)
		return t.Slot, pyerrors.Newf(pyerrors.KindWrappingUnsupported, "%s.%s is not settable", t.ContainerID, t.Name)
	}

	// Copy the value out before installing the dispatcher: Slot will be
	// mutated in place, so the copy is what Original() must keep returning.
	original := reflect.ValueOf(t.Slot.Interface())
	e.shadow[key] = original

	dispatcher := build(ctx, original, t)
	t.Slot.Set(dispatcher)
	e.current[key] = dispatcher

	return dispatcher, nil
}

// Original returns the preserved pristine callable for (containerID, name),
// recovered from the shadow key (spec §4.5, §3 "Wrapped target").
func (e *Engine) Original(containerID, name string) (reflect.Value, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.shadow[ShadowKey(containerID, name)]
	return v, ok
}

// IsWrapped reports whether (containerID, name) already has an installed
// dispatcher, used by the Import Interceptor to skip re-wrapping and by
// inheritance propagation to find "already-wrapped classes" (spec §4.6).
func (e *Engine) IsWrapped(containerID, name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.current[ShadowKey(containerID, name)]
	return ok
}
