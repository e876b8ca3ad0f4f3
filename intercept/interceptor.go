// Package intercept implements the Import Interceptor (spec §4.6, C6),
// reinterpreted for Go (spec §9 Design Note). Go has no late-bound import
// system to hook: there is no loader to duck-punch, no module-execution
// hook to attach to. What survives from spec.md's design is the *shape* of
// the problem — discover target symbols once their defining package is
// available, wrap them, and propagate wrapping to types that inherit from
// an already-wrapped one — reimplemented as:
//
//   - an explicit activation registry populated by each trackable package's
//     own init(), the direct analogue of "module execution finishing";
//   - inheritance propagation over an explicit interface-satisfaction/
//     embedding DAG instead of Python's MRO walk;
//   - an "important" set of packages that are never (re)activated, mapping
//     spec.md's "already-wrapped classes are not revisited" guard.
package intercept

import (
	"context"
	"reflect"
	"sync"

	"github.com/pypads-go/pypads/mapping"
	"github.com/pypads-go/pypads/telemetry"
	"github.com/pypads-go/pypads/wrap"
)

// Factory discovers and wraps the trackable symbols of one package. A
// package that wants to be tracked writes one of these by hand (Go has no
// runtime enumeration of a package's exported declarations) and registers
// it from init() via Register — this hand-written factory plus the
// registry is the "registry of interposers plus a code-generation step"
// spec §9's Design Note describes.
type Factory func(ctx context.Context, i *Interceptor) error

type registeredFactory struct {
	pkgPath string
	factory Factory
}

// Interceptor is the process-wide activation registry: it remembers every
// registered Factory, runs each exactly once per Activate cycle (skipping
// packages marked important or already activated), and gives factories a
// WrapSymbol helper that consults the Mapping Registry and installs
// dispatchers through the Wrapping Engine.
type Interceptor struct {
	mu sync.Mutex

	registry *mapping.Registry
	engine   *wrap.Engine
	builder  wrap.DispatchBuilder
	logger   telemetry.Logger

	factories []registeredFactory
	activated map[string]bool
	important map[string]bool

	inheritance *inheritanceGraph
}

// New constructs an Interceptor. registry and engine are required; builder
// is the dispatch.Runtime's Builder() the engine installs for every
// matched symbol.
func New(registry *mapping.Registry, engine *wrap.Engine, builder wrap.DispatchBuilder, logger telemetry.Logger) *Interceptor {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Interceptor{
		registry:    registry,
		engine:      engine,
		builder:     builder,
		logger:      logger,
		activated:   make(map[string]bool),
		important:   make(map[string]bool),
		inheritance: newInheritanceGraph(),
	}
}

// Register records factory as the discovery routine for pkgPath. Called
// from pkgPath's own init(), mirroring "module execution finishing" as
// the trigger spec.md's duck_punch_loader reacts to. Registration order is
// preserved; Activate runs factories in the order they were registered.
func (i *Interceptor) Register(pkgPath string, factory Factory) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.factories = append(i.factories, registeredFactory{pkgPath: pkgPath, factory: factory})
}

// MarkImportant excludes pkgPaths from activation entirely: the
// framework's own packages and anything reflection-adjacent ("reflect",
// "runtime") must never be walked for wrapping, matching spec.md's
// "important modules" set (§6 "optional override of the important modules
// set").
func (i *Interceptor) MarkImportant(pkgPaths ...string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, p := range pkgPaths {
		i.important[p] = true
	}
}

// Activate runs every registered factory that has not yet been activated
// and is not marked important (spec.md's "already-loaded modules" walk:
// Activate may be called again after more packages register themselves,
// and only the newly-registered ones run). Inheritance propagation (see
// inheritance.go) runs again on every call, since new types may have been
// registered since the last activation even when no new package factory
// ran.
func (i *Interceptor) Activate(ctx context.Context) error {
	i.mu.Lock()
	pending := make([]registeredFactory, 0, len(i.factories))
	for _, f := range i.factories {
		if i.important[f.pkgPath] || i.activated[f.pkgPath] {
			continue
		}
		pending = append(pending, f)
	}
	i.mu.Unlock()

	for _, f := range pending {
		if err := f.factory(ctx, i); err != nil {
			i.logger.Warn(ctx, "package activation failed", "package", f.pkgPath, "error", err)
			continue
		}
		i.mu.Lock()
		i.activated[f.pkgPath] = true
		i.mu.Unlock()
	}

	i.propagateInheritance(ctx)
	return nil
}

// WrapSymbol is the per-symbol entry point factories call: it looks up
// reference in the Mapping Registry and, if matched, installs a dispatcher
// via the Wrapping Engine. Returns ok=false with no error when reference
// has no matching Algorithm — that is the common case, not a failure.
func (i *Interceptor) WrapSymbol(ctx context.Context, reference, containerID, name string, shape wrap.CallShape, slot reflect.Value) (reflect.Value, bool, error) {
	algo, ok := i.registry.Lookup(reference)
	if !ok {
		return slot, false, nil
	}

	target := wrap.Target{ContainerID: containerID, Name: name, Shape: shape, Slot: slot, Mapping: algo}
	dispatcher, err := i.engine.Wrap(ctx, target, i.builder)
	if err != nil {
		return slot, false, err
	}

	i.inheritance.recordWrappedContainer(containerID, algo)
	return dispatcher, true, nil
}
