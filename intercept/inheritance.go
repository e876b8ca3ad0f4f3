package intercept

import (
	"context"
	"sync"

	"github.com/pypads-go/pypads/mapping"
)

// inheritanceGraph replaces Python's runtime MRO walk (spec.md §4.6 step
// 1) with an explicit, hand-declared DAG: Go has no classical inheritance,
// so "B in D's MRO" becomes "D embeds B" (struct embedding) or "D
// implements the interface B's wrapped methods were declared against" —
// either way, something the concrete type's package must state explicitly
// via RegisterType, since there is no runtime introspection that derives
// it.
type inheritanceGraph struct {
	mu sync.Mutex

	// ancestorsOf maps a concrete type's container id to the container ids
	// of the types it declares itself descended from.
	ancestorsOf map[string][]string

	// wrapped maps a container id to the Algorithm that was used to wrap
	// one of its members — "this container is a wrapped ancestor" (spec.md
	// §4.6: "the set of already-wrapped classes").
	wrapped map[string]*mapping.Algorithm

	// pending holds concrete container ids registered via RegisterType that
	// have not yet had inheritance propagated, so propagateInheritance only
	// examines what changed since the previous Activate.
	pending []string
}

func newInheritanceGraph() *inheritanceGraph {
	return &inheritanceGraph{
		ancestorsOf: make(map[string][]string),
		wrapped:     make(map[string]*mapping.Algorithm),
	}
}

// RegisterType declares that the concrete type identified by containerID
// (conventionally "pkgpath.TypeName") descends from ancestorContainerIDs —
// the Go analogue of spec.md's MRO, stated by hand since Go cannot derive
// it by reflection alone. Call this from the owning package's Factory,
// once per concrete type, before or after Activate; propagation is
// re-evaluated on every Activate call.
func (i *Interceptor) RegisterType(containerID string, ancestorContainerIDs ...string) {
	i.inheritance.mu.Lock()
	defer i.inheritance.mu.Unlock()
	i.inheritance.ancestorsOf[containerID] = append(i.inheritance.ancestorsOf[containerID], ancestorContainerIDs...)
	i.inheritance.pending = append(i.inheritance.pending, containerID)
}

// recordWrappedContainer marks containerID as carrying a wrapped member
// under algo, so later-registered descendant types can inherit it.
func (g *inheritanceGraph) recordWrappedContainer(containerID string, algo *mapping.Algorithm) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.wrapped[containerID]; !exists {
		g.wrapped[containerID] = algo
	}
}

// propagateInheritance implements spec.md §4.6 step 1 ("for every class
// whose MRO intersects the set of already-wrapped classes, synthesize an
// algorithm mapping for the subclass inheriting the mapping of the nearest
// wrapped ancestor"): for every concrete type registered since the last
// call, if any of its declared ancestors is wrapped, register a
// synthesized Algorithm for the concrete type's own reference, tagging
// InheritedFrom. Testable property #4 (spec §8).
func (i *Interceptor) propagateInheritance(ctx context.Context) {
	g := i.inheritance

	g.mu.Lock()
	pending := g.pending
	g.pending = nil
	g.mu.Unlock()

	for _, containerID := range pending {
		g.mu.Lock()
		ancestors := append([]string(nil), g.ancestorsOf[containerID]...)
		g.mu.Unlock()

		for _, ancestor := range ancestors {
			g.mu.Lock()
			algo, ok := g.wrapped[ancestor]
			g.mu.Unlock()
			if !ok {
				continue
			}

			inherited := &mapping.Algorithm{
				Reference:     containerID,
				Library:       algo.Library,
				Name:          algo.Name,
				OtherNames:    algo.OtherNames,
				SourceFile:    algo.SourceFile,
				Hooks:         algo.Hooks,
				InheritedFrom: algo.Reference,
			}
			i.registry.AddFoundClass(inherited)
			i.logger.Debug(ctx, "inherited mapping propagated",
				"container", containerID, "from", algo.Reference)
			// The nearest wrapped ancestor wins (spec.md: "synthesize...
			// inheriting the mapping of the nearest wrapped ancestor");
			// once one ancestor has supplied a mapping, later ancestors in
			// the same declaration do not override it.
			break
		}
	}
}
