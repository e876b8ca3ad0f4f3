package mapping

import (
	"sync"

	"github.com/pypads-go/pypads/telemetry"
)

// Registry loads mapping documents from a default search set, user-supplied
// paths, and programmatic registrations, and indexes the Algorithm entries
// they declare (spec §4.1, C1).
//
// Registry is safe for concurrent use: inserts synchronize on a single
// lock; reads take a snapshot so discovery walks (Intercept activation)
// never block concurrent registration of newly found subclasses.
type Registry struct {
	mu     sync.RWMutex
	byRef  map[string]*Algorithm // declared algorithms, keyed by normalized reference
	found  map[string]*Algorithm // dynamically discovered subclass mappings
	logger telemetry.Logger
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithLogger attaches a logger used for MappingLoad warnings.
func WithLogger(l telemetry.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry constructs an empty Registry. Callers populate it via
// LoadDefaults, LoadDir or LoadDocument before activation.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byRef:  make(map[string]*Algorithm),
		found:  make(map[string]*Algorithm),
		logger: telemetry.NewNoopLogger(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// LoadDocument indexes every algorithm declared in doc. Per spec §4.1,
// duplicate registrations for the same reference keep the first and
// discard subsequent ones.
func (r *Registry) LoadDocument(doc *Document) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range doc.Algorithms {
		hooks := normalizeHooks(a.Hooks, doc.DefaultHooks)
		for lib, ref := range a.Implementation {
			norm := Normalize(ref)
			if norm == "" {
				continue
			}
			if _, exists := r.byRef[norm]; exists {
				continue
			}
			r.byRef[norm] = &Algorithm{
				Reference:  norm,
				Library:    lib,
				Name:       a.Name,
				OtherNames: a.OtherNames,
				SourceFile: doc.SourceFile,
				Hooks:      hooks,
			}
		}
	}
}

func normalizeHooks(raw map[string]Selector, defaults DefaultHooks) []Hook {
	if len(raw) == 0 {
		var hooks []Hook
		if !defaults.Classes.Fns.IsZero() {
			hooks = append(hooks, Hook{Event: "pypads_log", Selector: defaults.Classes.Fns})
		}
		if !defaults.Fns.Fns.IsZero() {
			hooks = append(hooks, Hook{Event: "pypads_log", Selector: defaults.Fns.Fns})
		}
		return hooks
	}
	hooks := make([]Hook, 0, len(raw))
	for event, sel := range raw {
		hooks = append(hooks, Hook{Event: event, Selector: sel})
	}
	return hooks
}

// AddFoundClass registers a dynamically discovered subclass mapping (spec
// §4.1 add_found_class, §4.6 inheritance propagation). The first
// registration for a given Reference wins, matching LoadDocument's
// duplicate policy.
func (r *Registry) AddFoundClass(a *Algorithm) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byRef[a.Reference]; exists {
		return
	}
	if _, exists := r.found[a.Reference]; exists {
		return
	}
	r.found[a.Reference] = a
}

// GetAlgorithms returns a snapshot slice of every declared algorithm
// mapping (spec §4.1 get_algorithms: finite iterator over declared
// mappings, excluding dynamically discovered ones).
func (r *Registry) GetAlgorithms() []*Algorithm {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Algorithm, 0, len(r.byRef))
	for _, a := range r.byRef {
		out = append(out, a)
	}
	return out
}

// GetRelevantMappings returns the union of declared and dynamically
// discovered algorithm mappings (spec §4.1 get_relevant_mappings: finite,
// restartable — callers may call it repeatedly as more subclasses are
// discovered).
func (r *Registry) GetRelevantMappings() []*Algorithm {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Algorithm, 0, len(r.byRef)+len(r.found))
	for _, a := range r.byRef {
		out = append(out, a)
	}
	for _, a := range r.found {
		out = append(out, a)
	}
	return out
}

// Lookup resolves a single Algorithm by its normalized reference, searching
// declared mappings first and then discovered ones.
func (r *Registry) Lookup(reference string) (*Algorithm, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.byRef[reference]; ok {
		return a, true
	}
	a, ok := r.found[reference]
	return a, ok
}
