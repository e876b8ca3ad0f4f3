// Package events implements the Hook/Event Resolver (spec §4.2, C2): given
// a target callable's algorithm mapping and the run's Configuration, it
// produces the ordered list of (logger, parameters, order) the Dispatcher
// Runtime folds into a callback chain.
package events

import (
	"context"
	"sort"

	"github.com/pypads-go/pypads/config"
	"github.com/pypads-go/pypads/funcregistry"
	"github.com/pypads-go/pypads/mapping"
	"github.com/pypads-go/pypads/telemetry"
)

// Resolved is one entry of a resolved hook list: a logger ready to run,
// its overlaid parameters, and its sort order.
type Resolved struct {
	Event  string
	Logger funcregistry.Logger
	With   map[string]any
	Order  int
}

// Resolver resolves, for a given target callable, the ordered list of
// hooks applicable under the current run's Configuration (spec §4.2).
type Resolver struct {
	functions *funcregistry.Registry
	logger    telemetry.Logger
}

// New constructs a Resolver backed by functions, the Function Registry
// used to look up loggers by (name, library, version) specificity.
func New(functions *funcregistry.Registry, logger telemetry.Logger) *Resolver {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Resolver{functions: functions, logger: logger}
}

// Resolve implements the spec §4.2 algorithm:
//  1. determine which declared hook-events apply to this member, using the
//     algorithm's hook selectors;
//  2. for each configuration event whose "on" set intersects the applicable
//     hook-events, look up the logger by (event, library), falling back to
//     event alone; Algorithm carries no library version, so loggers
//     registered for a specific version are never selected here;
//  3. emit (logger, with, order), sorted ascending by order; events with
//     equal order keep the lexical order of their names.
func (r *Resolver) Resolve(ctx context.Context, algo *mapping.Algorithm, member string, cfg config.Configuration) []Resolved {
	applicable := applicableHookEvents(algo, member)

	// Configuration event names are iterated in lexical key order, then
	// stably re-sorted by Order below; Go maps have no iteration order of
	// their own, so this makes the tie-break between equal orders
	// deterministic given the same input map.
	names := make([]string, 0, len(cfg.Events))
	for name := range cfg.Events {
		names = append(names, name)
	}
	sort.Strings(names)

	var resolved []Resolved
	for _, name := range names {
		binding := cfg.Events[name]
		if !intersects(binding.On, applicable) {
			continue
		}
		logger, ok := r.functions.Lookup(name, algo.Library, "")
		if !ok {
			if !r.functions.WarnOnce(name) {
				r.logger.Warn(ctx, "no logger registered for event", "event", name)
			}
			continue
		}
		order := binding.Order
		if order == 0 {
			order = 1
		}
		resolved = append(resolved, Resolved{
			Event:  name,
			Logger: logger,
			With:   binding.With,
			Order:  order,
		})
	}

	sort.SliceStable(resolved, func(i, j int) bool { return resolved[i].Order < resolved[j].Order })
	return resolved
}

// applicableHookEvents returns the set of declared hook-events that apply
// to member, per each Hook's Selector ("always" matches every member; a
// name set matches if member is in it).
func applicableHookEvents(algo *mapping.Algorithm, member string) map[string]struct{} {
	set := make(map[string]struct{}, len(algo.Hooks))
	for _, h := range algo.Hooks {
		if h.Selector.Matches(member) {
			set[h.Event] = struct{}{}
		}
	}
	return set
}

// intersects reports whether any entry of on is present in applicable, or
// whether on contains the literal "always".
func intersects(on []string, applicable map[string]struct{}) bool {
	for _, name := range on {
		if name == "always" {
			return true
		}
		if _, ok := applicable[name]; ok {
			return true
		}
	}
	return false
}
