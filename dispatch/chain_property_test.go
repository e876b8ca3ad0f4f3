package dispatch_test

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/pypads-go/pypads/config"
	"github.com/pypads-go/pypads/mapping"
	"github.com/pypads-go/pypads/wrap"
)

// TestDispatchChainCompositionProperty validates testable property #2
// (spec §8): for any ordered hook list, the dispatcher's call produces
// exactly one invocation of the original target and exactly one
// __pre__/__post__ per hook, in ascending order.
func TestDispatchChainCompositionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("every hook in the chain fires exactly once, in ascending order", prop.ForAll(
		func(orders []int) bool {
			cfg := config.Default()
			cfg.Events = make(map[string]config.EventBinding, len(orders))
			for i, order := range orders {
				name := fmt.Sprintf("hook%d", i)
				cfg.Events[name] = config.EventBinding{On: []string{"pypads_fit"}, Order: order}
			}

			rt, _, engine, funcs := buildHarness(t, cfg)

			var trace []string
			names := make([]string, len(orders))
			for i := range orders {
				name := fmt.Sprintf("hook%d", i)
				names[i] = name
				funcs.Register(name, "", "", &tracingLogger{name: name, trace: &trace})
			}

			algo := &mapping.Algorithm{Hooks: []mapping.Hook{{Event: "pypads_fit", Selector: mapping.Selector{Always: true}}}}
			slot := newSlot(func(a, b int) int { return a + b })
			target := wrap.Target{ContainerID: "pkg", Name: "Fit", Shape: wrap.Free, Slot: slot, Mapping: algo}

			dispatcher, err := engine.Wrap(context.Background(), target, rt.Builder())
			if err != nil {
				return false
			}

			result := dispatcher.Call([]reflect.Value{reflect.ValueOf(2), reflect.ValueOf(3)})
			if result[0].Int() != 5 {
				return false
			}
			if len(trace) != 2*len(orders) {
				return false
			}

			expectedOrder := stableSortByOrder(names, orders)
			for i, name := range expectedOrder {
				if trace[i] != "pre:"+name {
					return false
				}
				if trace[len(trace)-1-i] != "post:"+name {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(4, gen.IntRange(1, 5)),
	))

	properties.TestingRun(t)
}

// stableSortByOrder mirrors events.Resolver's stable sort by Order, using
// the same input order as the tie-break, so the property test can predict
// the exact sequence without reimplementing Resolve.
func stableSortByOrder(names []string, orders []int) []string {
	type pair struct {
		name  string
		order int
	}
	pairs := make([]pair, len(names))
	for i := range names {
		pairs[i] = pair{names[i], orders[i]}
	}
	for i := 1; i < len(pairs); i++ {
		for j := i; j > 0 && pairs[j].order < pairs[j-1].order; j-- {
			pairs[j], pairs[j-1] = pairs[j-1], pairs[j]
		}
	}
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.name
	}
	return out
}
