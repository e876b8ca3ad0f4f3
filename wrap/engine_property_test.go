package wrap_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/pypads-go/pypads/wrap"
)

// TestWrapIdempotenceProperty validates testable property #1 (spec §8) over
// many randomly generated (container, name, wrapCount) combinations: for
// any target T and container C, wrapping C.T any number of times yields the
// same dispatcher pointer every time, and the recovered original equals the
// pre-wrapping value.
func TestWrapIdempotenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("repeated Wrap on the same target is a no-op after the first call", prop.ForAll(
		func(containerID, name string, attempts int) bool {
			engine := wrap.NewEngine(nil)
			slot := newSlot(func(x int) int { return x * 2 })
			pre := slot.Pointer()
			target := wrap.Target{ContainerID: containerID, Name: name, Shape: wrap.Free, Slot: slot}

			build := func(ctx context.Context, original reflect.Value, target wrap.Target) reflect.Value {
				return reflect.MakeFunc(original.Type(), func(args []reflect.Value) []reflect.Value {
					return original.Call(args)
				})
			}

			var first reflect.Value
			for i := 0; i < attempts; i++ {
				d, err := engine.Wrap(context.Background(), target, build)
				if err != nil {
					return false
				}
				if i == 0 {
					first = d
				} else if d.Pointer() != first.Pointer() {
					return false
				}
			}

			if attempts == 0 {
				return true
			}
			original, ok := engine.Original(containerID, name)
			return ok && original.Pointer() == pre
		},
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}
