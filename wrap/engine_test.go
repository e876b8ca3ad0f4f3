package wrap_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypads-go/pypads/wrap"
)

func addFn(a, b int) int { return a + b }

func newSlot(fn any) reflect.Value {
	v := reflect.New(reflect.TypeOf(fn)).Elem()
	v.Set(reflect.ValueOf(fn))
	return v
}

func TestWrapInstallsDispatcherAndPreservesOriginal(t *testing.T) {
	engine := wrap.NewEngine(nil)
	slot := newSlot(func(a, b int) int { return a + b })

	target := wrap.Target{ContainerID: "pkg", Name: "Add", Shape: wrap.Free, Slot: slot}

	var calls int
	build := func(ctx context.Context, original reflect.Value, target wrap.Target) reflect.Value {
		return reflect.MakeFunc(original.Type(), func(args []reflect.Value) []reflect.Value {
			calls++
			return original.Call(args)
		})
	}

	dispatcher, err := engine.Wrap(context.Background(), target, build)
	require.NoError(t, err)

	result := dispatcher.Call([]reflect.Value{reflect.ValueOf(2), reflect.ValueOf(3)})
	assert.Equal(t, int64(5), result[0].Int())
	assert.Equal(t, 1, calls)

	original, ok := engine.Original("pkg", "Add")
	require.True(t, ok)
	originalResult := original.Call([]reflect.Value{reflect.ValueOf(2), reflect.ValueOf(3)})
	assert.Equal(t, int64(5), originalResult[0].Int())
}

// TestWrapIsIdempotent validates testable property #1 (spec §8): wrapping
// the same target twice yields the same dispatcher and does not invoke
// build a second time.
func TestWrapIsIdempotent(t *testing.T) {
	engine := wrap.NewEngine(nil)
	slot := newSlot(func(a, b int) int { return a + b })
	target := wrap.Target{ContainerID: "pkg", Name: "Add", Shape: wrap.Free, Slot: slot}

	var buildCount int
	build := func(ctx context.Context, original reflect.Value, target wrap.Target) reflect.Value {
		buildCount++
		return reflect.MakeFunc(original.Type(), func(args []reflect.Value) []reflect.Value {
			return original.Call(args)
		})
	}

	first, err := engine.Wrap(context.Background(), target, build)
	require.NoError(t, err)

	// Simulate a second discovery of the same target (e.g. two mapping
	// documents referencing the same symbol, or inheritance propagation
	// revisiting it).
	second, err := engine.Wrap(context.Background(), target, build)
	require.NoError(t, err)

	assert.Equal(t, 1, buildCount, "build must not run a second time")
	assert.Equal(t, first.Pointer(), second.Pointer())
	assert.True(t, engine.IsWrapped("pkg", "Add"))
}

func TestWrapReturnsUnsupportedForUnaddressableSlot(t *testing.T) {
	engine := wrap.NewEngine(nil)
	// reflect.ValueOf on a plain func value (not via a pointer) is not
	// addressable and therefore not settable.
	target := wrap.Target{ContainerID: "pkg", Name: "Add", Shape: wrap.Free, Slot: reflect.ValueOf(addFn)}

	build := func(ctx context.Context, original reflect.Value, target wrap.Target) reflect.Value {
		return original
	}

	result, err := engine.Wrap(context.Background(), target, build)
	require.Error(t, err)
	assert.Equal(t, reflect.ValueOf(addFn).Pointer(), result.Pointer())
	assert.False(t, engine.IsWrapped("pkg", "Add"))
}
