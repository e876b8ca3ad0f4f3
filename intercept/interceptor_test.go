package intercept_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypads-go/pypads/intercept"
	"github.com/pypads-go/pypads/mapping"
	"github.com/pypads-go/pypads/wrap"
)

const sampleDoc = `
metadata:
  author: test
  library: lib
  library_version: "1.0"
  mapping_version: "1.0"
algorithms:
  - name: base-algorithm
    implementation:
      lib: lib.a.Base
    hooks:
      pypads_fit: always
`

func newSlot(fn any) reflect.Value {
	v := reflect.New(reflect.TypeOf(fn)).Elem()
	v.Set(reflect.ValueOf(fn))
	return v
}

func passthroughBuilder(ctx context.Context, original reflect.Value, t wrap.Target) reflect.Value {
	return reflect.MakeFunc(original.Type(), func(args []reflect.Value) []reflect.Value {
		return original.Call(args)
	})
}

func TestActivateWrapsDirectlyMatchedSymbol(t *testing.T) {
	doc, err := mapping.Parse("test.yaml", []byte(sampleDoc))
	require.NoError(t, err)

	registry := mapping.NewRegistry()
	registry.LoadDocument(doc)

	engine := wrap.NewEngine(nil)
	i := intercept.New(registry, engine, passthroughBuilder, nil)

	var wrapped bool
	i.Register("lib/a", func(ctx context.Context, i *intercept.Interceptor) error {
		slot := newSlot(func(x int) int { return x * 2 })
		_, ok, err := i.WrapSymbol(ctx, "lib.a.Base", "lib.a.Base", "Fit", wrap.Method, slot)
		wrapped = ok
		return err
	})

	require.NoError(t, i.Activate(context.Background()))
	assert.True(t, wrapped)
	assert.True(t, engine.IsWrapped("lib.a.Base", "Fit"))
}

func TestActivateSkipsImportantPackages(t *testing.T) {
	registry := mapping.NewRegistry()
	engine := wrap.NewEngine(nil)
	i := intercept.New(registry, engine, passthroughBuilder, nil)

	var ran bool
	i.Register("lib/internal", func(ctx context.Context, i *intercept.Interceptor) error {
		ran = true
		return nil
	})
	i.MarkImportant("lib/internal")

	require.NoError(t, i.Activate(context.Background()))
	assert.False(t, ran, "important packages are never activated")
}

func TestActivateIsIdempotentPerPackage(t *testing.T) {
	registry := mapping.NewRegistry()
	engine := wrap.NewEngine(nil)
	i := intercept.New(registry, engine, passthroughBuilder, nil)

	var runs int
	i.Register("lib/a", func(ctx context.Context, i *intercept.Interceptor) error {
		runs++
		return nil
	})

	require.NoError(t, i.Activate(context.Background()))
	require.NoError(t, i.Activate(context.Background()))
	assert.Equal(t, 1, runs, "a package already activated is not re-walked")
}

// TestInheritancePropagationSynthesizesMappingForDescendant validates
// testable property #4 / scenario S2 (spec §8): a concrete type declared
// (via RegisterType) to descend from an already-wrapped container
// inherits that container's Algorithm, tagged with InheritedFrom.
func TestInheritancePropagationSynthesizesMappingForDescendant(t *testing.T) {
	doc, err := mapping.Parse("test.yaml", []byte(sampleDoc))
	require.NoError(t, err)

	registry := mapping.NewRegistry()
	registry.LoadDocument(doc)

	engine := wrap.NewEngine(nil)
	i := intercept.New(registry, engine, passthroughBuilder, nil)

	i.Register("lib/a", func(ctx context.Context, i *intercept.Interceptor) error {
		slot := newSlot(func(x int) int { return x * 2 })
		_, _, err := i.WrapSymbol(ctx, "lib.a.Base", "lib.a.Base", "Fit", wrap.Method, slot)
		return err
	})
	require.NoError(t, i.Activate(context.Background()))

	// A later-imported module declares Child embeds Base.
	i.RegisterType("lib.b.Child", "lib.a.Base")
	require.NoError(t, i.Activate(context.Background()))

	inherited, ok := registry.Lookup("lib.b.Child")
	require.True(t, ok, "Child inherits Base's mapping once declared")
	assert.Equal(t, "lib.a.Base", inherited.InheritedFrom)
	assert.Equal(t, "base-algorithm", inherited.Name)
}
