package events_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypads-go/pypads/config"
	"github.com/pypads-go/pypads/events"
	"github.com/pypads-go/pypads/funcregistry"
	"github.com/pypads-go/pypads/mapping"
)

type stubLogger struct{ name string }

func (s stubLogger) Name() string { return s.name }

func TestResolveOrdersByConfiguredOrder(t *testing.T) {
	funcs := funcregistry.New()
	funcs.Register("parameters", "", "", stubLogger{"parameters"})
	funcs.Register("metrics", "", "", stubLogger{"metrics"})

	resolver := events.New(funcs, nil)

	algo := &mapping.Algorithm{
		Library: "github.com/example/sklearn",
		Hooks: []mapping.Hook{
			{Event: "pypads_fit", Selector: mapping.Selector{Always: true}},
		},
	}

	cfg, err := config.Parse([]byte(`
events:
  parameters:
    on: ["pypads_fit"]
    order: 5
  metrics:
    on: ["pypads_fit"]
    order: 1
`))
	require.NoError(t, err)

	resolved := resolver.Resolve(context.Background(), algo, "Fit", cfg)
	require.Len(t, resolved, 2)
	assert.Equal(t, "metrics", resolved[0].Event)
	assert.Equal(t, "parameters", resolved[1].Event)
}

func TestResolveSkipsEventsWithNoMatchingHook(t *testing.T) {
	funcs := funcregistry.New()
	funcs.Register("parameters", "", "", stubLogger{"parameters"})
	resolver := events.New(funcs, nil)

	algo := &mapping.Algorithm{
		Hooks: []mapping.Hook{
			{Event: "pypads_predict", Selector: mapping.Selector{Members: map[string]struct{}{"Predict": {}}}},
		},
	}

	cfg, err := config.Parse([]byte(`
events:
  parameters:
    on: ["pypads_predict"]
`))
	require.NoError(t, err)

	resolved := resolver.Resolve(context.Background(), algo, "Fit", cfg)
	assert.Empty(t, resolved, "Fit does not match the Predict-only selector")
}

func TestResolveSkipsUnregisteredLoggerWithoutError(t *testing.T) {
	funcs := funcregistry.New()
	resolver := events.New(funcs, nil)

	algo := &mapping.Algorithm{
		Hooks: []mapping.Hook{{Event: "pypads_fit", Selector: mapping.Selector{Always: true}}},
	}
	cfg, err := config.Parse([]byte(`
events:
  missing:
    on: ["pypads_fit"]
`))
	require.NoError(t, err)

	resolved := resolver.Resolve(context.Background(), algo, "Fit", cfg)
	assert.Empty(t, resolved)
}
