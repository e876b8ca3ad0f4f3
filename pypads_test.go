package pypads_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pypads-go/pypads"
	"github.com/pypads-go/pypads/backend"
	"github.com/pypads-go/pypads/config"
	"github.com/pypads-go/pypads/telemetry"
)

func newInstance(t *testing.T) *pypads.Instance {
	t.Helper()
	fb, err := backend.NewFileBackend(t.TempDir(), telemetry.NewNoopLogger())
	require.NoError(t, err)
	inst, err := pypads.New(pypads.WithBackend(fb), pypads.WithLogger(telemetry.NewNoopLogger()))
	require.NoError(t, err)
	return inst
}

func TestNewWiresEveryComponent(t *testing.T) {
	inst := newInstance(t)
	assert.NotNil(t, inst.Mapping)
	assert.NotNil(t, inst.Functions)
	assert.NotNil(t, inst.Resolver)
	assert.NotNil(t, inst.Cache)
	assert.NotNil(t, inst.Engine)
	assert.NotNil(t, inst.Intercept)
	assert.NotNil(t, inst.Dispatch)
	assert.NotNil(t, inst.Backend)
}

func TestConfigurationFallsBackToDefaultAbsentRunTag(t *testing.T) {
	inst := newInstance(t)
	ctx := context.Background()

	runID, err := inst.StartRun(ctx, "exp-1", nil)
	require.NoError(t, err)
	defer inst.EndRun(ctx, runID)

	cfg := inst.Configuration(ctx, runID)
	assert.Equal(t, config.Default(), cfg)
}

func TestSetConfigurationRoundTripsThroughBackendTag(t *testing.T) {
	inst := newInstance(t)
	ctx := context.Background()

	runID, err := inst.StartRun(ctx, "exp-1", nil)
	require.NoError(t, err)
	defer inst.EndRun(ctx, runID)

	want := config.Configuration{
		Events: map[string]config.EventBinding{
			"pypads_predict": {On: []string{"pypads_predict"}, Order: 1, With: map[string]any{}},
		},
		RecursionDepth: 3,
	}
	require.NoError(t, inst.SetConfiguration(ctx, runID, want))

	got := inst.Configuration(ctx, runID)
	assert.Equal(t, want, got)
}

func TestConfigurationRejectsInvalidOverride(t *testing.T) {
	inst := newInstance(t)
	ctx := context.Background()

	bad := config.Configuration{Events: map[string]config.EventBinding{"broken": {}}}
	err := inst.SetConfiguration(ctx, "run-1", bad)
	assert.Error(t, err)
}

func TestSetDefaultOverridesDefault(t *testing.T) {
	inst := newInstance(t)
	pypads.SetDefault(inst)

	got, err := pypads.Default()
	require.NoError(t, err)
	assert.Same(t, inst, got)
}
