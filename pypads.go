// Package pypads wires the eight core components (C1-C8) into a single
// constructible Instance: the Mapping Registry, Hook/Event Resolver,
// Function Registry, Run Cache, Wrapping Engine, Dispatcher Runtime,
// Import Interceptor and Backend Facade. There is no process-wide
// singleton analogous to PyPads' Python "current pads" global (spec §9
// Design Note, supplemented): every dependency is threaded through
// explicit construction, the way the teacher constructs its own
// long-lived services (e.g. executor.New, registry.NewManager). A thin
// package-level Default/SetDefault pair exists only for the demo CLI.
package pypads

import (
	"context"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pypads-go/pypads/backend"
	"github.com/pypads-go/pypads/config"
	"github.com/pypads-go/pypads/dispatch"
	"github.com/pypads-go/pypads/events"
	"github.com/pypads-go/pypads/funcregistry"
	"github.com/pypads-go/pypads/intercept"
	"github.com/pypads-go/pypads/mapping"
	"github.com/pypads-go/pypads/pyerrors"
	"github.com/pypads-go/pypads/runcache"
	"github.com/pypads-go/pypads/telemetry"
	"github.com/pypads-go/pypads/wrap"
)

// envBackendURI is spec §6's PYPADS_BACKEND_URI; envImportantPackages is
// PYPADS_IMPORTANT_PACKAGES (comma-separated extension of the never-
// reactivate set); envMappingPath is PYPADS_MAPPING_PATH (colon-separated
// extra mapping search paths).
const (
	envBackendURI        = "PYPADS_BACKEND_URI"
	envImportantPackages = "PYPADS_IMPORTANT_PACKAGES"
	envMappingPath       = "PYPADS_MAPPING_PATH"
)

// Instance is one fully wired pypads runtime: every package-level
// component plus the default run-scoped Configuration new runs start
// with, unless a run's own `pypads.config` tag overrides it.
type Instance struct {
	Mapping    *mapping.Registry
	Functions  *funcregistry.Registry
	Resolver   *events.Resolver
	Cache      *runcache.Cache
	Engine     *wrap.Engine
	Intercept  *intercept.Interceptor
	Dispatch   *dispatch.Runtime
	Backend    backend.Facade
	logger     telemetry.Logger

	mu            sync.RWMutex
	defaultConfig config.Configuration
	runConfigs    map[string]config.Configuration
}

// Option configures an Instance at construction time.
type Option func(*settings)

type settings struct {
	backend           backend.Facade
	logger            telemetry.Logger
	tracer            telemetry.Tracer
	metrics           telemetry.Metrics
	mappingPaths      []string
	importantPackages []string
	defaultConfig     *config.Configuration
}

// WithBackend overrides the default filesystem backend (spec §6
// PYPADS_BACKEND_URI).
func WithBackend(b backend.Facade) Option {
	return func(s *settings) { s.backend = b }
}

// WithLogger, WithTracer and WithMetrics wire observability providers
// through to the components that accept them: the logger reaches mapping,
// events, wrap, intercept and dispatch; the tracer and metrics reach
// dispatch only.
func WithLogger(l telemetry.Logger) Option   { return func(s *settings) { s.logger = l } }
func WithTracer(t telemetry.Tracer) Option   { return func(s *settings) { s.tracer = t } }
func WithMetrics(m telemetry.Metrics) Option { return func(s *settings) { s.metrics = m } }

// WithMappingPaths adds extra mapping-document search directories beyond
// mapping.DefaultSearchPaths and PYPADS_MAPPING_PATH.
func WithMappingPaths(paths ...string) Option {
	return func(s *settings) { s.mappingPaths = append(s.mappingPaths, paths...) }
}

// WithImportantPackages extends the never-reactivate set beyond
// PYPADS_IMPORTANT_PACKAGES.
func WithImportantPackages(pkgPaths ...string) Option {
	return func(s *settings) { s.importantPackages = append(s.importantPackages, pkgPaths...) }
}

// WithDefaultConfiguration sets the Configuration new runs start with
// absent their own `pypads.config` tag (spec §6).
func WithDefaultConfiguration(cfg config.Configuration) Option {
	return func(s *settings) { s.defaultConfig = &cfg }
}

// New constructs a fully wired Instance. Absent WithBackend, it opens the
// filesystem backend at PYPADS_BACKEND_URI (default backend.DefaultURI()).
func New(opts ...Option) (*Instance, error) {
	s := &settings{logger: telemetry.NewNoopLogger()}
	for _, opt := range opts {
		opt(s)
	}

	if s.backend == nil {
		uri := os.Getenv(envBackendURI)
		if uri == "" {
			uri = backend.DefaultURI()
		}
		fb, err := backend.NewFileBackendFromURI(uri, s.logger)
		if err != nil {
			return nil, err
		}
		s.backend = fb
	}

	mappingRegistry := mapping.NewRegistry(mapping.WithLogger(s.logger))
	mappingRegistry.LoadDefaults(s.mappingPaths...)

	functions := funcregistry.New()
	resolver := events.New(functions, s.logger)
	cache := runcache.New()
	engine := wrap.NewEngine(s.logger)

	defaultConfig := config.Default()
	if s.defaultConfig != nil {
		defaultConfig = *s.defaultConfig
	}

	inst := &Instance{
		Mapping:       mappingRegistry,
		Functions:     functions,
		Resolver:      resolver,
		Cache:         cache,
		Engine:        engine,
		Backend:       s.backend,
		logger:        s.logger,
		defaultConfig: defaultConfig,
		runConfigs:    make(map[string]config.Configuration),
	}

	dispatchOpts := []dispatch.Option{dispatch.WithLogger(s.logger)}
	if s.tracer != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithTracer(s.tracer))
	}
	if s.metrics != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithMetrics(s.metrics))
	}
	inst.Dispatch = dispatch.New(resolver, cache, engine, s.backend, inst, dispatchOpts...)

	inst.Intercept = intercept.New(mappingRegistry, engine, inst.Dispatch.Builder(), s.logger)
	important := append(append([]string{}, s.importantPackages...), splitNonEmpty(os.Getenv(envImportantPackages), ",")...)
	inst.Intercept.MarkImportant(important...)

	return inst, nil
}

// Configuration implements dispatch.ConfigProvider: the run's own
// `pypads.config` tag, decoded, falling back to the Instance's default
// when absent or when runID is empty (no active run).
func (i *Instance) Configuration(ctx context.Context, runID string) config.Configuration {
	i.mu.RLock()
	if cfg, ok := i.runConfigs[runID]; ok {
		i.mu.RUnlock()
		return cfg
	}
	fallback := i.defaultConfig
	i.mu.RUnlock()

	if runID == "" {
		return fallback
	}
	run, ok := i.Backend.ActiveRun(ctx)
	if !ok || run.ID != runID {
		return fallback
	}
	raw, ok := run.Tags[config.WellKnownTagKey]
	if !ok || raw == "" {
		return fallback
	}
	cfg, err := config.Parse([]byte(raw))
	if err != nil {
		i.logger.Warn(ctx, "invalid pypads.config tag, using default", "run_id", runID, "error", err)
		return fallback
	}

	i.mu.Lock()
	i.runConfigs[runID] = cfg
	i.mu.Unlock()
	return cfg
}

// SetConfiguration attaches cfg to runID's backend tag under
// config.WellKnownTagKey (spec §6: "a nested document attached to the
// active run as a tag under a well-known key") and caches it for
// subsequent Configuration lookups within this Instance.
func (i *Instance) SetConfiguration(ctx context.Context, runID string, cfg config.Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return pyerrors.Wrap(pyerrors.KindMappingLoad, err, "marshal configuration")
	}
	if err := i.Backend.SetTag(ctx, runID, config.WellKnownTagKey, string(raw)); err != nil {
		return err
	}
	i.mu.Lock()
	i.runConfigs[runID] = cfg
	i.mu.Unlock()
	return nil
}

// StartRun begins a new backend run and clears any cached Configuration
// for a prior run that reused the same id (defensive; real run ids do
// not repeat).
func (i *Instance) StartRun(ctx context.Context, experimentID string, tags map[string]string) (string, error) {
	runID, err := i.Backend.StartRun(ctx, experimentID, tags)
	if err != nil {
		return "", err
	}
	i.mu.Lock()
	delete(i.runConfigs, runID)
	i.mu.Unlock()
	return runID, nil
}

// EndRun ends runID and flushes its accumulated dispatcher timings as an
// artifact (spec §4.7 step 7: "on run end, the accumulated timings are
// emitted as an artifact"), then clears run-scoped cache and cached
// Configuration.
func (i *Instance) EndRun(ctx context.Context, runID string) error {
	if err := i.Dispatch.FlushTimings(ctx, runID); err != nil {
		i.logger.Warn(ctx, "failed to flush dispatcher timings", "run_id", runID, "error", err)
	}
	err := i.Backend.EndRun(ctx, runID)
	i.Cache.EndRun(runID)
	i.mu.Lock()
	delete(i.runConfigs, runID)
	i.mu.Unlock()
	return err
}

// Activate runs every registered package Factory that has not yet
// activated (spec §4.6).
func (i *Instance) Activate(ctx context.Context) error {
	return i.Intercept.Activate(ctx)
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var (
	defaultMu       sync.Mutex
	defaultInstance *Instance
)

// Default returns the process-wide convenience Instance, constructing one
// with New() on first use if SetDefault was never called. Only the demo
// CLI should reach for this; library code should receive an *Instance
// explicitly (spec §9 Design Note).
func Default() (*Instance, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultInstance != nil {
		return defaultInstance, nil
	}
	inst, err := New()
	if err != nil {
		return nil, err
	}
	defaultInstance = inst
	return inst, nil
}

// SetDefault installs inst as the process-wide convenience Instance
// returned by Default.
func SetDefault(inst *Instance) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultInstance = inst
}
