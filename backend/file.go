package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pypads-go/pypads/pyerrors"
	"github.com/pypads-go/pypads/telemetry"
)

// DefaultURI is the backend URI used when PYPADS_BACKEND_URI is unset
// (spec §6, adapted from "file:<home>/.mlruns"): a directory of run
// documents under the user's home directory, requiring no external
// service.
func DefaultURI() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return "file:" + filepath.Join(home, ".pypads")
}

// FileBackend is the default Facade implementation: a directory tree of
// JSON run/param/metric/tag/artifact files, mirroring spec §6's "minimal
// filesystem run store... always available with no external service."
// Layout: <root>/<experimentID>/<runID>/{run.json,params.json,metrics.json,
// tags.json,artifacts/<name>}.
type FileBackend struct {
	mu     sync.Mutex
	root   string
	logger telemetry.Logger

	runs   map[string]*Run
	active []string // stack; top (last element) is the process-wide active run
}

// NewFileBackend opens (creating if necessary) a filesystem-backed Facade
// rooted at dir.
func NewFileBackend(dir string, logger telemetry.Logger) (*FileBackend, error) {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pyerrors.Wrap(pyerrors.KindMappingLoad, err, "create backend root")
	}
	return &FileBackend{root: dir, logger: logger, runs: make(map[string]*Run)}, nil
}

// NewFileBackendFromURI parses a "file:<path>" URI (spec §6 environment
// variable PYPADS_BACKEND_URI) and opens the corresponding FileBackend.
func NewFileBackendFromURI(uri string, logger telemetry.Logger) (*FileBackend, error) {
	path, ok := strings.CutPrefix(uri, "file:")
	if !ok {
		return nil, pyerrors.Newf(pyerrors.KindMappingLoad, "not a file backend uri: %q", uri)
	}
	return NewFileBackend(path, logger)
}

func (b *FileBackend) StartRun(ctx context.Context, experimentID string, tags map[string]string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	run := &Run{
		ID:           id,
		ExperimentID: experimentID,
		Status:       StatusRunning,
		StartedAt:    time.Now().UTC(),
		Tags:         cloneStringMap(tags),
		Params:       map[string]any{},
		Metrics:      map[string][]MetricPoint{},
		Artifacts:    map[string]Artifact{},
	}
	if len(b.active) > 0 {
		run.ParentRunID = b.active[len(b.active)-1]
	}
	b.runs[id] = run
	b.active = append(b.active, id)
	if err := b.persist(run); err != nil {
		return "", err
	}
	b.logger.Info(ctx, "run started", "run_id", id, "experiment_id", experimentID)
	return id, nil
}

// EndRun is idempotent and tolerates an unknown runID (spec §4.8).
func (b *FileBackend) EndRun(ctx context.Context, runID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	run, ok := b.runs[runID]
	if !ok {
		return nil
	}
	if run.Status == StatusFinished || run.Status == StatusFailed {
		b.popActive(runID)
		return nil
	}
	run.Status = StatusFinished
	run.EndedAt = time.Now().UTC()
	b.popActive(runID)
	if err := b.persist(run); err != nil {
		return err
	}
	b.logger.Info(ctx, "run ended", "run_id", runID)
	return nil
}

// popActive removes runID from the active stack wherever it sits, not just
// the top, so EndRun on a run that is not the innermost active one still
// restores the remaining stack correctly.
func (b *FileBackend) popActive(runID string) {
	for i := len(b.active) - 1; i >= 0; i-- {
		if b.active[i] == runID {
			b.active = append(b.active[:i], b.active[i+1:]...)
			return
		}
	}
}

func (b *FileBackend) ActiveRunID(ctx context.Context) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.active) == 0 {
		return "", false
	}
	return b.active[len(b.active)-1], true
}

func (b *FileBackend) ActiveRun(ctx context.Context) (Run, bool) {
	id, ok := b.ActiveRunID(ctx)
	if !ok {
		return Run{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	run, ok := b.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

func (b *FileBackend) LogParam(ctx context.Context, runID, key string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	run, err := b.requireRun(runID)
	if err != nil {
		return err
	}
	run.Params[key] = value
	return b.persist(run)
}

func (b *FileBackend) LogMetric(ctx context.Context, runID, key string, value float64, step int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	run, err := b.requireRun(runID)
	if err != nil {
		return err
	}
	run.Metrics[key] = append(run.Metrics[key], MetricPoint{Value: value, Step: step, At: time.Now().UTC()})
	return b.persist(run)
}

func (b *FileBackend) SetTag(ctx context.Context, runID, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	run, err := b.requireRun(runID)
	if err != nil {
		return err
	}
	if run.Tags == nil {
		run.Tags = map[string]string{}
	}
	run.Tags[key] = value
	return b.persist(run)
}

func (b *FileBackend) LogArtifact(ctx context.Context, runID, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	run, err := b.requireRun(runID)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return pyerrors.Wrap(pyerrors.KindMappingLoad, err, "read artifact")
	}
	name := filepath.Base(path)
	run.Artifacts[name] = Artifact{Name: name, Path: path, Data: data}
	return b.writeArtifact(run, name, data)
}

func (b *FileBackend) LogInMemoryArtifact(ctx context.Context, runID, name string, data []byte, format string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	run, err := b.requireRun(runID)
	if err != nil {
		return err
	}
	run.Artifacts[name] = Artifact{Name: name, Data: data, Format: format}
	return b.writeArtifact(run, name, data)
}

// IntermediateRun starts a nested run and returns a release function that
// ends it and restores the enclosing run, safe to call from defer even
// after a panic (spec §4.8, scenario S4: "the intermediate run is closed,
// the enclosing run remains active").
func (b *FileBackend) IntermediateRun(ctx context.Context, experimentID string, tags map[string]string) (string, func(ctx context.Context) error, error) {
	id, err := b.StartRun(ctx, experimentID, tags)
	if err != nil {
		return "", nil, err
	}
	var once sync.Once
	release := func(ctx context.Context) error {
		var releaseErr error
		once.Do(func() {
			releaseErr = b.EndRun(ctx, id)
		})
		return releaseErr
	}
	return id, release, nil
}

func (b *FileBackend) requireRun(runID string) (*Run, error) {
	run, ok := b.runs[runID]
	if !ok {
		return nil, pyerrors.Newf(pyerrors.KindLoggerNotFound, "unknown run %q", runID)
	}
	return run, nil
}

func (b *FileBackend) runDir(run *Run) string {
	return filepath.Join(b.root, sanitizeSegment(run.ExperimentID), run.ID)
}

func (b *FileBackend) persist(run *Run) error {
	dir := b.runDir(run)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pyerrors.Wrap(pyerrors.KindMappingLoad, err, "create run directory")
	}
	writers := map[string]any{
		"run.json":     runSummary(run),
		"params.json":  run.Params,
		"metrics.json": run.Metrics,
		"tags.json":    run.Tags,
	}
	for file, payload := range writers {
		if err := writeJSON(filepath.Join(dir, file), payload); err != nil {
			return err
		}
	}
	return nil
}

func (b *FileBackend) writeArtifact(run *Run, name string, data []byte) error {
	dir := filepath.Join(b.runDir(run), "artifacts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pyerrors.Wrap(pyerrors.KindMappingLoad, err, "create artifacts directory")
	}
	path := filepath.Join(dir, sanitizeSegment(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return pyerrors.Wrap(pyerrors.KindMappingLoad, err, "write artifact")
	}
	return nil
}

type runSummaryDoc struct {
	ID           string    `json:"id"`
	ExperimentID string    `json:"experiment_id"`
	ParentRunID  string    `json:"parent_run_id,omitempty"`
	Status       Status    `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at,omitempty"`
}

func runSummary(run *Run) runSummaryDoc {
	return runSummaryDoc{
		ID:           run.ID,
		ExperimentID: run.ExperimentID,
		ParentRunID:  run.ParentRunID,
		Status:       run.Status,
		StartedAt:    run.StartedAt,
		EndedAt:      run.EndedAt,
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return pyerrors.Wrap(pyerrors.KindMappingLoad, err, "marshal run document")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return pyerrors.Wrap(pyerrors.KindMappingLoad, err, "write run document")
	}
	return nil
}

func sanitizeSegment(s string) string {
	if s == "" {
		return "default"
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return replacer.Replace(s)
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var (
	_ fmt.Stringer = (*FileBackend)(nil)
	_ Facade       = (*FileBackend)(nil)
)

// String renders a compact identifier, useful in logs.
func (b *FileBackend) String() string {
	return "file:" + b.root
}
