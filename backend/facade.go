// Package backend implements the Backend Facade (spec §4.8, C8): the
// minimal surface the dispatcher core consumes to persist runs, params,
// metrics, tags and artifacts. The core treats the concrete experiment
// store as an external collaborator (spec §1 Non-goals: "the core does not
// itself persist data — it delegates to the backend collaborator"); this
// package only fixes the interface and ships two implementations.
package backend

import (
	"context"
	"time"
)

// MetricPoint is one recorded value of a named metric, optionally ordered
// by an integer step (spec §6 "metrics (keyed, with optional integer
// step)").
type MetricPoint struct {
	Value float64
	Step  int
	At    time.Time
}

// Run is the backend contract's run record (spec §6): an id, experiment
// id, tags, params, metrics and artifacts. Runs may be nested; a nested
// run inherits nothing automatically but may be linked by tags a logger
// sets (spec §6).
type Run struct {
	ID           string
	ExperimentID string
	ParentRunID  string
	Status       Status
	StartedAt    time.Time
	EndedAt      time.Time
	Tags         map[string]string
	Params       map[string]any
	Metrics      map[string][]MetricPoint
	Artifacts    map[string]Artifact
}

// Status is the lifecycle state of a Run.
type Status string

const (
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// Artifact is a named blob logged against a run, either a path to a file
// already on disk (LogArtifact) or an in-memory payload with a format hint
// (LogInMemoryArtifact, e.g. "json", "text/plain").
type Artifact struct {
	Name   string
	Path   string
	Data   []byte
	Format string
}

// Facade is the minimal interface to the experiment-tracking backend the
// dispatcher core consumes (spec §4.8): start/end run, log param/metric/
// tag/artifact, and scoped intermediate nested runs. Implementations must
// be idempotent on repeated EndRun and tolerate EndRun called without a
// matching StartRun (spec §4.8 invariant).
type Facade interface {
	// StartRun begins a new run under experimentID, applying the given
	// initial tags, and makes it the active run for the calling context.
	StartRun(ctx context.Context, experimentID string, tags map[string]string) (runID string, err error)

	// EndRun closes runID. Idempotent: ending an already-ended or unknown
	// run is not an error (spec §4.8).
	EndRun(ctx context.Context, runID string) error

	// ActiveRunID reports the run considered active for ctx, if any.
	ActiveRunID(ctx context.Context) (string, bool)

	// ActiveRun reports the full record of the active run, if any.
	ActiveRun(ctx context.Context) (Run, bool)

	LogParam(ctx context.Context, runID, key string, value any) error
	LogMetric(ctx context.Context, runID, key string, value float64, step int) error
	SetTag(ctx context.Context, runID, key, value string) error
	LogArtifact(ctx context.Context, runID, path string) error
	LogInMemoryArtifact(ctx context.Context, runID, name string, data []byte, format string) error

	// IntermediateRun acquires a nested run scoped to the returned
	// release function: calling it restores the enclosing run as active
	// and ends the intermediate run, and it is safe to call via defer
	// even when the caller panics (spec §4.8 "a scoped acquisition of a
	// nested run with guaranteed release").
	IntermediateRun(ctx context.Context, experimentID string, tags map[string]string) (runID string, release func(ctx context.Context) error, err error)
}
