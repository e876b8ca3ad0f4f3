// Package telemetry provides the logging, tracing and metrics abstractions
// used throughout pypads. The dispatcher core instruments every hook phase
// through these interfaces rather than a concrete backend so that the demo
// binary, tests and production deployments can swap providers without
// touching dispatch logic.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging emitted by the mapping, wrap, intercept
// and dispatch packages. Implementations are expected to be safe for
// concurrent use from multiple goroutines.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter, timer and gauge recorders for dispatcher
// instrumentation (hook invocation counts, phase timings, failure rates).
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so the dispatcher stays agnostic of the
// underlying OpenTelemetry SDK configuration.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
}

// Span represents an in-flight span covering a single dispatcher phase
// (pre, target, post) or a higher level operation (a full dispatch, an
// intermediate run).
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}
