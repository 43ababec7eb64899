// Package telemetry defines the thin observability adapter the Agent Server
// emits events through. The core never talks to a tracer or log sink
// directly; it only depends on these interfaces, so callers can supply Clue,
// a test stub, or a no-op implementation without touching server code.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the runtime.
// Implementations typically delegate to Clue but the interface is
// intentionally small so tests can provide lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter and histogram helpers for runtime instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so runtime code remains agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// Adapter bundles the three observability seams the Agent Server consults.
// It is the one telemetry-shaped start option (spec.md §4.2 treats
// telemetry sinks as external; Adapter is only the seam, not a sink).
type Adapter struct {
	Logger  Logger
	Metrics Metrics
	Tracer  Tracer
}

// Noop returns an Adapter whose components discard everything. Used as the
// default when Options.Telemetry is unset.
func Noop() Adapter {
	return Adapter{Logger: NewNoopLogger(), Metrics: NewNoopMetrics(), Tracer: NewNoopTracer()}
}
