// Package telemetry defines the logging, metrics, and tracing interfaces
// used throughout the ACM runtime, plus a goa.design/clue-backed
// implementation and a Noop implementation for tests. The interface shapes
// are inferred from call sites in the teacher's runtime/agent/telemetry
// package (clue.go, noop.go), which ships concrete implementations but not
// the interface definitions themselves in this retrieval pack.
package telemetry

import (
	"context"
	"time"
)

// Logger emits structured log lines keyed by a message and alternating
// key/value pairs, matching the teacher's clue.Logger call convention.
type Logger interface {
	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, msg string, kv ...any)
}

// Metrics records counters, timers, and gauges tagged with arbitrary labels.
type Metrics interface {
	IncCounter(name string, value float64, tags map[string]string)
	RecordTimer(name string, d time.Duration, tags map[string]string)
	RecordGauge(name string, value float64, tags map[string]string)
}

// Tracer starts spans around units of work.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, Span)
}

// Span is a single unit of traced work.
type Span interface {
	AddEvent(name string, attrs map[string]any)
	SetStatus(ok bool, msg string)
	RecordError(err error)
	End()
}

// Telemetry bundles the three signal types the runtime threads through its
// components, mirroring the teacher's practice of passing one telemetry
// struct rather than three separate parameters.
type Telemetry struct {
	Logger  Logger
	Metrics Metrics
	Tracer  Tracer
}

// Noop returns a Telemetry whose signals are all discarded.
func Noop() Telemetry {
	return Telemetry{Logger: NoopLogger{}, Metrics: NoopMetrics{}, Tracer: NoopTracer{}}
}
