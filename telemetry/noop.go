package telemetry

import (
	"context"
	"time"
)

// NoopLogger discards every log line.
type NoopLogger struct{}

func (NoopLogger) Debug(context.Context, string, ...any) {}
func (NoopLogger) Info(context.Context, string, ...any)  {}
func (NoopLogger) Warn(context.Context, string, ...any)  {}
func (NoopLogger) Error(context.Context, string, ...any) {}

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

func (NoopMetrics) IncCounter(string, float64, map[string]string)        {}
func (NoopMetrics) RecordTimer(string, time.Duration, map[string]string) {}
func (NoopMetrics) RecordGauge(string, float64, map[string]string)       {}

// NoopTracer produces spans that do nothing.
type NoopTracer struct{}

func (NoopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) AddEvent(string, map[string]any) {}
func (noopSpan) SetStatus(bool, string)          {}
func (noopSpan) RecordError(error)               {}
func (noopSpan) End()                            {}
