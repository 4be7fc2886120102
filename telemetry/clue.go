package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

// instrumentationName identifies this runtime to OTEL meter/tracer providers.
const instrumentationName = "github.com/acmrt/acm"

type (
	// ClueLogger wraps goa.design/clue/log for runtime logging.
	ClueLogger struct{}

	// ClueMetrics wraps OTEL metrics for runtime instrumentation.
	ClueMetrics struct {
		meter metric.Meter
	}

	// ClueTracer wraps OTEL tracing for runtime tracing.
	ClueTracer struct {
		tracer trace.Tracer
	}

	clueSpan struct {
		span trace.Span
	}
)

// NewClueLogger constructs a Logger that delegates to goa.design/clue/log.
// The logger reads formatting and debug settings from the context (set via
// log.Context and log.WithFormat/log.WithDebug).
func NewClueLogger() Logger { return ClueLogger{} }

// NewClueMetrics constructs a Metrics recorder that delegates to OTEL
// metrics via the global MeterProvider.
func NewClueMetrics() Metrics {
	return &ClueMetrics{meter: otel.Meter(instrumentationName)}
}

// NewClueTracer constructs a Tracer that delegates to OTEL tracing via the
// global TracerProvider.
func NewClueTracer() Tracer {
	return &ClueTracer{tracer: otel.Tracer(instrumentationName)}
}

// Debug emits a debug-level log message with structured key-value pairs.
func (ClueLogger) Debug(ctx context.Context, msg string, kv ...any) {
	log.Debug(ctx, fielders(msg, kv)...)
}

// Info emits an info-level log message with structured key-value pairs.
func (ClueLogger) Info(ctx context.Context, msg string, kv ...any) {
	log.Info(ctx, fielders(msg, kv)...)
}

// Warn emits a warning-level log message with structured key-value pairs.
func (ClueLogger) Warn(ctx context.Context, msg string, kv ...any) {
	f := append([]log.Fielder{log.KV{K: "severity", V: "warning"}}, fielders(msg, kv)...)
	log.Warn(ctx, f...)
}

// Error emits an error-level log message with structured key-value pairs.
func (ClueLogger) Error(ctx context.Context, msg string, kv ...any) {
	log.Error(ctx, nil, fielders(msg, kv)...)
}

func fielders(msg string, kv []any) []log.Fielder {
	out := []log.Fielder{log.KV{K: "msg", V: msg}}
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, log.KV{K: k, V: kv[i+1]})
	}
	return out
}

// IncCounter increments a counter metric by the given value.
func (m *ClueMetrics) IncCounter(name string, value float64, tags map[string]string) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

// RecordTimer records a duration histogram metric.
func (m *ClueMetrics) RecordTimer(name string, d time.Duration, tags map[string]string) {
	h, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	h.Record(context.Background(), d.Seconds(), metric.WithAttributes(tagAttrs(tags)...))
}

// RecordGauge records a gauge-like metric value. OTEL has no synchronous
// gauge instrument, so a histogram is used as a fallback, matching the
// teacher's approach.
func (m *ClueMetrics) RecordGauge(name string, value float64, tags map[string]string) {
	h, err := m.meter.Float64Histogram(name + "_gauge")
	if err != nil {
		return
	}
	h.Record(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func tagAttrs(tags map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

// Start creates a new span with the given name, returning a new context and
// the span handle.
func (t *ClueTracer) Start(ctx context.Context, name string) (context.Context, Span) {
	newCtx, span := t.tracer.Start(ctx, name)
	return newCtx, &clueSpan{span: span}
}

// AddEvent records a span event with the given name and attributes.
func (s *clueSpan) AddEvent(name string, attrs map[string]any) {
	s.span.AddEvent(name, trace.WithAttributes(anyAttrs(attrs)...))
}

// SetStatus sets the span status code and description.
func (s *clueSpan) SetStatus(ok bool, msg string) {
	if ok {
		s.span.SetStatus(codes.Ok, msg)
		return
	}
	s.span.SetStatus(codes.Error, msg)
}

// RecordError records an error on the span.
func (s *clueSpan) RecordError(err error) {
	s.span.RecordError(err)
}

// End finalizes the span.
func (s *clueSpan) End() { s.span.End() }

func anyAttrs(attrs map[string]any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			out = append(out, attribute.String(k, val))
		case int:
			out = append(out, attribute.Int(k, val))
		case int64:
			out = append(out, attribute.Int64(k, val))
		case float64:
			out = append(out, attribute.Float64(k, val))
		case bool:
			out = append(out, attribute.Bool(k, val))
		default:
			out = append(out, attribute.String(k, ""))
		}
	}
	return out
}
