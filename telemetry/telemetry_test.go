package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNoopDiscardsEverySignal(t *testing.T) {
	tel := Noop()
	ctx := context.Background()

	require.NotPanics(t, func() {
		tel.Logger.Info(ctx, "hello", "k", "v")
		tel.Metrics.IncCounter("c", 1, nil)
		tel.Metrics.RecordTimer("t", time.Second, nil)
		tel.Metrics.RecordGauge("g", 1, nil)

		spanCtx, span := tel.Tracer.Start(ctx, "op")
		require.Equal(t, ctx, spanCtx)
		span.AddEvent("evt", nil)
		span.SetStatus(true, "ok")
		span.RecordError(nil)
		span.End()
	})
}
