package tracing

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

const sample = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func TestTraceparentRoundTrip(t *testing.T) {
	Setup()

	ctx := ContextWithTraceparent(context.Background(), sample)
	sc := trace.SpanContextFromContext(ctx)
	require.True(t, sc.IsValid())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())
	assert.Equal(t, sample, Traceparent(ctx))

	headers := InjectKafkaHeaders(ctx, []kafka.Header{{Key: "event_type", Value: []byte("OrderPlaced")}})
	back := ExtractKafkaHeaders(context.Background(), headers)
	assert.Equal(t, sc.TraceID(), trace.SpanContextFromContext(back).TraceID())
}

func TestTraceparentEmpty(t *testing.T) {
	Setup()
	assert.Empty(t, Traceparent(context.Background()))
	ctx := context.Background()
	assert.Equal(t, ctx, ContextWithTraceparent(ctx, ""))
}
