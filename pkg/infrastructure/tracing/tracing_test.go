package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func TestStartEnd(t *testing.T) {
	recorder := recordSpans(t)

	_, span := Start(context.Background(), "production.start_task", attribute.String("run_id", "RUN1"))
	End(span, nil)
	_, failed := Start(context.Background(), "production.cancel")
	End(failed, errors.New("refused"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "production.start_task", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("run_id", "RUN1"))
	assert.Equal(t, instrumentationName, spans[0].InstrumentationScope().Name)

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "refused", spans[1].Status().Description)
	require.Len(t, spans[1].Events(), 1)
	assert.Equal(t, "exception", spans[1].Events()[0].Name)
}
