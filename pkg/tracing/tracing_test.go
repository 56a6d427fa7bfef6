package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), p.Tracer(), "op")
	assert.False(t, span.IsRecording())
	EndSpan(span, nil)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestUnknownExporter(t *testing.T) {
	_, err := New(context.Background(), Config{Enabled: true, Exporter: "zipkin", ServiceName: "x"})
	assert.Error(t, err)
}

func TestEndSpanRecordsStatus(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	p := NewWithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)), "test")

	_, ok := StartSpan(context.Background(), p.Tracer(), "ok", AttrFilterKey.String("k"))
	EndSpan(ok, nil)
	_, bad := StartSpan(context.Background(), p.Tracer(), "bad")
	EndSpan(bad, errors.New("store down"))

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "store down", spans[1].Status().Description)
	require.NoError(t, p.Shutdown(context.Background()))
}
