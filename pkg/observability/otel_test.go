package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestInitOTel_Disabled(t *testing.T) {
	var buf bytes.Buffer
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, NewLogger(InfoLevel, &buf))

	assert.NoError(t, err)
	assert.Nil(t, providers)
	assert.Contains(t, buf.String(), "OpenTelemetry is disabled")
}

// Exporters connect lazily, so an unreachable collector does not fail startup.
func TestInitOTel_UnreachableCollector(t *testing.T) {
	logger := NewLogger(ErrorLevel, &bytes.Buffer{})
	prevTP := otel.GetTracerProvider()
	prevMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	providers, err := InitOTel(context.Background(), OTelConfig{
		Enabled:        true,
		Endpoint:       "127.0.0.1:1",
		ServiceName:    "subscriptions-test",
		ServiceVersion: "test",
		Insecure:       true,
		SampleRatio:    0.5,
	}, logger)
	require.NoError(t, err)
	require.NotNil(t, providers)
	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.MeterProvider)
	assert.Same(t, providers.TracerProvider, otel.GetTracerProvider())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = ShutdownOTel(ctx, providers, logger)
}

func TestShutdownOTel_NilProviders(t *testing.T) {
	assert.NoError(t, ShutdownOTel(context.Background(), nil, NewLogger(InfoLevel, &bytes.Buffer{})))
}

func TestShutdownOTel_TracerOnly(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	err := ShutdownOTel(context.Background(), &OTelProviders{TracerProvider: tp}, NewLogger(InfoLevel, &bytes.Buffer{}))
	assert.NoError(t, err)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestTraceLogger(t *testing.T) {
	t.Run("no span leaves logger unchanged", func(t *testing.T) {
		logger := NewLogger(InfoLevel, &bytes.Buffer{})
		assert.Same(t, logger, TraceLogger(context.Background(), logger))
	})

	t.Run("recording span adds ids", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
		defer func() { _ = tp.Shutdown(context.Background()) }()

		ctx, span := tp.Tracer("test").Start(context.Background(), "renewal")
		defer span.End()

		var buf bytes.Buffer
		TraceLogger(ctx, NewLogger(InfoLevel, &buf)).Info("charging")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
		assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
	})

	t.Run("non recording span is ignored", func(t *testing.T) {
		ctx := trace.ContextWithSpanContext(context.Background(), trace.SpanContext{})
		logger := NewLogger(InfoLevel, &bytes.Buffer{})
		assert.Same(t, logger, TraceLogger(ctx, logger))
	})
}

func TestTracer(t *testing.T) {
	assert.NotNil(t, Tracer())
}
