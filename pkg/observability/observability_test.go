package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ajitpratap0/beanpool/pkg/config"
)

func recordingTracer(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return recorder, tp
}

func TestPoolTracerTrace(t *testing.T) {
	recorder, tp := recordingTracer(t)
	pt := NewPoolTracer("OrderProcessor", tp.Tracer("test"))

	err := pt.Trace(context.Background(), "invoke", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)

	testErr := errors.New("boom")
	err = pt.Trace(context.Background(), "invoke", func(ctx context.Context) error {
		return testErr
	})
	assert.ErrorIs(t, err, testErr)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "beanpool.invoke", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)

	var deployment string
	for _, attr := range spans[0].Attributes() {
		if attr.Key == "beanpool.deployment" {
			deployment = attr.Value.AsString()
		}
	}
	assert.Equal(t, "OrderProcessor", deployment)
}

func TestSpanEvents(t *testing.T) {
	recorder, tp := recordingTracer(t)

	_, span := NewSpan(context.Background(), tp.Tracer("test"), "checkout")
	span.AddEvent("wait")
	span.SetAttribute("waited", true)
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, span.Elapsed(), 5*time.Millisecond)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "wait", spans[0].Events()[0].Name)
}

func TestNewTracerProvider(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.ExporterType = "stdout"
	cfg.SamplingRate = 1
	cfg.Writer = &buf

	tp, err := NewTracerProvider(cfg)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "exported")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "exported")

	cfg.ExporterType = "jaeger"
	_, err = NewTracerProvider(cfg)
	assert.Error(t, err)
}

func TestFromContainer(t *testing.T) {
	c := config.NewContainerConfig("billing")
	c.Observability.EnableTracing = true
	c.Observability.TracingSampleRate = 0.5

	cfg := FromContainer(c)
	assert.Equal(t, "billing", cfg.ServiceName)
	assert.Equal(t, 0.5, cfg.SamplingRate)

	c.Observability.EnableTracing = false
	cfg = FromContainer(c)
	assert.Equal(t, "none", cfg.ExporterType)
}

func TestGetTracerBeforeInitialize(t *testing.T) {
	assert.NotNil(t, GetTracer())
}

func TestShutdown(t *testing.T) {
	assert.NoError(t, Shutdown(context.Background()))
}
