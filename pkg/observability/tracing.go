// Package observability configures OpenTelemetry tracing for beanpool and
// provides span helpers used by the instance manager.
package observability

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ajitpratap0/beanpool"

var (
	// Global tracer instance, replaced by Initialize
	tracer trace.Tracer

	tracerMu sync.RWMutex

	// Initialization lock
	initOnce sync.Once
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRate   float64
	ExporterType   string // "stdout" or "none"
	BatchTimeout   time.Duration
	MaxExportBatch int
	MaxQueueSize   int
	// Writer receives stdout exporter output; defaults to os.Stdout
	Writer io.Writer
}

// Initialize sets up the global tracer provider. Only the first call has
// any effect.
func Initialize(config TracingConfig) error {
	var err error

	initOnce.Do(func() {
		err = initTracing(config)
		if err != nil {
			return
		}

		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	})

	return err
}

// GetTracer returns the global tracer. Before Initialize it is backed by
// whatever provider is registered with otel, a no-op one by default.
func GetTracer() trace.Tracer {
	tracerMu.RLock()
	t := tracer
	tracerMu.RUnlock()
	if t == nil {
		return otel.Tracer(instrumentationName)
	}
	return t
}

func setTracer(t trace.Tracer) {
	tracerMu.Lock()
	tracer = t
	tracerMu.Unlock()
}

// Span wraps an OpenTelemetry span and batches its attributes
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// NewSpan starts a span on the given tracer
func NewSpan(ctx context.Context, t trace.Tracer, operationName string) (context.Context, *Span) {
	if t == nil {
		t = GetTracer()
	}
	ctx, span := t.Start(ctx, operationName)

	return ctx, &Span{
		span:      span,
		startTime: time.Now(),
	}
}

// SetAttribute adds an attribute to the span, applied on End
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	case time.Duration:
		attr = attribute.String(key, v.String())
	case fmt.Stringer:
		attr = attribute.String(key, v.String())
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Fail records err on the span and marks it as failed
func (s *Span) Fail(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// Elapsed returns the time since the span started
func (s *Span) Elapsed() time.Duration {
	return time.Since(s.startTime)
}

// End ends the span
func (s *Span) End() {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	s.span.End()
}

// PoolTracer starts spans labelled with one deployment
type PoolTracer struct {
	deployment string
	tracer     trace.Tracer
}

// NewPoolTracer creates a tracer for a deployment. A nil tracer means the
// global one.
func NewPoolTracer(deployment string, t trace.Tracer) *PoolTracer {
	return &PoolTracer{deployment: deployment, tracer: t}
}

// StartSpan starts a span named "beanpool.<operation>"
func (pt *PoolTracer) StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	ctx, span := NewSpan(ctx, pt.tracer, "beanpool."+operation)
	span.SetAttribute("beanpool.deployment", pt.deployment)
	span.SetAttribute("beanpool.operation", operation)
	return ctx, span
}

// Trace runs fn inside a span, recording its error
func (pt *PoolTracer) Trace(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := pt.StartSpan(ctx, operation)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.Fail(err)
	} else {
		span.span.SetStatus(codes.Ok, "")
	}
	return err
}
