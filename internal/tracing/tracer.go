package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/platformbuilds/vigia/internal/config"
)

// TracerProvider manages the lifecycle of the OpenTelemetry tracer. When
// tracing is disabled it stays inert and the global otel provider remains
// the noop default.
type TracerProvider struct {
	tp *sdktrace.TracerProvider
}

// NewTracerProvider wires an OTLP/gRPC exporter and installs the provider
// globally so otel.Tracer handles pick it up.
func NewTracerProvider(cfg config.TracingConfig, serviceName, serviceVersion string) (*TracerProvider, error) {
	if !cfg.Enabled {
		return &TracerProvider{}, nil
	}

	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
			semconv.ServiceNamespaceKey.String("vigia"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(tp)

	return &TracerProvider{tp: tp}, nil
}

// Shutdown flushes pending spans. Safe to call on a disabled provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.tp == nil {
		return nil
	}
	return tp.tp.Shutdown(ctx)
}

// CycleTracer spans the analysis pipeline: one span per scheduler cycle with
// the correlation pass nested inside it.
type CycleTracer struct {
	tracer trace.Tracer
}

func NewCycleTracer(serviceName string) *CycleTracer {
	return &CycleTracer{tracer: otel.Tracer(serviceName)}
}

// StartCycleSpan opens the root span for one analysis cycle. Trigger is
// "scheduled" or "manual".
func (ct *CycleTracer) StartCycleSpan(ctx context.Context, trigger string) (context.Context, trace.Span) {
	return ct.tracer.Start(ctx, "analysis_cycle",
		trace.WithAttributes(
			attribute.String("cycle.trigger", trigger),
			attribute.String("component", "scheduler"),
		),
	)
}

// StartCorrelationSpan opens the nested span covering RCA for one cycle.
func (ct *CycleTracer) StartCorrelationSpan(ctx context.Context, anomalyCount int) (context.Context, trace.Span) {
	return ct.tracer.Start(ctx, "anomaly_correlation",
		trace.WithAttributes(
			attribute.Int("correlation.anomalies", anomalyCount),
			attribute.String("component", "rca-engine"),
		),
	)
}

// RecordCycleMetrics stamps the cycle outcome on its span.
func (ct *CycleTracer) RecordCycleMetrics(span trace.Span, duration time.Duration, anomalies, incidents int) {
	span.SetAttributes(
		attribute.Int64("cycle.duration_ms", duration.Milliseconds()),
		attribute.Int("cycle.anomalies", anomalies),
		attribute.Int("cycle.incidents", incidents),
	)
}

// RecordError marks a span failed.
func (ct *CycleTracer) RecordError(span trace.Span, err error) {
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}
