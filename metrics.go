package toolgram

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/skosovsky/toolgram"

// Metric names recorded by Pipeline.
const (
	MetricGenerateRequests = "toolgram.generate.requests"
	MetricGenerateDuration = "toolgram.generate.duration"
	MetricInvocations      = "toolgram.invocations"
	MetricInvokeDuration   = "toolgram.invoke.duration"
)

// WithMeterProvider sets the OpenTelemetry meter provider (default: the global provider).
func WithMeterProvider(mp metric.MeterProvider) PipelineOption {
	return func(o *pipelineOptions) {
		o.meterProvider = mp
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider (default: the global provider).
func WithTracerProvider(tp trace.TracerProvider) PipelineOption {
	return func(o *pipelineOptions) {
		o.tracerProvider = tp
	}
}

type metrics struct {
	generateRequests metric.Int64Counter
	generateDuration metric.Float64Histogram
	invocations      metric.Int64Counter
	invokeDuration   metric.Float64Histogram
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	m := &metrics{}
	var err error
	if m.generateRequests, err = meter.Int64Counter(
		MetricGenerateRequests,
		metric.WithDescription("Number of guarded generation requests"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("create metric %s: %w", MetricGenerateRequests, err)
	}
	if m.generateDuration, err = meter.Float64Histogram(
		MetricGenerateDuration,
		metric.WithDescription("Duration of guarded generation, including the wait for the engine"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create metric %s: %w", MetricGenerateDuration, err)
	}
	if m.invocations, err = meter.Int64Counter(
		MetricInvocations,
		metric.WithDescription("Number of executed model outputs by outcome"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("create metric %s: %w", MetricInvocations, err)
	}
	if m.invokeDuration, err = meter.Float64Histogram(
		MetricInvokeDuration,
		metric.WithDescription("Duration of validation and tool execution"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create metric %s: %w", MetricInvokeDuration, err)
	}
	return m, nil
}

func (m *metrics) recordGenerate(ctx context.Context, d time.Duration, outcome string) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.generateRequests.Add(ctx, 1, attrs)
	m.generateDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *metrics) recordInvoke(ctx context.Context, tool string, d time.Duration, outcome string) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome),
	)
	m.invocations.Add(ctx, 1, attrs)
	m.invokeDuration.Record(ctx, d.Seconds(), attrs)
}
