package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records entitlement decisions through an OpenTelemetry
// meter exported on the default Prometheus registry.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	decisions     otelmetric.Int64Counter
	checkDuration otelmetric.Float64Histogram
}

// New returns a usable value even when the exporter cannot be created; the
// record methods are then no-ops.
func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return &Observability{}, err
	}

	o, err := newWithReader(serviceName, exporter)
	if err != nil {
		return o, err
	}
	otel.SetMeterProvider(o.meterProvider)
	return o, nil
}

func newWithReader(serviceName string, reader metric.Reader) (*Observability, error) {
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	meter := provider.Meter(serviceName)

	decisions, err := meter.Int64Counter(
		"entitlement.decisions",
		otelmetric.WithDescription("Entitlement decisions by check and outcome"),
	)
	if err != nil {
		return &Observability{meterProvider: provider}, err
	}

	checkDuration, err := meter.Float64Histogram(
		"entitlement.check.duration",
		otelmetric.WithDescription("Entitlement check duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return &Observability{meterProvider: provider}, err
	}

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		decisions:     decisions,
		checkDuration: checkDuration,
	}, nil
}

// NewNoop returns an Observability that records nothing.
func NewNoop() *Observability {
	return &Observability{}
}

func (o *Observability) RecordDecision(ctx context.Context, check, outcome, code string) {
	if o == nil || o.decisions == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	}
	if code != "" {
		attrs = append(attrs, attribute.String("code", code))
	}
	o.decisions.Add(ctx, 1, otelmetric.WithAttributes(attrs...))
}

func (o *Observability) RecordCheckDuration(ctx context.Context, check string, duration time.Duration) {
	if o == nil || o.checkDuration == nil {
		return
	}
	o.checkDuration.Record(ctx, float64(duration.Microseconds())/1000.0, otelmetric.WithAttributes(
		attribute.String("check", check),
	))
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	return o.meterProvider.Shutdown(ctx)
}
