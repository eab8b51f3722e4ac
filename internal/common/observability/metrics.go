package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider     *metric.MeterProvider
	meter             otelmetric.Meter
	provisionCounter  otelmetric.Int64Counter
	provisionDuration otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	provisionCounter, _ := meter.Int64Counter(
		"provisions.processed",
		otelmetric.WithDescription("Number of provisioning requests processed"),
	)

	provisionDuration, _ := meter.Float64Histogram(
		"provisions.duration",
		otelmetric.WithDescription("Provisioning workflow duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:     provider,
		meter:             meter,
		provisionCounter:  provisionCounter,
		provisionDuration: provisionDuration,
	}
}

func (o *Observability) RecordProvisionProcessed(ctx context.Context, outcome string) {
	if o.provisionCounter != nil {
		o.provisionCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}
}

func (o *Observability) RecordProvisionDuration(ctx context.Context, duration time.Duration, outcome string) {
	if o.provisionDuration != nil {
		o.provisionDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
