// internal/common/observability/metrics.go
package observability

import (
	"context"
	"time"

	"sos-workers/internal/common/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records reaction counts and latency through an otel meter exported to Prometheus.
type Observability struct {
	meterProvider    *metric.MeterProvider
	reactionCounter  otelmetric.Int64Counter
	reactionDuration otelmetric.Float64Histogram
}

// New never fails; a broken exporter yields a recorder whose methods are no-ops.
func New(serviceName string, log logger.Logger) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("otel prometheus exporter unavailable", map[string]interface{}{"error": err})
		return &Observability{}
	}

	return newWithReader(exporter, serviceName, log)
}

func newWithReader(reader metric.Reader, serviceName string, log logger.Logger) *Observability {
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	meter := provider.Meter(serviceName)

	counter, err := meter.Int64Counter(
		"sos.reactions.processed",
		otelmetric.WithDescription("Lifecycle reactions processed"),
	)
	if err != nil {
		log.Warn("otel counter unavailable", map[string]interface{}{"error": err})
	}

	duration, err := meter.Float64Histogram(
		"sos.reactions.duration",
		otelmetric.WithDescription("Lifecycle reaction duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		log.Warn("otel histogram unavailable", map[string]interface{}{"error": err})
	}

	return &Observability{
		meterProvider:    provider,
		reactionCounter:  counter,
		reactionDuration: duration,
	}
}

// RecordReaction adds one processed reaction and its latency, labelled by trigger and outcome.
func (o *Observability) RecordReaction(ctx context.Context, trigger, outcome string, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("outcome", outcome),
	)
	if o.reactionCounter != nil {
		o.reactionCounter.Add(ctx, 1, attrs)
	}
	if o.reactionDuration != nil {
		o.reactionDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return o.meterProvider.Shutdown(ctx)
}
