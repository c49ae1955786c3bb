package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CheckoutMetrics records checkout outcomes. A nil receiver is a no-op so
// tests and tools can run without a meter provider.
type CheckoutMetrics struct {
	ordersCreated metric.Int64Counter
	failures      metric.Int64Counter
	duration      metric.Float64Histogram
}

func NewCheckoutMetrics() (*CheckoutMetrics, error) {
	meter := otel.Meter("checkout")

	ordersCreated, err := meter.Int64Counter("checkout.orders.created",
		metric.WithDescription("Orders committed by the checkout pipeline"))
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter("checkout.failures",
		metric.WithDescription("Checkouts rejected or rolled back, by reason"))
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("checkout.duration",
		metric.WithDescription("Checkout transaction duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &CheckoutMetrics{
		ordersCreated: ordersCreated,
		failures:      failures,
		duration:      duration,
	}, nil
}

func (m *CheckoutMetrics) RecordSuccess(ctx context.Context, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ordersCreated.Add(ctx, 1)
	m.duration.Record(ctx, elapsed.Seconds())
}

func (m *CheckoutMetrics) RecordFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
