package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the domain counters. Instruments are created against the
// global meter provider, so they become live once InitTelemetry has run.
type Metrics struct {
	transitions     metric.Int64Counter
	rejected        metric.Int64Counter
	payments        metric.Int64Counter
	webhooks        metric.Int64Counter
	gatewayDuration metric.Float64Histogram
}

func NewMetrics() *Metrics {
	meter := otel.Meter(instrumentationName)

	transitions, _ := meter.Int64Counter(
		"consultation_transitions_total",
		metric.WithDescription("Consultation state changes by resulting status"),
	)
	rejected, _ := meter.Int64Counter(
		"consultation_transitions_rejected_total",
		metric.WithDescription("Consultation operations refused by a guard"),
	)
	payments, _ := meter.Int64Counter(
		"payment_state_changes_total",
		metric.WithDescription("Payment transaction state changes"),
	)
	webhooks, _ := meter.Int64Counter(
		"payment_webhooks_total",
		metric.WithDescription("Inbound gateway webhooks by outcome"),
	)
	gatewayDuration, _ := meter.Float64Histogram(
		"payment_gateway_request_duration_ms",
		metric.WithDescription("PhonePe request latency"),
		metric.WithUnit("ms"),
	)

	return &Metrics{
		transitions:     transitions,
		rejected:        rejected,
		payments:        payments,
		webhooks:        webhooks,
		gatewayDuration: gatewayDuration,
	}
}

func (m *Metrics) Transition(ctx context.Context, op, status string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("status", status),
	))
}

func (m *Metrics) Rejected(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}

func (m *Metrics) PaymentState(ctx context.Context, state string) {
	if m == nil {
		return
	}
	m.payments.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

func (m *Metrics) Webhook(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) GatewayCall(ctx context.Context, endpoint string, ms float64, failed bool) {
	if m == nil {
		return
	}
	m.gatewayDuration.Record(ctx, ms, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.Bool("failed", failed),
	))
}
