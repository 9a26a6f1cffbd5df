package checkout

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// telemetry holds the checkout flow's instruments. Providers come from the
// otel globals, which app.Run installs at startup.
type telemetry struct {
	tracer trace.Tracer

	sessionsStarted   metric.Int64Counter
	ordersCreated     metric.Int64Counter
	paymentsCompleted metric.Int64Counter
	paymentsFailed    metric.Int64Counter
	paymentRetries    metric.Int64Counter
}

func newTelemetry() telemetry {
	meter := otel.GetMeterProvider().Meter("mercadino.storefront/checkout")

	t := telemetry{tracer: otel.GetTracerProvider().Tracer("mercadino.storefront/checkout")}
	t.sessionsStarted, _ = meter.Int64Counter("checkout.sessions.started",
		metric.WithDescription("Checkout sessions begun"))
	t.ordersCreated, _ = meter.Int64Counter("checkout.orders.created",
		metric.WithDescription("Orders created from checkout sessions"))
	t.paymentsCompleted, _ = meter.Int64Counter("checkout.payments.completed",
		metric.WithDescription("Payments observed COMPLETED"))
	t.paymentsFailed, _ = meter.Int64Counter("checkout.payments.failed",
		metric.WithDescription("Payments observed FAILED or EXPIRED"))
	t.paymentRetries, _ = meter.Int64Counter("checkout.payments.retried",
		metric.WithDescription("Payment retries after failure"))
	return t
}
