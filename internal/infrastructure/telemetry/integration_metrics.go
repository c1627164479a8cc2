package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// IntegrationMetrics holds the instruments for the integration framework:
// order sync outcomes, shipment bookings, outbound provider calls and the
// resilience layer's state.
type IntegrationMetrics struct {
	ordersPulled *Counter
	ordersFailed *Counter
	syncRuns     *Counter
	syncDuration *Histogram

	shipmentsBooked *Counter
	webhooks        *Counter

	providerCalls *Histogram
	breakerState  *Gauge
	limiterQueue  *Gauge
}

// NewIntegrationMetrics creates all integration instruments on the meter.
func NewIntegrationMetrics(meter metric.Meter) (*IntegrationMetrics, error) {
	m := &IntegrationMetrics{}
	var err error

	if m.ordersPulled, err = NewCounter(meter,
		"oms_orders_pulled_total", "Orders pulled from channels", "{order}"); err != nil {
		return nil, err
	}
	if m.ordersFailed, err = NewCounter(meter,
		"oms_order_pull_failures_total", "Orders that failed to pull or normalize", "{order}"); err != nil {
		return nil, err
	}
	if m.syncRuns, err = NewCounter(meter,
		"oms_sync_runs_total", "Completed order sync runs by outcome", "{run}"); err != nil {
		return nil, err
	}
	if m.syncDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "oms_sync_duration_seconds",
		Description: "Order sync run duration",
		Unit:        "s",
		Boundaries:  ProviderDurationBuckets,
	}); err != nil {
		return nil, err
	}

	if m.shipmentsBooked, err = NewCounter(meter,
		"oms_shipments_booked_total", "Shipment bookings by outcome", "{shipment}"); err != nil {
		return nil, err
	}
	if m.webhooks, err = NewCounter(meter,
		"oms_webhooks_total", "Inbound webhook deliveries by outcome", "{request}"); err != nil {
		return nil, err
	}

	if m.providerCalls, err = NewHistogram(meter, HistogramOpts{
		Name:        "oms_provider_call_duration_seconds",
		Description: "Outbound provider call duration",
		Unit:        "s",
		Boundaries:  ProviderDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.breakerState, err = NewGauge(meter,
		"oms_breaker_open", "Whether a provider's circuit breaker is open", "{breaker}"); err != nil {
		return nil, err
	}
	if m.limiterQueue, err = NewGauge(meter,
		"oms_limiter_queue_depth", "Callers waiting on a provider's rate limiter", "{caller}"); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordSyncRun records a completed sync run with its order counts.
func (m *IntegrationMetrics) RecordSyncRun(ctx context.Context, channel, status string, pulled, failed int, d time.Duration) {
	if m == nil {
		return
	}
	if pulled > 0 {
		m.ordersPulled.Add(ctx, int64(pulled), AttrChannel.String(channel))
	}
	if failed > 0 {
		m.ordersFailed.Add(ctx, int64(failed), AttrChannel.String(channel))
	}
	m.syncRuns.Inc(ctx, AttrChannel.String(channel), AttrOutcome.String(status))
	m.syncDuration.RecordDuration(ctx, d, AttrChannel.String(channel))
}

// RecordShipmentBooked records a booking attempt's outcome.
func (m *IntegrationMetrics) RecordShipmentBooked(ctx context.Context, transporter string, err error) {
	if m == nil {
		return
	}
	m.shipmentsBooked.Inc(ctx,
		AttrTransporter.String(transporter),
		AttrOutcome.String(outcome(err)),
	)
}

// RecordWebhook records an inbound webhook delivery.
func (m *IntegrationMetrics) RecordWebhook(ctx context.Context, channel string, accepted bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	m.webhooks.Inc(ctx, AttrChannel.String(channel), AttrOutcome.String(result))
}

// RecordProviderCall records one outbound call through the gateway.
func (m *IntegrationMetrics) RecordProviderCall(ctx context.Context, provider, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.providerCalls.RecordDuration(ctx, d,
		AttrProvider.String(provider),
		AttrOperation.String(operation),
		AttrOutcome.String(outcome(err)),
	)
}

// ObserveBreaker records a provider's breaker position, 1 when open.
func (m *IntegrationMetrics) ObserveBreaker(ctx context.Context, provider, state string) {
	if m == nil {
		return
	}
	var open int64
	if state == "OPEN" {
		open = 1
	}
	m.breakerState.Record(ctx, open,
		AttrProvider.String(provider),
		AttrBreakerState.String(state),
	)
}

// ObserveLimiterQueue records how many callers are parked on a provider's
// rate limiter.
func (m *IntegrationMetrics) ObserveLimiterQueue(ctx context.Context, provider string, depth int) {
	if m == nil {
		return
	}
	m.limiterQueue.Record(ctx, int64(depth), AttrProvider.String(provider))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
