package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/hackgods/clinic-scheduling"

// Metrics holds the scheduling counters and histograms.
type Metrics struct {
	Bookings           metric.Int64Counter
	Transitions        metric.Int64Counter
	Retries            metric.Int64Counter
	SideEffectFailures metric.Int64Counter
	LockWait           metric.Float64Histogram
}

// InitMetrics registers instruments on the global meter provider.
func InitMetrics() (*Metrics, error) {
	return NewMetrics(otel.Meter(meterName))
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	bookings, err := meter.Int64Counter(
		"scheduling.booking.count",
		metric.WithDescription("Create and reschedule attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"scheduling.transition.count",
		metric.WithDescription("Lifecycle transitions committed"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter(
		"scheduling.commit.retry.count",
		metric.WithDescription("Commit attempts retried after lock or isolation failure"),
	)
	if err != nil {
		return nil, err
	}

	sideEffects, err := meter.Int64Counter(
		"scheduling.side_effect.failure.count",
		metric.WithDescription("Audit, notification and meeting room failures after commit"),
	)
	if err != nil {
		return nil, err
	}

	lockWait, err := meter.Float64Histogram(
		"scheduling.provider_lock.wait",
		metric.WithDescription("Time spent waiting for the provider lock"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Bookings:           bookings,
		Transitions:        transitions,
		Retries:            retries,
		SideEffectFailures: sideEffects,
		LockWait:           lockWait,
	}, nil
}

// Noop returns metrics that record nothing.
func Noop() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(meterName))
	return m
}

func (m *Metrics) Booking(ctx context.Context, op, outcome string) {
	m.Bookings.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) Transition(ctx context.Context, event, status string) {
	m.Transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("status", status),
	))
}

func (m *Metrics) Retry(ctx context.Context, op string) {
	m.Retries.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}

func (m *Metrics) SideEffectFailed(ctx context.Context, kind string) {
	m.SideEffectFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) ObserveLockWait(ctx context.Context, d time.Duration) {
	m.LockWait.Record(ctx, float64(d)/float64(time.Millisecond))
}
