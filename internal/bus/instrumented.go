package bus

import (
	"context"
	"time"
)

// MetricsRecorder is the slice of the metrics service the bus needs.
// Declared here so the bus does not import the metrics package.
type MetricsRecorder interface {
	RecordBusPublish(topic string, latencyMs int64, err error)
}

// InstrumentedBus records publish latency and failures on every Publish.
type InstrumentedBus struct {
	inner   Bus
	metrics MetricsRecorder
}

// NewInstrumentedBus wraps a bus with publish metrics. A nil recorder
// disables recording without disabling the bus.
func NewInstrumentedBus(inner Bus, metrics MetricsRecorder) *InstrumentedBus {
	return &InstrumentedBus{inner: inner, metrics: metrics}
}

// Publish delegates to the inner bus and records the outcome.
func (b *InstrumentedBus) Publish(ctx context.Context, topic string, event Event) error {
	start := time.Now()
	err := b.inner.Publish(ctx, topic, event)
	if b.metrics != nil {
		b.metrics.RecordBusPublish(topic, time.Since(start).Milliseconds(), err)
	}
	return err
}

// Subscribe delegates to the inner bus. Subscriptions are not metered.
func (b *InstrumentedBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return b.inner.Subscribe(ctx, topic, handler)
}

// Close closes the inner bus.
func (b *InstrumentedBus) Close() error {
	return b.inner.Close()
}
