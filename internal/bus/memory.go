package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scrutineering/scrutineer/internal/pkg/errors"
	"github.com/scrutineering/scrutineer/internal/pkg/logger"
)

// closeDrainTimeout bounds how long Close waits for in-flight handlers.
const closeDrainTimeout = 10 * time.Second

// MemoryBus delivers events to in-process subscribers. Handlers run on
// their own goroutines; Publish never blocks on a slow subscriber.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool

	inflightWg sync.WaitGroup
	inflight   atomic.Int64
	log        *logger.Logger
}

// NewMemoryBus creates an in-memory bus with no subscribers.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		handlers: make(map[string][]Handler),
		log:      logger.Default(),
	}
}

// Publish fans the event out to every subscriber of the topic. A topic
// with no subscribers is not an error, and a failing handler does not
// fail the publish or stop delivery to the other handlers.
func (b *MemoryBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}

	for _, handler := range b.handlers[topic] {
		b.inflightWg.Add(1)
		b.inflight.Add(1)
		go func(h Handler) {
			defer b.inflightWg.Done()
			defer b.inflight.Add(-1)
			if err := h(ctx, event); err != nil {
				b.log.Warn("event handler failed",
					"topic", topic,
					"event_id", event.ID,
					"error", err.Error(),
				)
			}
		}(handler)
	}

	return nil
}

// Subscribe registers a handler for a topic.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}

	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

// Close stops accepting events and waits for in-flight handlers, up to
// closeDrainTimeout.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	if !b.DrainTimeout(closeDrainTimeout) {
		b.log.Warn("event drain timeout reached, some handlers may not have completed",
			"in_flight", b.InFlightCount(),
		)
	}

	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()

	return nil
}

// DrainTimeout waits for in-flight handlers to finish. It reports false
// if the timeout elapsed first.
func (b *MemoryBus) DrainTimeout(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.inflightWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// InFlightCount returns the number of handlers currently running.
func (b *MemoryBus) InFlightCount() int {
	return int(b.inflight.Load())
}
