// Package notification fans domain events out to downstream consumers. It is
// fire-and-forget: a failed publish is logged and counted, never returned.
package notification

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/events"
)

// Publisher delivers one envelope.
type Publisher interface {
	Publish(ctx context.Context, e *events.Envelope) (string, error)
}

// MetricsCollector counts publish outcomes by event type.
type MetricsCollector interface {
	RecordNotification(eventType, outcome string)
}

// Dispatcher publishes on a background goroutine bounded by a timeout.
type Dispatcher struct {
	publisher Publisher
	metrics   MetricsCollector
	timeout   time.Duration
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewDispatcher returns a dispatcher. A nil publisher drops every event.
func NewDispatcher(publisher Publisher, metrics MetricsCollector, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Dispatcher{
		publisher: publisher,
		metrics:   metrics,
		timeout:   timeout,
		logger:    logger.With(zap.String("component", "notification")),
	}
}

// Notify publishes asynchronously. The request context's cancellation does
// not cut the publish short; only the dispatcher timeout does.
func (d *Dispatcher) Notify(ctx context.Context, eventType, aggregateType, aggregateID string, data map[string]any) {
	if d == nil || d.publisher == nil {
		return
	}

	env := events.NewEnvelope(eventType, aggregateType, aggregateID, clock.Now(), data)
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()

		if _, err := d.publisher.Publish(pubCtx, env); err != nil {
			d.metrics.RecordNotification(eventType, "error")
			d.logger.Warn("notification publish failed",
				zap.String("event_type", eventType),
				zap.String("aggregate_id", aggregateID),
				zap.Error(err))
			return
		}
		d.metrics.RecordNotification(eventType, "published")
	}()
}

// Wait blocks until in-flight publishes finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
