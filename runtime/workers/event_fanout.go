package workers

import (
	"context"
	"dm-lab/contract"
	"dm-lab/domain/event"
	"dm-lab/errors"
	"dm-lab/observability"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

// EventFanout routes deliveries to the live connections of their recipients.
//
// Deliveries go through a single channel consumed by one goroutine, so two
// deliveries published in order reach a connection in that order.
// Delivery is at-most-once: a connection that cannot take an event within
// the sink timeout misses it and catches up through history.
//
// Publish is safe for concurrent use by multiple goroutines.
type EventFanout struct {
	log             *slog.Logger
	registry        contract.IRegistry
	deliveries      chan event.Delivery
	sinkTimeout     time.Duration
	deliveryTimeout time.Duration
}

func NewEventFanout(
	log *slog.Logger,
	registry contract.IRegistry,
	bufferSize int,
	sinkTimeout, deliveryTimeout time.Duration,
) *EventFanout {
	return &EventFanout{
		log:             log,
		registry:        registry,
		deliveries:      make(chan event.Delivery, bufferSize),
		sinkTimeout:     sinkTimeout,
		deliveryTimeout: deliveryTimeout,
	}
}

// Queue exposes the pending deliveries for sampling.
func (w *EventFanout) Queue() <-chan event.Delivery {
	return w.deliveries
}

// Publish queues a delivery. It waits at most the delivery timeout for room.
func (w *EventFanout) Publish(ctx context.Context, d event.Delivery) error {
	select {
	case w.deliveries <- d:
		return nil
	default:
	}

	timer := time.NewTimer(w.deliveryTimeout)
	defer timer.Stop()
	select {
	case w.deliveries <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		observability.DeliveriesDropped.Inc()
		return errors.ErrPublisherSaturated
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case d := <-w.deliveries:
			w.Fanout(ctx, d)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping deliveries")
			return nil
		}
	}
}

// Fanout One sink for each live connection of each recipient
func (w *EventFanout) Fanout(ctx context.Context, d event.Delivery) {
	for _, recipient := range lo.Uniq(d.Recipients) {
		for _, sink := range w.registry.SinksFor(recipient) {
			sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
			err := sink.Consume(sinkCtx, d.Event)
			cancel()
			if err != nil {
				observability.DeliveriesDropped.Inc()
				w.log.Warn("Delivery dropped", "event", d.Event.Event, "recipient", recipient, "error", err)
			}
		}
	}
}
