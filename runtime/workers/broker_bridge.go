package workers

import (
	"context"
	"dm-lab/contract"
	"dm-lab/domain/event"
	"log/slog"
)

// Subscriber streams deliveries published by any process.
type Subscriber interface {
	Subscribe(ctx context.Context, handle func(event.Delivery)) error
}

// BrokerBridge hands deliveries received from the broker to the local fanout.
// Errors end Run so the supervisor resubscribes.
type BrokerBridge struct {
	log        *slog.Logger
	subscriber Subscriber
	local      contract.Publisher
}

func NewBrokerBridge(log *slog.Logger, subscriber Subscriber, local contract.Publisher) *BrokerBridge {
	return &BrokerBridge{log: log, subscriber: subscriber, local: local}
}

func (w *BrokerBridge) Run(ctx context.Context) error {
	w.log.Info("Starting broker bridge")
	return w.subscriber.Subscribe(ctx, func(d event.Delivery) {
		if err := w.local.Publish(ctx, d); err != nil {
			w.log.Warn("Failed to relay delivery", "event", d.Event.Event, "error", err)
		}
	})
}
