package workers

import (
	"context"
	"dm-lab/contract"
	"dm-lab/domain/event"
	"dm-lab/errors"
	"dm-lab/mocks"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventFanout_Fanout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	phone := mocks.NewMockEventSink(ctrl)
	laptop := mocks.NewMockEventSink(ctrl)

	fanout := NewEventFanout(log, mockRegistry, 8, time.Second, time.Second)

	// Given bob has two connections and carol none
	mockRegistry.EXPECT().SinksFor("bob").Return([]contract.EventSink{phone, laptop}).Times(1)
	mockRegistry.EXPECT().SinksFor("carol").Return(nil).Times(1)
	phone.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(1)
	laptop.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(errors.ErrConnectionBuffer).Times(1)

	// When a delivery addressed twice to bob is fanned out
	fanout.Fanout(context.Background(), event.To(event.MessageReceive, nil, "bob", "carol", "bob"))

	// Then every connection was tried once, a full one does not stop the others
	req.True(ctrl.Satisfied())
}

func TestEventFanout_PreservesOrder(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	sink := mocks.NewMockEventSink(ctrl)

	var mu sync.Mutex
	var received []event.Name
	done := make(chan struct{})
	mockRegistry.EXPECT().SinksFor("bob").Return([]contract.EventSink{sink}).AnyTimes()
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e event.Outbound) error {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, e.Event)
			if len(received) == 3 {
				close(done)
			}
			return nil
		}).Times(3)

	fanout := NewEventFanout(slog.Default(), mockRegistry, 8, time.Second, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	// When three deliveries are published in order
	for _, name := range []event.Name{event.MessageReceive, event.TypingStopped, event.MessageReadReceipt} {
		req.NoError(fanout.Publish(ctx, event.To(name, nil, "bob")))
	}

	// Then they reach the connection in that order
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Deliveries were not fanned out in time")
	}
	mu.Lock()
	defer mu.Unlock()
	req.Equal([]event.Name{event.MessageReceive, event.TypingStopped, event.MessageReadReceipt}, received)
}

func TestEventFanout_SinkTimeout(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	slow := mocks.NewMockEventSink(ctrl)

	fanout := NewEventFanout(slog.Default(), mockRegistry, 8, 20*time.Millisecond, time.Second)

	mockRegistry.EXPECT().SinksFor("bob").Return([]contract.EventSink{slow}).Times(1)
	slow.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ event.Outbound) error {
			<-ctx.Done()     // Waiting for timeout to trigger cancellation
			return ctx.Err() // Sending back "context deadline exceeded"
		}).Times(1)

	// When the only connection is stuck
	start := time.Now()
	fanout.Fanout(context.Background(), event.To(event.MessageReceive, nil, "bob"))

	// Then the fanout gave up after the sink timeout
	req.Less(time.Since(start), 500*time.Millisecond)
}

func TestEventFanout_PublishSaturated(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// Given a queue of one that nobody consumes
	fanout := NewEventFanout(slog.Default(), mocks.NewMockIRegistry(ctrl), 1, time.Second, 10*time.Millisecond)
	req.NoError(fanout.Publish(context.Background(), event.To(event.Pong, nil, "bob")))

	// When another delivery is published, it is refused after the delivery timeout
	err := fanout.Publish(context.Background(), event.To(event.Pong, nil, "bob"))
	req.ErrorIs(err, errors.ErrPublisherSaturated)
}
