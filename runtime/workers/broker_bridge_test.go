package workers

import (
	"context"
	"dm-lab/domain/event"
	"dm-lab/mocks"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type replaySubscriber []event.Delivery

func (s replaySubscriber) Subscribe(_ context.Context, handle func(event.Delivery)) error {
	for _, d := range s {
		handle(d)
	}
	return nil
}

func TestBrokerBridge_RelaysToLocalFanout(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	local := mocks.NewMockPublisher(ctrl)

	first := event.To(event.UserJoined, event.PresenceNotice{UserID: "alice"}, "bob")
	second := event.To(event.UserLeft, event.PresenceNotice{UserID: "alice"}, "bob")
	gomock.InOrder(
		local.EXPECT().Publish(gomock.Any(), first).Return(nil),
		local.EXPECT().Publish(gomock.Any(), second).Return(nil),
	)

	err := NewBrokerBridge(slog.Default(), replaySubscriber{first, second}, local).Run(context.Background())

	req.NoError(err)
}
