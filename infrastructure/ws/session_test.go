package ws

import (
	"context"
	"dm-lab/domain/event"
	"dm-lab/errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSession_Consume_NeverWaits(t *testing.T) {
	req := require.New(t)
	// Given a connection nobody writes out, with room for one frame
	session := NewSession(slog.Default(), "c1", "alice", nil, nil, 1)
	ctx := context.Background()

	// When two frames arrive
	req.NoError(session.Consume(ctx, event.NewOutbound(event.Pong, nil)))
	start := time.Now()
	err := session.Consume(ctx, event.NewOutbound(event.Pong, nil))

	// Then the second is dropped at once, even without a deadline
	req.ErrorIs(err, errors.ErrConnectionBuffer)
	req.Less(time.Since(start), 100*time.Millisecond)
	req.Len(session.egress, 1)

	// When the connection is gone
	close(session.done)
	req.ErrorIs(session.Consume(ctx, event.NewOutbound(event.Pong, nil)), errors.ErrConnectionClosed)
}
