package pubsub

import (
	"context"
	"dm-lab/errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRedisBroker_InvalidURL(t *testing.T) {
	req := require.New(t)

	_, err := NewRedisBroker(context.Background(), slog.Default(), "http://nowhere", "deliveries")

	req.Error(err)
}

func TestDecode(t *testing.T) {
	req := require.New(t)

	d, err := Decode([]byte(`{"recipients":["bob"],"event":{"event":"message:receive","data":{"id":7},"at":"2026-01-02T10:00:00Z"}}`))
	req.NoError(err)
	req.Equal([]string{"bob"}, d.Recipients)
	req.EqualValues("message:receive", d.Event.Event)

	_, err = Decode([]byte(`{"recipients":[],"event":{"event":"pong"}}`))
	req.ErrorIs(err, errors.ErrValidation)

	_, err = Decode([]byte(`not json`))
	req.Error(err)
}
