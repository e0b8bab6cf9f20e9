package runtime

import (
	"dm-lab/domain"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTypingTracker_Transitions(t *testing.T) {
	req := require.New(t)
	tracker := NewTypingTracker(time.Minute)
	defer tracker.Close()
	key := domain.TypingKey{ChatID: "bob", UserID: "alice"}

	// When typing starts twice only the first one is a transition
	req.True(tracker.Start(key, "c1"))
	req.False(tracker.Start(key, "c1"))
	req.True(tracker.IsTyping(key))

	// When it stops twice only the first one is a transition
	req.True(tracker.Stop(key))
	req.False(tracker.Stop(key))
	req.False(tracker.IsTyping(key))
}

func TestTypingTracker_ExpiresOnItsOwn(t *testing.T) {
	req := require.New(t)
	tracker := NewTypingTracker(50 * time.Millisecond)
	defer tracker.Close()
	key := domain.TypingKey{ChatID: "bob", UserID: "alice"}

	expired := make(chan domain.TypingKey, 1)
	tracker.OnExpire(func(k domain.TypingKey) { expired <- k })

	req.True(tracker.Start(key, "c1"))

	select {
	case k := <-expired:
		req.Equal(key, k)
	case <-time.After(time.Second):
		req.Fail("typing state should have expired")
	}
	req.False(tracker.IsTyping(key))
	// And a later stop is not a transition
	req.False(tracker.Stop(key))
}

func TestTypingTracker_RefreshPostponesExpiry(t *testing.T) {
	req := require.New(t)
	tracker := NewTypingTracker(150 * time.Millisecond)
	defer tracker.Close()
	key := domain.TypingKey{ChatID: "bob", UserID: "alice"}

	var expirations atomic.Int32
	tracker.OnExpire(func(domain.TypingKey) { expirations.Add(1) })

	tracker.Start(key, "c1")
	for i := 0; i < 4; i++ {
		time.Sleep(75 * time.Millisecond)
		tracker.Start(key, "c1")
	}
	// Then the state survived longer than one timeout
	req.True(tracker.IsTyping(key))
	req.Zero(expirations.Load())

	req.Eventually(func() bool { return expirations.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestTypingTracker_StopDoesNotNotify(t *testing.T) {
	req := require.New(t)
	tracker := NewTypingTracker(30 * time.Millisecond)
	defer tracker.Close()
	key := domain.TypingKey{ChatID: "bob", UserID: "alice"}

	var expirations atomic.Int32
	tracker.OnExpire(func(domain.TypingKey) { expirations.Add(1) })

	tracker.Start(key, "c1")
	req.True(tracker.Stop(key))
	time.Sleep(100 * time.Millisecond)
	req.Zero(expirations.Load())
}

func TestTypingTracker_ClearConnection(t *testing.T) {
	req := require.New(t)
	tracker := NewTypingTracker(time.Minute)
	defer tracker.Close()

	k1 := domain.TypingKey{ChatID: "bob", UserID: "alice"}
	k2 := domain.TypingKey{ChatID: "carol", UserID: "alice"}
	k3 := domain.TypingKey{ChatID: "alice", UserID: "bob"}
	tracker.Start(k1, "c1")
	tracker.Start(k2, "c1")
	tracker.Start(k3, "c2")

	cleared := tracker.ClearConnection("c1")

	req.ElementsMatch([]domain.TypingKey{k1, k2}, cleared)
	req.False(tracker.IsTyping(k1))
	req.True(tracker.IsTyping(k3))
	req.Empty(tracker.ClearConnection("c1"))
}
