package runtime

import (
	"context"
	"dm-lab/domain/event"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Sink records what it receives.
type Sink struct {
	mu     sync.Mutex
	events []event.Outbound
}

func (s *Sink) Consume(_ context.Context, e event.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *Sink) Names() []event.Name {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]event.Name, 0, len(s.events))
	for _, e := range s.events {
		names = append(names, e.Event)
	}
	return names
}

func (s *Sink) Last() event.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

func TestRegistry_PresenceTransitions(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()

	// Given no connection, the user is offline
	req.False(registry.IsOnline(userID))
	req.Nil(registry.SinksFor(userID))

	// When a first connection opens, the user comes online
	req.True(registry.Connect(userID, "c1", &Sink{}))
	// When a second one opens, nothing changes
	req.False(registry.Connect(userID, "c2", &Sink{}))
	req.Equal(2, registry.ConnectionCount(userID))
	req.Len(registry.SinksFor(userID), 2)

	// When one closes the user stays online
	req.False(registry.Disconnect(userID, "c1"))
	req.True(registry.IsOnline(userID))

	// When an unknown connection closes nothing happens
	req.False(registry.Disconnect(userID, "c1"))
	req.False(registry.Disconnect("nobody", "c9"))

	// When the last one closes the user goes offline
	req.True(registry.Disconnect(userID, "c2"))
	req.False(registry.IsOnline(userID))
	req.Empty(registry.OnlineUsers())
}

func TestRegistry_ConcurrentConnections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	var wg sync.WaitGroup
	var mu sync.Mutex
	cameOnline, wentOffline := 0, 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("c%d", i)
			if registry.Connect("alice", connID, &Sink{}) {
				mu.Lock()
				cameOnline++
				mu.Unlock()
			}
			if registry.Disconnect("alice", connID) {
				mu.Lock()
				wentOffline++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	// Then transitions always come in pairs and nothing leaks
	req.Equal(cameOnline, wentOffline)
	req.GreaterOrEqual(cameOnline, 1)
	req.False(registry.IsOnline("alice"))
	users, conns := registry.Stats()
	req.Zero(users)
	req.Zero(conns)
}

func TestRegistry_OnlineUsersSorted(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Connect("carol", "c1", &Sink{})
	registry.Connect("alice", "c2", &Sink{})
	registry.Connect("bob", "c3", &Sink{})
	registry.Connect("bob", "c4", &Sink{})

	req.Equal([]string{"alice", "bob", "carol"}, registry.OnlineUsers())
	users, conns := registry.Stats()
	req.Equal(3, users)
	req.Equal(4, conns)
}
