package runtime

import (
	"dm-lab/contract"
	"hash/fnv"
	"sort"
	"sync"
)

const registryShards = 32

// connections maps a connection id to its sink.
type connections map[string]contract.EventSink

type registryShard struct {
	mu    sync.RWMutex
	users map[string]connections
}

// Registry tracks the live connections of every user.
// A user is online while at least one connection is open.
// Users are spread over shards so unrelated users never share a lock.
type Registry struct {
	shards [registryShards]*registryShard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &registryShard{users: make(map[string]connections)}
	}
	return r
}

func (r *Registry) shard(userID string) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.shards[h.Sum32()%registryShards]
}

// Connect registers a connection and reports whether the user just came online.
// Registering the same connection twice only replaces its sink.
func (r *Registry) Connect(userID, connID string, sink contract.EventSink) bool {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[userID]
	if !ok {
		conns = make(connections)
		s.users[userID] = conns
	}
	conns[connID] = sink
	return !ok
}

// Disconnect removes a connection and reports whether the user went offline.
// Unknown connections are ignored.
func (r *Registry) Disconnect(userID, connID string) bool {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[userID]
	if !ok {
		return false
	}
	if _, known := conns[connID]; !known {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(s.users, userID)
		return true
	}
	return false
}

// SinksFor returns a snapshot of the user's sinks, nil when offline.
func (r *Registry) SinksFor(userID string) []contract.EventSink {
	s := r.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := s.users[userID]
	if len(conns) == 0 {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(conns))
	for _, sink := range conns {
		sinks = append(sinks, sink)
	}
	return sinks
}

func (r *Registry) IsOnline(userID string) bool {
	s := r.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID]) > 0
}

func (r *Registry) ConnectionCount(userID string) int {
	s := r.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID])
}

// OnlineUsers returns the sorted ids of every online user.
func (r *Registry) OnlineUsers() []string {
	var users []string
	for _, s := range r.shards {
		s.mu.RLock()
		for userID := range s.users {
			users = append(users, userID)
		}
		s.mu.RUnlock()
	}
	sort.Strings(users)
	return users
}

// Stats returns the number of online users and open connections.
func (r *Registry) Stats() (int, int) {
	users, conns := 0, 0
	for _, s := range r.shards {
		s.mu.RLock()
		users += len(s.users)
		for _, c := range s.users {
			conns += len(c)
		}
		s.mu.RUnlock()
	}
	return users, conns
}
