package runtime

import (
	"dm-lab/domain"
	"hash/fnv"
	"sync"
	"time"
)

const typingShards = 16

type typingEntry struct {
	connID string
	timer  *time.Timer
	gen    uint64
}

type typingShard struct {
	mu      sync.Mutex
	entries map[domain.TypingKey]*typingEntry
}

// TypingTracker holds who is typing where. A typing state expires on its
// own after the timeout unless it is refreshed or stopped. Keys are sharded
// by chat so concurrent chats never contend.
type TypingTracker struct {
	timeout time.Duration
	shards  [typingShards]*typingShard

	mu       sync.RWMutex
	onExpire func(key domain.TypingKey)
}

func NewTypingTracker(timeout time.Duration) *TypingTracker {
	t := &TypingTracker{timeout: timeout}
	for i := range t.shards {
		t.shards[i] = &typingShard{entries: make(map[domain.TypingKey]*typingEntry)}
	}
	return t
}

// OnExpire sets the callback run when a typing state times out.
// It runs outside of any lock.
func (t *TypingTracker) OnExpire(fn func(key domain.TypingKey)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = fn
}

func (t *TypingTracker) shard(chatID string) *typingShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(chatID))
	return t.shards[h.Sum32()%typingShards]
}

// Start marks key as typing from connID and re-arms its timeout.
// It reports true only on the idle to typing transition.
func (t *TypingTracker) Start(key domain.TypingKey, connID string) bool {
	s := t.shard(key.ChatID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok {
		entry.timer.Stop()
		entry.connID = connID
		entry.gen++
		entry.timer = t.arm(s, key, entry, entry.gen)
		return false
	}
	entry := &typingEntry{connID: connID}
	entry.timer = t.arm(s, key, entry, entry.gen)
	s.entries[key] = entry
	return true
}

// Stop clears key and reports true only on the typing to idle transition.
func (t *TypingTracker) Stop(key domain.TypingKey) bool {
	s := t.shard(key.ChatID)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.entries, key)
	return true
}

func (t *TypingTracker) IsTyping(key domain.TypingKey) bool {
	s := t.shard(key.ChatID)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// ClearConnection drops every typing state started from connID and
// returns the keys that went idle.
func (t *TypingTracker) ClearConnection(connID string) []domain.TypingKey {
	var cleared []domain.TypingKey
	for _, s := range t.shards {
		s.mu.Lock()
		for key, entry := range s.entries {
			if entry.connID != connID {
				continue
			}
			entry.timer.Stop()
			delete(s.entries, key)
			cleared = append(cleared, key)
		}
		s.mu.Unlock()
	}
	return cleared
}

// Close stops every pending timer without notifying.
func (t *TypingTracker) Close() {
	for _, s := range t.shards {
		s.mu.Lock()
		for key, entry := range s.entries {
			entry.timer.Stop()
			delete(s.entries, key)
		}
		s.mu.Unlock()
	}
}

// arm must be called with the shard locked. A timer that lost the race
// against a refresh or a replacement finds another generation and does nothing.
func (t *TypingTracker) arm(s *typingShard, key domain.TypingKey, entry *typingEntry, gen uint64) *time.Timer {
	return time.AfterFunc(t.timeout, func() {
		s.mu.Lock()
		current, ok := s.entries[key]
		if !ok || current != entry || current.gen != gen {
			s.mu.Unlock()
			return
		}
		delete(s.entries, key)
		s.mu.Unlock()

		t.mu.RLock()
		fn := t.onExpire
		t.mu.RUnlock()
		if fn != nil {
			fn(key)
		}
	})
}
