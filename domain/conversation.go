package domain

import (
	"math"
	"time"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// Conversation summarizes the exchange between the viewer and one counterpart.
type Conversation struct {
	Counterpart User
	LastMessage Message
	UnreadCount int
}

type ConversationPage struct {
	Conversations []Conversation
	Total         int
	Page          int
	Limit         int
}

type HistoryPage struct {
	Messages   []Message
	Total      int
	Page       int
	Limit      int
	HasMore    bool
	NextBefore *time.Time
}

type SearchPage struct {
	Messages []Message
	Total    int
	Page     int
	Limit    int
}

// Pagination normalizes a page/limit pair. Limit is clamped to MaxPageLimit.
func Pagination(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// Offset is the number of items before page. It saturates instead of
// overflowing for page numbers far past any real data.
func Offset(page, limit int) int {
	if page <= 1 || limit <= 0 {
		return 0
	}
	if page-1 > math.MaxInt/limit {
		return math.MaxInt
	}
	return (page - 1) * limit
}

// TypingKey identifies a typing state: the user typing in a chat.
// For direct chats the chat id is the counterpart user id.
type TypingKey struct {
	ChatID string
	UserID string
}
