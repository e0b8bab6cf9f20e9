// Package chat holds the commands and queries accepted by the chat service.
package chat

import (
	"time"
)

type SendMessageCommand struct {
	SenderID    string
	ReceiverID  string
	Content     *string
	FileURL     *string
	MessageType string
}

type HistoryQuery struct {
	ViewerID      string
	CounterpartID string
	Before        *time.Time
	Page          int
	Limit         int
}

type ConversationsQuery struct {
	ViewerID string
	Page     int
	Limit    int
}

type SearchQuery struct {
	ViewerID      string
	Text          string
	CounterpartID string
	Page          int
	Limit         int
}
