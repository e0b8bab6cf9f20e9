// Package event defines what flows over a live connection, in both directions.
package event

import (
	"dm-lab/domain"
	"encoding/json"
	"time"
)

type Name string

// Client to server.
const (
	MessageSend      Name = "message:send"
	TypingStart      Name = "typing:start"
	TypingStop       Name = "typing:stop"
	MessageRead      Name = "message:read"
	ConversationRead Name = "conversation:read"
	Ping             Name = "ping"
)

// Server to client.
const (
	MessageSent         Name = "message:sent"
	MessageReceive      Name = "message:receive"
	MessageReadReceipt  Name = "message:read"
	ConversationReceipt Name = "conversation:read"
	TypingStarted       Name = "typing:started"
	TypingStopped       Name = "typing:stopped"
	OnlineList          Name = "online:list"
	UserJoined          Name = "user:joined"
	UserLeft            Name = "user:left"
	Pong                Name = "pong"
	Error               Name = "error"
)

// Inbound is a raw client frame. Data is decoded once the name is known.
type Inbound struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Outbound is a frame sent to a connection.
type Outbound struct {
	Event Name      `json:"event"`
	Data  any       `json:"data"`
	At    time.Time `json:"at"`
}

func NewOutbound(name Name, data any) Outbound {
	return Outbound{Event: name, Data: data, At: time.Now().UTC()}
}

// Delivery addresses an outbound frame to every live connection of each recipient.
type Delivery struct {
	Recipients []string `json:"recipients"`
	Event      Outbound `json:"event"`
}

func To(name Name, data any, recipients ...string) Delivery {
	return Delivery{Recipients: recipients, Event: NewOutbound(name, data)}
}

type SendPayload struct {
	ReceiverID string  `json:"receiverId" validate:"required"`
	Content    *string `json:"content"`
	Type       string  `json:"messageType"`
	FileURL    *string `json:"fileUrl"`
}

type TypingPayload struct {
	ChatID string `json:"chatId" validate:"required"`
}

type ReadPayload struct {
	MessageID uint64 `json:"messageId" validate:"required"`
}

type ConversationReadPayload struct {
	UserID string `json:"userId" validate:"required"`
}

// MessageView is the wire shape of a message, shared by REST and live events.
type MessageView struct {
	ID          uint64    `json:"id"`
	SenderID    string    `json:"senderId"`
	ReceiverID  string    `json:"receiverId"`
	Content     *string   `json:"content"`
	MessageType string    `json:"messageType"`
	FileURL     *string   `json:"fileUrl"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func ToView(m domain.Message) MessageView {
	return MessageView{
		ID:          uint64(m.ID),
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Content:     m.Content,
		MessageType: string(m.Type),
		FileURL:     m.FileURL,
		IsRead:      m.IsRead,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func ToViews(messages []domain.Message) []MessageView {
	views := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, ToView(m))
	}
	return views
}

type TypingNotice struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type ReadNotice struct {
	MessageID uint64    `json:"messageId"`
	ReaderID  string    `json:"readerId"`
	ReadAt    time.Time `json:"readAt"`
}

type ConversationReadNotice struct {
	ReaderID   string   `json:"readerId"`
	Count      int      `json:"count"`
	MessageIDs []uint64 `json:"messageIds"`
}

type PresenceNotice struct {
	UserID string `json:"userId"`
}

type OnlineListNotice struct {
	UserIDs []string `json:"userIds"`
}

type ErrorNotice struct {
	Event   Name   `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
