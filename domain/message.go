// Package domain contains core concepts of the direct messaging system.
// This file defines messages and the rules a new message must satisfy.
package domain

import (
	"dm-lab/errors"
	"strings"
	"time"
)

type MessageID uint64

type MessageType string

const (
	TextMessage   MessageType = "text"
	ImageMessage  MessageType = "image"
	VideoMessage  MessageType = "video"
	AudioMessage  MessageType = "audio"
	FileMessage   MessageType = "file"
	SystemMessage MessageType = "system"
)

// ParseMessageType defaults to text when nothing is given.
func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TextMessage, nil
	case TextMessage, ImageMessage, VideoMessage, AudioMessage, FileMessage, SystemMessage:
		return t, nil
	default:
		return "", errors.Validation("unknown message type %q", s)
	}
}

// MessageTypeForMIME picks the message type matching an uploaded file.
func MessageTypeForMIME(mime string) MessageType {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return ImageMessage
	case strings.HasPrefix(mime, "video/"):
		return VideoMessage
	case strings.HasPrefix(mime, "audio/"):
		return AudioMessage
	default:
		return FileMessage
	}
}

// Message is a persisted direct message.
// Only IsRead and UpdatedAt change after creation.
type Message struct {
	ID         MessageID
	SenderID   string
	ReceiverID string
	Content    *string
	Type       MessageType
	FileURL    *string
	IsRead     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Counterpart returns the other participant as seen by viewerID.
func (m Message) Counterpart(viewerID string) string {
	if m.SenderID == viewerID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Involves reports whether userID is sender or receiver.
func (m Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// NewMessage is what a caller asks to persist.
type NewMessage struct {
	SenderID   string
	ReceiverID string
	Content    *string
	Type       MessageType
	FileURL    *string
}

// Normalize turns blank content and blank file urls into absent values.
func (n NewMessage) Normalize() NewMessage {
	if n.Content != nil && strings.TrimSpace(*n.Content) == "" {
		n.Content = nil
	}
	if n.FileURL != nil && strings.TrimSpace(*n.FileURL) == "" {
		n.FileURL = nil
	}
	if n.Type == "" {
		n.Type = TextMessage
	}
	return n
}

// Validate checks the creation rules of a message.
func (n NewMessage) Validate(maxContentLength int) error {
	if err := ValidateUserID(n.SenderID); err != nil {
		return err
	}
	if err := ValidateUserID(n.ReceiverID); err != nil {
		return err
	}
	if n.SenderID == n.ReceiverID {
		return errors.Validation("cannot send a message to yourself")
	}
	if (n.Content == nil) == (n.FileURL == nil) {
		return errors.Validation("exactly one of content or file must be provided")
	}
	if n.Content != nil && maxContentLength > 0 && len([]rune(*n.Content)) > maxContentLength {
		return errors.Validation("content exceeds %d characters", maxContentLength)
	}
	if _, err := ParseMessageType(string(n.Type)); err != nil {
		return err
	}
	return nil
}
