package storage

import (
	"dm-lab/domain"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Keys. Every id segment is fixed width so lexicographic order is numeric order.
const (
	messagePrefix = "msg:"
	pairPrefix    = "pair:"
	unreadPrefix  = "unread:"
	peerPrefix    = "peer:"
	userPrefix    = "user:"
	sequenceKey   = "seq:message"
)

func messageKey(id domain.MessageID) []byte {
	return []byte(fmt.Sprintf("%s%020d", messagePrefix, uint64(id)))
}

// pairPrefixOf is the same for (a, b) and (b, a).
func pairPrefixOf(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%s%s:%s:", pairPrefix, a, b)
}

func pairKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%019d:%020d", pairPrefixOf(m.SenderID, m.ReceiverID), m.CreatedAt.UnixNano(), uint64(m.ID)))
}

func unreadPrefixOf(receiverID, senderID string) string {
	if senderID == "" {
		return fmt.Sprintf("%s%s:", unreadPrefix, receiverID)
	}
	return fmt.Sprintf("%s%s:%s:", unreadPrefix, receiverID, senderID)
}

func unreadKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%020d", unreadPrefixOf(m.ReceiverID, m.SenderID), uint64(m.ID)))
}

func peerPrefixOf(userID string) string {
	return fmt.Sprintf("%s%s:", peerPrefix, userID)
}

func peerKey(userID, counterpartID string) []byte {
	return []byte(peerPrefixOf(userID) + counterpartID)
}

func userKey(id string) []byte {
	return []byte(userPrefix + id)
}

// idFromIndexKey reads the trailing 20 digit id of a pair or unread key.
func idFromIndexKey(key []byte) (domain.MessageID, error) {
	if len(key) < 20 {
		return 0, fmt.Errorf("index key too short: %q", key)
	}
	id, err := strconv.ParseUint(string(key[len(key)-20:]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed index key %q: %w", key, err)
	}
	return domain.MessageID(id), nil
}

// DiskMessage is the stored form of a message.
// Timestamps are unix nanoseconds, a BSON datetime would drop precision.
type DiskMessage struct {
	ID         int64   `bson:"id"`
	SenderID   string  `bson:"sender_id"`
	ReceiverID string  `bson:"receiver_id"`
	Content    *string `bson:"content,omitempty"`
	Type       string  `bson:"message_type"`
	FileURL    *string `bson:"file_url,omitempty"`
	IsRead     bool    `bson:"is_read"`
	CreatedAt  int64   `bson:"created_at"`
	UpdatedAt  int64   `bson:"updated_at"`
}

func fromMessage(m domain.Message) DiskMessage {
	return DiskMessage{
		ID:         int64(m.ID),
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Type:       string(m.Type),
		FileURL:    m.FileURL,
		IsRead:     m.IsRead,
		CreatedAt:  m.CreatedAt.UnixNano(),
		UpdatedAt:  m.UpdatedAt.UnixNano(),
	}
}

func (d DiskMessage) toMessage() domain.Message {
	return domain.Message{
		ID:         domain.MessageID(d.ID),
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Content:    d.Content,
		Type:       domain.MessageType(d.Type),
		FileURL:    d.FileURL,
		IsRead:     d.IsRead,
		CreatedAt:  time.Unix(0, d.CreatedAt).UTC(),
		UpdatedAt:  time.Unix(0, d.UpdatedAt).UTC(),
	}
}

func encodeMessage(m domain.Message) ([]byte, error) {
	return bson.Marshal(fromMessage(m))
}

// DecodeMessage is exported for the inspection tools.
func DecodeMessage(val []byte) (domain.Message, error) {
	var d DiskMessage
	if err := bson.Unmarshal(val, &d); err != nil {
		return domain.Message{}, err
	}
	return d.toMessage(), nil
}

type DiskUser struct {
	ID        string `bson:"id"`
	Username  string `bson:"username"`
	FullName  string `bson:"full_name"`
	AvatarURL string `bson:"avatar_url,omitempty"`
	IsActive  bool   `bson:"is_active"`
}

func encodeUser(u domain.User) ([]byte, error) {
	return bson.Marshal(DiskUser{
		ID:        u.ID,
		Username:  u.Username,
		FullName:  u.FullName,
		AvatarURL: u.AvatarURL,
		IsActive:  u.IsActive,
	})
}

func decodeUser(val []byte) (domain.User, error) {
	var d DiskUser
	if err := bson.Unmarshal(val, &d); err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:        d.ID,
		Username:  d.Username,
		FullName:  d.FullName,
		AvatarURL: d.AvatarURL,
		IsActive:  d.IsActive,
	}, nil
}
