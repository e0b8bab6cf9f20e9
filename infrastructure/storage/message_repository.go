//go:generate go run go.uber.org/mock/mockgen -source=message_repository.go -destination=../../mocks/mock_message_repository.go -package=mocks
package storage

import (
	"dm-lab/domain"
	"dm-lab/errors"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

const (
	maxConflictRetries = 5
	sequenceBandwidth  = 100
	markReadBatchSize  = 500
)

type IMessageRepository interface {
	Insert(msg domain.NewMessage) (domain.Message, error)
	Get(id domain.MessageID) (domain.Message, error)
	GetMany(ids []domain.MessageID) ([]domain.Message, error)
	MarkRead(ids []domain.MessageID, readerID string) ([]domain.Message, error)
	MarkConversationRead(readerID, counterpartID string) ([]domain.Message, error)
	Delete(id domain.MessageID, requesterID string) (domain.Message, error)
	History(userID, counterpartID string, before *time.Time, offset, limit int) ([]domain.Message, error)
	Count(userID, counterpartID string) (int, error)
	Counterparts(userID string) ([]string, error)
	Snapshot(userID, counterpartID string) (*domain.Message, int, error)
	UnreadTotal(userID string) (int, error)
	Ping() error
}

// MessageRepository stores messages in Badger.
//
//	msg:{id}                          -> BSON message
//	pair:{lo}:{hi}:{created}:{id}     -> empty, conversation order
//	unread:{receiver}:{sender}:{id}   -> empty, one per unread message
//	peer:{user}:{counterpart}         -> empty, conversation membership
//
// The message and its index entries are always written in the same transaction.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
	seq *badger.Sequence

	mu       sync.Mutex
	lastNano int64
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("failed to lease message sequence: %w", err)
	}
	return &MessageRepository{db: db, log: log, seq: seq}, nil
}

// Close returns the unused part of the leased sequence.
func (r *MessageRepository) Close() error {
	return r.seq.Release()
}

// next hands out an id and a creation time, both strictly increasing.
func (r *MessageRepository) next() (domain.MessageID, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.seq.Next()
	if err != nil {
		return 0, time.Time{}, err
	}
	now := time.Now().UTC().UnixNano()
	if now <= r.lastNano {
		now = r.lastNano + 1
	}
	r.lastNano = now
	// Badger sequences start at zero
	return domain.MessageID(n + 1), time.Unix(0, now).UTC(), nil
}

func (r *MessageRepository) Insert(newMsg domain.NewMessage) (domain.Message, error) {
	newMsg = newMsg.Normalize()
	if err := newMsg.Validate(0); err != nil {
		return domain.Message{}, err
	}

	id, at, err := r.next()
	if err != nil {
		return domain.Message{}, errors.Transient(err)
	}
	msg := domain.Message{
		ID:         id,
		SenderID:   newMsg.SenderID,
		ReceiverID: newMsg.ReceiverID,
		Content:    newMsg.Content,
		Type:       newMsg.Type,
		FileURL:    newMsg.FileURL,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	val, err := encodeMessage(msg)
	if err != nil {
		return domain.Message{}, err
	}

	err = r.update(func(txn *badger.Txn) error {
		entries := [][]byte{
			pairKey(msg),
			unreadKey(msg),
			peerKey(msg.SenderID, msg.ReceiverID),
			peerKey(msg.ReceiverID, msg.SenderID),
		}
		if err := txn.Set(messageKey(msg.ID), val); err != nil {
			return err
		}
		for _, key := range entries {
			if err := txn.Set(key, []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Message{}, storeError(err)
	}
	return msg, nil
}

func (r *MessageRepository) Get(id domain.MessageID) (domain.Message, error) {
	var msg domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		msg, err = getMessage(txn, id)
		return err
	})
	if err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return domain.Message{}, errors.NotFound("message %d", id)
		}
		return domain.Message{}, storeError(err)
	}
	return msg, nil
}

// GetMany keeps the order of ids and skips the ones that no longer exist.
func (r *MessageRepository) GetMany(ids []domain.MessageID) ([]domain.Message, error) {
	messages := make([]domain.Message, 0, len(ids))
	err := r.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			msg, err := getMessage(txn, id)
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	return messages, nil
}

// MarkRead flips the unread messages received by readerID among ids.
// Messages already read, sent by readerID or missing are ignored.
// It returns the messages that actually changed.
func (r *MessageRepository) MarkRead(ids []domain.MessageID, readerID string) ([]domain.Message, error) {
	var affected []domain.Message
	for _, chunk := range lo.Chunk(lo.Uniq(ids), markReadBatchSize) {
		changed, err := r.markRead(chunk, readerID)
		if err != nil {
			return affected, err
		}
		affected = append(affected, changed...)
	}
	return affected, nil
}

func (r *MessageRepository) markRead(ids []domain.MessageID, readerID string) ([]domain.Message, error) {
	var affected []domain.Message
	err := r.update(func(txn *badger.Txn) error {
		// Reset on conflict retries
		affected = nil
		now := time.Now().UTC()
		for _, id := range ids {
			msg, err := getMessage(txn, id)
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if msg.ReceiverID != readerID || msg.IsRead {
				continue
			}
			msg.IsRead = true
			msg.UpdatedAt = now
			val, err := encodeMessage(msg)
			if err != nil {
				return err
			}
			if err = txn.Set(messageKey(msg.ID), val); err != nil {
				return err
			}
			if err = txn.Delete(unreadKey(msg)); err != nil {
				return err
			}
			affected = append(affected, msg)
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	return affected, nil
}

// MarkConversationRead marks every message counterpartID sent to readerID as read.
func (r *MessageRepository) MarkConversationRead(readerID, counterpartID string) ([]domain.Message, error) {
	var ids []domain.MessageID
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		ids, err = collectIDs(txn, unreadPrefixOf(readerID, counterpartID))
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}
	return r.MarkRead(ids, readerID)
}

// Delete removes a message and its index entries. Only the sender may delete.
func (r *MessageRepository) Delete(id domain.MessageID, requesterID string) (domain.Message, error) {
	var deleted domain.Message
	err := r.update(func(txn *badger.Txn) error {
		msg, err := getMessage(txn, id)
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.NotFound("message %d", id)
		}
		if err != nil {
			return err
		}
		if msg.SenderID != requesterID {
			return errors.Authorization("only the sender can delete message %d", id)
		}
		for _, key := range [][]byte{messageKey(id), pairKey(msg), unreadKey(msg)} {
			if err = txn.Delete(key); err != nil {
				return err
			}
		}
		deleted = msg
		return nil
	})
	if err != nil {
		return domain.Message{}, storeError(err)
	}
	return deleted, nil
}

// History returns up to limit messages of the conversation, newest first.
// When before is set only strictly older messages are returned and offset
// is applied after the cursor.
func (r *MessageRepository) History(userID, counterpartID string, before *time.Time, offset, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	if before != nil && before.UnixNano() <= 0 {
		return nil, nil
	}

	prefix := pairPrefixOf(userID, counterpartID)
	var messages []domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		options.Prefix = []byte(prefix)
		it := txn.NewIterator(options)
		defer it.Close()

		// Without a cursor we start after the last possible key of the pair.
		// With one, the seek key sorts before every key sharing its timestamp.
		seekKey := []byte(prefix + "\xff")
		if before != nil {
			seekKey = []byte(fmt.Sprintf("%s%019d", prefix, before.UnixNano()))
		}

		skipped := 0
		for it.Seek(seekKey); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			id, err := idFromIndexKey(it.Item().Key())
			if err != nil {
				return err
			}
			msg, err := getMessage(txn, id)
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				r.log.Warn("Dangling conversation index entry", "key", string(it.Item().Key()))
				continue
			}
			if err != nil {
				return err
			}
			messages = append(messages, msg)
			if len(messages) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	return messages, nil
}

func (r *MessageRepository) Count(userID, counterpartID string) (int, error) {
	var count int
	err := r.db.View(func(txn *badger.Txn) error {
		count = countPrefix(txn, pairPrefixOf(userID, counterpartID))
		return nil
	})
	if err != nil {
		return 0, storeError(err)
	}
	return count, nil
}

// Counterparts lists every user userID has ever exchanged a message with.
func (r *MessageRepository) Counterparts(userID string) ([]string, error) {
	var counterparts []string
	prefix := peerPrefixOf(userID)
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = []byte(prefix)
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix([]byte(prefix)); it.Next() {
			counterparts = append(counterparts, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	return counterparts, nil
}

// Snapshot reads the latest message and the unread count of a conversation
// from the same read transaction.
func (r *MessageRepository) Snapshot(userID, counterpartID string) (*domain.Message, int, error) {
	var last *domain.Message
	var unread int
	prefix := pairPrefixOf(userID, counterpartID)
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		options.Prefix = []byte(prefix)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek([]byte(prefix + "\xff")); it.ValidForPrefix([]byte(prefix)); it.Next() {
			id, err := idFromIndexKey(it.Item().Key())
			if err != nil {
				return err
			}
			msg, err := getMessage(txn, id)
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			last = &msg
			break
		}
		unread = countPrefix(txn, unreadPrefixOf(userID, counterpartID))
		return nil
	})
	if err != nil {
		return nil, 0, storeError(err)
	}
	return last, unread, nil
}

// UnreadTotal counts unread messages received by userID across conversations.
func (r *MessageRepository) UnreadTotal(userID string) (int, error) {
	var count int
	err := r.db.View(func(txn *badger.Txn) error {
		count = countPrefix(txn, unreadPrefixOf(userID, ""))
		return nil
	})
	if err != nil {
		return 0, storeError(err)
	}
	return count, nil
}

func (r *MessageRepository) Ping() error {
	if r.db.IsClosed() {
		return errors.Transient(badger.ErrDBClosed)
	}
	return storeError(r.db.View(func(txn *badger.Txn) error { return nil }))
}

// update runs fn in a read-write transaction, retried on write conflicts.
func (r *MessageRepository) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		err = r.db.Update(fn)
		if !stderrors.Is(err, badger.ErrConflict) {
			return err
		}
		r.log.Debug("Transaction conflict, retrying", "attempt", attempt)
	}
	return err
}

func getMessage(txn *badger.Txn, id domain.MessageID) (domain.Message, error) {
	item, err := txn.Get(messageKey(id))
	if err != nil {
		return domain.Message{}, err
	}
	var msg domain.Message
	err = item.Value(func(val []byte) error {
		msg, err = DecodeMessage(val)
		return err
	})
	return msg, err
}

func collectIDs(txn *badger.Txn, prefix string) ([]domain.MessageID, error) {
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	options.Prefix = []byte(prefix)
	it := txn.NewIterator(options)
	defer it.Close()

	var ids []domain.MessageID
	for it.Rewind(); it.ValidForPrefix([]byte(prefix)); it.Next() {
		id, err := idFromIndexKey(it.Item().Key())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func countPrefix(txn *badger.Txn, prefix string) int {
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	options.Prefix = []byte(prefix)
	it := txn.NewIterator(options)
	defer it.Close()

	count := 0
	for it.Rewind(); it.ValidForPrefix([]byte(prefix)); it.Next() {
		count++
	}
	return count
}

// storeError keeps taxonomy errors as they are and marks the rest transient.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, errors.ErrValidation),
		stderrors.Is(err, errors.ErrNotFound),
		stderrors.Is(err, errors.ErrAuthorization),
		stderrors.Is(err, errors.ErrTransientStore):
		return err
	case stderrors.Is(err, badger.ErrKeyNotFound):
		return errors.NotFound("%v", err)
	default:
		return errors.Transient(err)
	}
}
