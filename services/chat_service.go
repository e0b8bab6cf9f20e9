//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"dm-lab/contract"
	"dm-lab/domain"
	"dm-lab/domain/chat"
	"dm-lab/domain/event"
	"dm-lab/errors"
	"dm-lab/infrastructure/storage"
	"dm-lab/moderation"
	"dm-lab/observability"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/samber/lo/mutable"
)

// Read entry points, used as metric labels.
const (
	ReadFromMessage      = "message"
	ReadFromConversation = "conversation"
	ReadFromHistory      = "history"
)

type IChatService interface {
	Send(ctx context.Context, cmd chat.SendMessageCommand) (domain.Message, error)
	Conversations(ctx context.Context, q chat.ConversationsQuery) (domain.ConversationPage, error)
	History(ctx context.Context, q chat.HistoryQuery) (domain.HistoryPage, error)
	MarkMessageRead(ctx context.Context, readerID string, messageID domain.MessageID) (int, error)
	MarkConversationRead(ctx context.Context, readerID, counterpartID string) (int, error)
	Delete(ctx context.Context, requesterID string, messageID domain.MessageID) error
	Search(ctx context.Context, q chat.SearchQuery) (domain.SearchPage, error)
	UnreadCount(ctx context.Context, viewerID string) (int, error)
}

type ChatService struct {
	log              *slog.Logger
	messages         storage.IMessageRepository
	users            storage.IUserRepository
	index            storage.ISearchIndex
	publisher        contract.Publisher
	moderator        *moderation.Moderator
	maxContentLength int
}

// NewChatService wires the service. A nil moderator disables moderation.
func NewChatService(
	log *slog.Logger,
	messages storage.IMessageRepository,
	users storage.IUserRepository,
	index storage.ISearchIndex,
	publisher contract.Publisher,
	moderator *moderation.Moderator,
	maxContentLength int,
) *ChatService {
	return &ChatService{
		log:              log,
		messages:         messages,
		users:            users,
		index:            index,
		publisher:        publisher,
		moderator:        moderator,
		maxContentLength: maxContentLength,
	}
}

// Send validates, moderates and persists a message, then notifies the
// sender's connections and the receiver's.
func (s *ChatService) Send(ctx context.Context, cmd chat.SendMessageCommand) (domain.Message, error) {
	// 1. Shape checks, nothing is touched before they pass
	messageType, err := domain.ParseMessageType(cmd.MessageType)
	if err != nil {
		return domain.Message{}, err
	}
	newMsg := domain.NewMessage{
		SenderID:   cmd.SenderID,
		ReceiverID: cmd.ReceiverID,
		Content:    cmd.Content,
		Type:       messageType,
		FileURL:    cmd.FileURL,
	}.Normalize()
	if err = newMsg.Validate(s.maxContentLength); err != nil {
		return domain.Message{}, err
	}

	// 2. The receiver has to be a known, active account
	receiver, err := s.users.GetUser(newMsg.ReceiverID)
	if err != nil {
		return domain.Message{}, err
	}
	if !receiver.IsActive {
		return domain.Message{}, errors.NotFound("user %s", receiver.ID)
	}

	// 3. Moderation
	if s.moderator != nil && newMsg.Content != nil {
		censored, words := s.moderator.Censor(*newMsg.Content)
		if len(words) > 0 {
			lang := moderation.DetectLanguage(*newMsg.Content)
			s.log.Info("Message censored", "sender", newMsg.SenderID, "words", len(words), "lang", lang)
			observability.MessagesCensored.WithLabelValues(lang).Inc()
			newMsg.Content = lo.ToPtr(censored)
		}
	}

	// 4. Persist then index
	msg, err := s.messages.Insert(newMsg)
	if err != nil {
		return domain.Message{}, err
	}
	if err = s.index.Index(msg); err != nil {
		s.log.Error("Failed to index message", "id", msg.ID, "error", err)
	}
	observability.MessagesSent.WithLabelValues(string(msg.Type)).Inc()

	// 5. Notify both sides
	view := event.ToView(msg)
	s.publish(ctx, event.To(event.MessageSent, view, msg.SenderID))
	s.publish(ctx, event.To(event.MessageReceive, view, msg.ReceiverID))
	return msg, nil
}

// Conversations lists the viewer's conversations, latest activity first.
// Counterparts unknown to the directory or inactive are left out.
func (s *ChatService) Conversations(_ context.Context, q chat.ConversationsQuery) (domain.ConversationPage, error) {
	page, limit := domain.Pagination(q.Page, q.Limit)
	if err := domain.ValidateUserID(q.ViewerID); err != nil {
		return domain.ConversationPage{}, err
	}

	counterpartIDs, err := s.messages.Counterparts(q.ViewerID)
	if err != nil {
		return domain.ConversationPage{}, err
	}
	users, err := s.users.GetUsers(counterpartIDs)
	if err != nil {
		return domain.ConversationPage{}, err
	}

	conversations := make([]domain.Conversation, 0, len(counterpartIDs))
	for _, counterpartID := range counterpartIDs {
		user, ok := users[counterpartID]
		if !ok || !user.IsActive {
			continue
		}
		last, unread, err := s.messages.Snapshot(q.ViewerID, counterpartID)
		if err != nil {
			return domain.ConversationPage{}, err
		}
		// Every message of the pair was deleted
		if last == nil {
			continue
		}
		conversations = append(conversations, domain.Conversation{
			Counterpart: user,
			LastMessage: *last,
			UnreadCount: unread,
		})
	}

	sort.Slice(conversations, func(i, j int) bool {
		a, b := conversations[i].LastMessage, conversations[j].LastMessage
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	return domain.ConversationPage{
		Conversations: paginate(conversations, page, limit),
		Total:         len(conversations),
		Page:          page,
		Limit:         limit,
	}, nil
}

// History returns one page of a conversation in ascending order and marks
// the returned messages addressed to the viewer as read.
func (s *ChatService) History(ctx context.Context, q chat.HistoryQuery) (domain.HistoryPage, error) {
	page, limit := domain.Pagination(q.Page, q.Limit)
	if err := domain.ValidateUserID(q.ViewerID); err != nil {
		return domain.HistoryPage{}, err
	}
	if err := domain.ValidateUserID(q.CounterpartID); err != nil {
		return domain.HistoryPage{}, err
	}
	if _, err := s.users.GetUser(q.CounterpartID); err != nil {
		return domain.HistoryPage{}, err
	}

	// 1. Read the page and the total, before anything is marked
	total, err := s.messages.Count(q.ViewerID, q.CounterpartID)
	if err != nil {
		return domain.HistoryPage{}, err
	}
	offset := 0
	if q.Before == nil {
		offset = domain.Offset(page, limit)
	}
	var rows []domain.Message
	if offset < total {
		if rows, err = s.messages.History(q.ViewerID, q.CounterpartID, q.Before, offset, limit+1); err != nil {
			return domain.HistoryPage{}, err
		}
	}
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	mutable.Reverse(rows)

	// 2. Mark what the viewer just received
	unreadIDs := lo.FilterMap(rows, func(m domain.Message, _ int) (domain.MessageID, bool) {
		return m.ID, m.ReceiverID == q.ViewerID && !m.IsRead
	})
	if len(unreadIDs) > 0 {
		affected, err := s.messages.MarkRead(unreadIDs, q.ViewerID)
		if err != nil {
			return domain.HistoryPage{}, err
		}
		// Rows missing from affected were read meanwhile by another entry point
		marked := lo.SliceToMap(unreadIDs, func(id domain.MessageID) (domain.MessageID, struct{}) {
			return id, struct{}{}
		})
		for i := range rows {
			if _, ok := marked[rows[i].ID]; ok {
				rows[i].IsRead = true
			}
		}
		s.notifyRead(ctx, q.ViewerID, affected, ReadFromHistory)
	}

	result := domain.HistoryPage{
		Messages: rows,
		Total:    total,
		Page:     page,
		Limit:    limit,
		HasMore:  hasMore,
	}
	if hasMore && len(rows) > 0 {
		result.NextBefore = lo.ToPtr(rows[0].CreatedAt)
	}
	return result, nil
}

// MarkMessageRead marks one message read by its receiver.
// The sender reading its own message is a no-op, anybody else gets NotFound.
func (s *ChatService) MarkMessageRead(ctx context.Context, readerID string, messageID domain.MessageID) (int, error) {
	msg, err := s.messages.Get(messageID)
	if err != nil {
		return 0, err
	}
	if !msg.Involves(readerID) {
		return 0, errors.NotFound("message %d", messageID)
	}
	affected, err := s.messages.MarkRead([]domain.MessageID{messageID}, readerID)
	if err != nil {
		return 0, err
	}
	s.notifyRead(ctx, readerID, affected, ReadFromMessage)
	return len(affected), nil
}

// MarkConversationRead marks everything counterpartID sent to readerID as read.
func (s *ChatService) MarkConversationRead(ctx context.Context, readerID, counterpartID string) (int, error) {
	if err := domain.ValidateUserID(counterpartID); err != nil {
		return 0, err
	}
	if readerID == counterpartID {
		return 0, errors.Validation("cannot read a conversation with yourself")
	}
	affected, err := s.messages.MarkConversationRead(readerID, counterpartID)
	if err != nil {
		return 0, err
	}
	observability.MessagesRead.WithLabelValues(ReadFromConversation).Add(float64(len(affected)))
	if len(affected) > 0 {
		ids := lo.Map(affected, func(m domain.Message, _ int) uint64 { return uint64(m.ID) })
		s.publish(ctx, event.To(event.ConversationReceipt, event.ConversationReadNotice{
			ReaderID:   readerID,
			Count:      len(affected),
			MessageIDs: ids,
		}, counterpartID))
	}
	return len(affected), nil
}

func (s *ChatService) Delete(_ context.Context, requesterID string, messageID domain.MessageID) error {
	deleted, err := s.messages.Delete(messageID, requesterID)
	if err != nil {
		return err
	}
	if err = s.index.Remove(deleted.ID); err != nil {
		s.log.Error("Failed to remove message from search index", "id", deleted.ID, "error", err)
	}
	return nil
}

// Search finds the viewer's messages whose content contains the text,
// ignoring case, optionally within one conversation. Newest first.
func (s *ChatService) Search(ctx context.Context, q chat.SearchQuery) (domain.SearchPage, error) {
	page, limit := domain.Pagination(q.Page, q.Limit)
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return domain.SearchPage{}, errors.Validation("search query is required")
	}
	if q.CounterpartID != "" {
		if err := domain.ValidateUserID(q.CounterpartID); err != nil {
			return domain.SearchPage{}, err
		}
	}
	observability.SearchQueries.Inc()

	candidates, err := s.index.Search(ctx, q.ViewerID, q.CounterpartID, text)
	if err != nil {
		return domain.SearchPage{}, errors.Transient(err)
	}
	messages, err := s.messages.GetMany(candidates)
	if err != nil {
		return domain.SearchPage{}, err
	}

	// The stored message is the authority over the index
	needle := strings.ToLower(text)
	matches := lo.Filter(messages, func(m domain.Message, _ int) bool {
		if !m.Involves(q.ViewerID) || m.Content == nil {
			return false
		}
		if q.CounterpartID != "" && m.Counterpart(q.ViewerID) != q.CounterpartID {
			return false
		}
		return strings.Contains(strings.ToLower(*m.Content), needle)
	})

	return domain.SearchPage{
		Messages: paginate(matches, page, limit),
		Total:    len(matches),
		Page:     page,
		Limit:    limit,
	}, nil
}

func (s *ChatService) UnreadCount(_ context.Context, viewerID string) (int, error) {
	if err := domain.ValidateUserID(viewerID); err != nil {
		return 0, err
	}
	return s.messages.UnreadTotal(viewerID)
}

// notifyRead sends one read receipt per message to its sender.
func (s *ChatService) notifyRead(ctx context.Context, readerID string, affected []domain.Message, source string) {
	observability.MessagesRead.WithLabelValues(source).Add(float64(len(affected)))
	readAt := time.Now().UTC()
	for _, m := range affected {
		s.publish(ctx, event.To(event.MessageReadReceipt, event.ReadNotice{
			MessageID: uint64(m.ID),
			ReaderID:  readerID,
			ReadAt:    readAt,
		}, m.SenderID))
	}
}

// publish never fails the caller: the state is already persisted and
// offline clients catch up through History.
func (s *ChatService) publish(ctx context.Context, d event.Delivery) {
	if err := s.publisher.Publish(ctx, d); err != nil {
		s.log.Warn("Failed to publish delivery", "event", d.Event.Event, "error", err)
	}
}

func paginate[T any](items []T, page, limit int) []T {
	start := domain.Offset(page, limit)
	if start >= len(items) {
		return []T{}
	}
	end := min(start+limit, len(items))
	return items[start:end]
}
