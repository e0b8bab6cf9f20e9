package runtime

import (
	"context"
	"dm-lab/auth"
	"dm-lab/contract"
	"dm-lab/domain"
	"dm-lab/domain/chat"
	"dm-lab/domain/event"
	"dm-lab/errors"
	"dm-lab/observability"
	"dm-lab/services"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

const presenceShards = 32

// Router turns inbound socket frames into service calls and keeps presence
// and typing state in line with the connections.
// Every frame of one connection is handled on that connection's goroutine.
type Router struct {
	log       *slog.Logger
	chat      services.IChatService
	registry  *Registry
	typing    *TypingTracker
	publisher contract.Publisher

	// A presence transition and its announcement happen under the same lock,
	// so peers see joined and left in the order the registry applied them.
	presence [presenceShards]sync.Mutex
}

func NewRouter(
	log *slog.Logger,
	chat services.IChatService,
	registry *Registry,
	typing *TypingTracker,
	publisher contract.Publisher,
) *Router {
	r := &Router{log: log, chat: chat, registry: registry, typing: typing, publisher: publisher}
	typing.OnExpire(func(key domain.TypingKey) {
		r.log.Debug("Typing expired", "chat", key.ChatID, "user", key.UserID)
		r.notifyTyping(context.Background(), key, false)
	})
	return r
}

// Connect registers the connection, announces the user when they come
// online and hands the connection the list of who else is online.
func (r *Router) Connect(ctx context.Context, userID, connID string, sink contract.EventSink) {
	unlock := r.lockPresence(userID)
	cameOnline := r.registry.Connect(userID, connID, sink)
	others := lo.Without(r.registry.OnlineUsers(), userID)
	if cameOnline {
		r.log.Info("User online", "user", userID, "conn", connID)
		if len(others) > 0 {
			r.publish(ctx, event.To(event.UserJoined, event.PresenceNotice{UserID: userID}, others...))
		}
	}
	unlock()

	if err := sink.Consume(ctx, event.NewOutbound(event.OnlineList, event.OnlineListNotice{UserIDs: others})); err != nil {
		r.log.Warn("Failed to send online list", "conn", connID, "error", err)
	}
}

// Disconnect clears the typing entries the connection owned, then releases
// it. The last connection of a user announces them offline.
func (r *Router) Disconnect(ctx context.Context, userID, connID string) {
	for _, key := range r.typing.ClearConnection(connID) {
		r.notifyTyping(ctx, key, false)
	}
	unlock := r.lockPresence(userID)
	defer unlock()
	if !r.registry.Disconnect(userID, connID) {
		return
	}
	r.log.Info("User offline", "user", userID)
	if others := r.registry.OnlineUsers(); len(others) > 0 {
		r.publish(ctx, event.To(event.UserLeft, event.PresenceNotice{UserID: userID}, others...))
	}
}

// Handle processes one frame. Failures are reported to the originating
// connection only and never end it.
func (r *Router) Handle(ctx context.Context, userID, connID string, sink contract.EventSink, raw []byte) {
	var in event.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		r.fail(ctx, sink, "", errors.Validation("malformed frame"))
		return
	}
	label := string(in.Event)

	var err error
	switch in.Event {
	case event.MessageSend:
		err = r.handleSend(ctx, userID, in.Data)
	case event.TypingStart:
		err = r.handleTyping(ctx, userID, connID, in.Data, true)
	case event.TypingStop:
		err = r.handleTyping(ctx, userID, connID, in.Data, false)
	case event.MessageRead:
		err = r.handleRead(ctx, userID, in.Data)
	case event.ConversationRead:
		err = r.handleConversationRead(ctx, userID, in.Data)
	case event.Ping:
		err = sink.Consume(ctx, event.NewOutbound(event.Pong, nil))
	default:
		label = "unknown"
		err = fmt.Errorf("%w: %w %q", errors.ErrValidation, errors.ErrUnknownEvent, in.Event)
	}
	observability.SocketEvents.WithLabelValues(label).Inc()
	if err != nil {
		r.fail(ctx, sink, in.Event, err)
	}
}

func (r *Router) handleSend(ctx context.Context, userID string, data json.RawMessage) error {
	var payload event.SendPayload
	if err := decode(data, &payload); err != nil {
		return err
	}
	_, err := r.chat.Send(ctx, chat.SendMessageCommand{
		SenderID:    userID,
		ReceiverID:  payload.ReceiverID,
		Content:     payload.Content,
		FileURL:     payload.FileURL,
		MessageType: payload.Type,
	})
	return err
}

func (r *Router) handleTyping(ctx context.Context, userID, connID string, data json.RawMessage, typing bool) error {
	var payload event.TypingPayload
	if err := decode(data, &payload); err != nil {
		return err
	}
	if err := domain.ValidateUserID(payload.ChatID); err != nil {
		return err
	}
	if payload.ChatID == userID {
		return errors.Validation("cannot type to yourself")
	}

	key := domain.TypingKey{ChatID: payload.ChatID, UserID: userID}
	var changed bool
	if typing {
		changed = r.typing.Start(key, connID)
	} else {
		changed = r.typing.Stop(key)
	}
	if changed {
		r.notifyTyping(ctx, key, typing)
	}
	return nil
}

func (r *Router) handleRead(ctx context.Context, userID string, data json.RawMessage) error {
	var payload event.ReadPayload
	if err := decode(data, &payload); err != nil {
		return err
	}
	// Receipts to the sender are published by the service
	_, err := r.chat.MarkMessageRead(ctx, userID, domain.MessageID(payload.MessageID))
	return err
}

func (r *Router) handleConversationRead(ctx context.Context, userID string, data json.RawMessage) error {
	var payload event.ConversationReadPayload
	if err := decode(data, &payload); err != nil {
		return err
	}
	_, err := r.chat.MarkConversationRead(ctx, userID, payload.UserID)
	return err
}

// notifyTyping tells the counterpart. From their side the chat is the typist.
func (r *Router) notifyTyping(ctx context.Context, key domain.TypingKey, typing bool) {
	name := event.TypingStopped
	if typing {
		name = event.TypingStarted
	}
	r.publish(ctx, event.To(name, event.TypingNotice{
		ChatID:   key.UserID,
		UserID:   key.UserID,
		IsTyping: typing,
	}, key.ChatID))
}

func (r *Router) lockPresence(userID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	mu := &r.presence[h.Sum32()%presenceShards]
	mu.Lock()
	return mu.Unlock
}

func (r *Router) fail(ctx context.Context, sink contract.EventSink, name event.Name, err error) {
	code := errors.Code(err)
	observability.SocketErrors.WithLabelValues(code).Inc()
	if code == errors.CodeInternal {
		r.log.Error("Socket event failed", "event", name, "error", err)
	} else {
		r.log.Debug("Socket event rejected", "event", name, "error", err)
	}
	notice := event.ErrorNotice{Event: name, Code: code, Message: errors.Message(err)}
	if err = sink.Consume(ctx, event.NewOutbound(event.Error, notice)); err != nil {
		r.log.Warn("Failed to report socket error", "event", name, "error", err)
	}
}

func (r *Router) publish(ctx context.Context, d event.Delivery) {
	if err := r.publisher.Publish(ctx, d); err != nil {
		r.log.Warn("Failed to publish delivery", "event", d.Event.Event, "error", err)
	}
}

func decode(data json.RawMessage, payload any) error {
	if len(data) == 0 {
		return errors.Validation("missing data")
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return errors.Validation("malformed data")
	}
	return auth.ValidatePayload(payload)
}
