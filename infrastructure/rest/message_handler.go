package rest

import (
	"dm-lab/auth"
	"dm-lab/domain"
	"dm-lab/domain/chat"
	"dm-lab/domain/event"
	"dm-lab/errors"
	"dm-lab/infrastructure/storage"
	"dm-lab/services"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type MessageHandler struct {
	log     *slog.Logger
	chat    services.IChatService
	objects storage.IObjectStore
}

func NewMessageHandler(log *slog.Logger, chat services.IChatService, objects storage.IObjectStore) *MessageHandler {
	return &MessageHandler{log: log, chat: chat, objects: objects}
}

// Register mounts the routes on an authenticated group.
func (h *MessageHandler) Register(group *gin.RouterGroup) {
	group.GET("/conversations", h.Conversations)
	group.GET("/conversation/:userId", h.History)
	group.PATCH("/conversation/:userId/read", h.MarkConversationRead)
	group.POST("/send", h.Send)
	group.PATCH("/:messageId/read", h.MarkRead)
	group.DELETE("/:messageId", h.Delete)
	group.GET("/search", h.Search)
	group.GET("/unread/count", h.UnreadCount)
}

func (h *MessageHandler) Conversations(c *gin.Context) {
	page, limit, err := pageParams(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	result, err := h.chat.Conversations(c.Request.Context(), chat.ConversationsQuery{
		ViewerID: auth.UserID(c),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toConversationsView(result)})
}

func (h *MessageHandler) History(c *gin.Context) {
	page, limit, err := pageParams(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	q := chat.HistoryQuery{
		ViewerID:      auth.UserID(c),
		CounterpartID: c.Param("userId"),
		Page:          page,
		Limit:         limit,
	}
	if raw := c.Query("before"); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			h.fail(c, errors.Validation("before must be an RFC3339 timestamp"))
			return
		}
		q.Before = &before
	}
	result, err := h.chat.History(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toHistoryView(result)})
}

// Send accepts JSON, or a multipart form whose file part is stored first.
func (h *MessageHandler) Send(c *gin.Context) {
	var body SendRequest
	if err := c.ShouldBind(&body); err != nil {
		h.fail(c, errors.Validation("malformed body"))
		return
	}
	if err := auth.ValidatePayload(body); err != nil {
		h.fail(c, err)
		return
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := h.attach(c, &body); err != nil {
			h.fail(c, err)
			return
		}
	}

	msg, err := h.chat.Send(c.Request.Context(), chat.SendMessageCommand{
		SenderID:    auth.UserID(c),
		ReceiverID:  body.ReceiverID,
		Content:     body.Content,
		FileURL:     body.FileURL,
		MessageType: body.MessageType,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": event.ToView(msg)})
}

func (h *MessageHandler) attach(c *gin.Context, body *SendRequest) error {
	header, err := c.FormFile("file")
	if stderrors.Is(err, http.ErrMissingFile) {
		return nil
	}
	if err != nil {
		return errors.Validation("malformed file part")
	}
	file, err := header.Open()
	if err != nil {
		return errors.Validation("unreadable file part")
	}
	defer func() { _ = file.Close() }()

	stored, err := h.objects.Save(c.Request.Context(), header.Filename, file)
	if err != nil {
		return err
	}
	body.FileURL = lo.ToPtr(stored.URL)
	if body.MessageType == "" {
		body.MessageType = string(domain.MessageTypeForMIME(stored.MIME))
	}
	return nil
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	id, err := messageID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	updated, err := h.chat.MarkMessageRead(c.Request.Context(), auth.UserID(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"updated": updated}})
}

func (h *MessageHandler) MarkConversationRead(c *gin.Context) {
	updated, err := h.chat.MarkConversationRead(c.Request.Context(), auth.UserID(c), c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"updated": updated}})
}

func (h *MessageHandler) Delete(c *gin.Context) {
	id, err := messageID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err = h.chat.Delete(c.Request.Context(), auth.UserID(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": uint64(id)}})
}

func (h *MessageHandler) Search(c *gin.Context) {
	page, limit, err := pageParams(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	result, err := h.chat.Search(c.Request.Context(), chat.SearchQuery{
		ViewerID:      auth.UserID(c),
		Text:          c.Query("q"),
		CounterpartID: c.Query("user_id"),
		Page:          page,
		Limit:         limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toSearchView(result)})
}

func (h *MessageHandler) UnreadCount(c *gin.Context) {
	count, err := h.chat.UnreadCount(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"count": count}})
}

func (h *MessageHandler) fail(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":   errors.Code(err),
		"message": errors.Message(err),
	})
}

func pageParams(c *gin.Context) (int, int, error) {
	page, err := intQuery(c, "page")
	if err != nil {
		return 0, 0, err
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

// intQuery returns 0 when the parameter is absent, so defaults apply downstream.
func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, errors.Validation("%s must be a positive integer", name)
	}
	return v, nil
}

func messageID(c *gin.Context) (domain.MessageID, error) {
	id, err := strconv.ParseUint(c.Param("messageId"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Validation("invalid message id")
	}
	return domain.MessageID(id), nil
}
