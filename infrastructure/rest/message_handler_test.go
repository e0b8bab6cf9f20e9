package rest

import (
	"bytes"
	"dm-lab/auth"
	"dm-lab/domain"
	"dm-lab/domain/chat"
	"dm-lab/errors"
	"dm-lab/infrastructure/storage"
	"dm-lab/mocks"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type restFixture struct {
	engine  *gin.Engine
	chat    *mocks.MockIChatService
	objects *mocks.MockIObjectStore
	users   *mocks.MockIUserRepository
	token   string
}

func newRestFixture(t *testing.T) restFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctrl := gomock.NewController(t)
	chatMock := mocks.NewMockIChatService(ctrl)
	objectsMock := mocks.NewMockIObjectStore(ctrl)
	usersMock := mocks.NewMockIUserRepository(ctrl)

	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	token, err := tokens.GenerateToken("alice", nil)
	require.NoError(t, err)

	engine := NewEngine(Options{AllowedOrigins: []string{"*"}}, tokens,
		NewMessageHandler(slog.Default(), chatMock, objectsMock),
		NewUserHandler(slog.Default(), usersMock), nil, Metrics())
	return restFixture{engine: engine, chat: chatMock, objects: objectsMock, users: usersMock, token: token}
}

func (f restFixture) do(method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	r := httptest.NewRequest(method, path, body)
	r.Header.Set("Authorization", "Bearer "+f.token)
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestMessageHandler_RequiresIdentity(t *testing.T) {
	req := require.New(t)
	f := newRestFixture(t)

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/messages/conversations", nil))

	req.Equal(http.StatusUnauthorized, w.Code)
	req.Equal(errors.CodeAuthentication, decodeBody(t, w)["error"])
}

func TestMessageHandler_Conversations(t *testing.T) {
	req := require.New(t)
	f := newRestFixture(t)

	f.chat.EXPECT().Conversations(gomock.Any(), chat.ConversationsQuery{ViewerID: "alice", Page: 2, Limit: 10}).
		Return(domain.ConversationPage{
			Conversations: []domain.Conversation{{
				Counterpart: domain.User{ID: "bob", Username: "bob", IsActive: true},
				LastMessage: domain.Message{ID: 4, SenderID: "bob", ReceiverID: "alice", Content: lo.ToPtr("hey")},
				UnreadCount: 2,
			}},
			Total: 11, Page: 2, Limit: 10,
		}, nil)

	w := f.do(http.MethodGet, "/api/messages/conversations?page=2&limit=10", nil, "")

	req.Equal(http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	req.EqualValues(11, data["total"])
	item := data["items"].([]any)[0].(map[string]any)
	req.Equal("bob", item["user"].(map[string]any)["id"])
	req.EqualValues(2, item["unreadCount"])
	req.Equal("hey", item["lastMessage"].(map[string]any)["content"])
}

func TestMessageHandler_History(t *testing.T) {
	req := require.New(t)
	f := newRestFixture(t)
	before := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	f.chat.EXPECT().History(gomock.Any(), chat.HistoryQuery{
		ViewerID: "alice", CounterpartID: "bob", Before: &before, Limit: 20,
	}).Return(domain.HistoryPage{Messages: []domain.Message{{ID: 1}}, Total: 1, Page: 1, Limit: 20}, nil)

	w := f.do(http.MethodGet, "/api/messages/conversation/bob?limit=20&before=2026-03-01T12:00:00Z", nil, "")
	req.Equal(http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	req.Equal(false, data["hasMore"])
	req.Len(data["items"], 1)

	// When the cursor or the page are not understood
	req.Equal(http.StatusBadRequest, f.do(http.MethodGet, "/api/messages/conversation/bob?before=yesterday", nil, "").Code)
	req.Equal(http.StatusBadRequest, f.do(http.MethodGet, "/api/messages/conversation/bob?page=0", nil, "").Code)
}

func TestMessageHandler_SendJSON(t *testing.T) {
	req := require.New(t)
	f := newRestFixture(t)

	f.chat.EXPECT().Send(gomock.Any(), chat.SendMessageCommand{
		SenderID: "alice", ReceiverID: "bob", Content: lo.ToPtr("hi"),
	}).Return(domain.Message{ID: 9, SenderID: "alice", ReceiverID: "bob", Content: lo.ToPtr("hi"), Type: domain.TextMessage}, nil)

	w := f.do(http.MethodPost, "/api/messages/send",
		bytes.NewBufferString(`{"receiver_id":"bob","content":"hi"}`), "application/json")

	req.Equal(http.StatusCreated, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	req.EqualValues(9, data["id"])
	req.Equal(false, data["isRead"])

	// When the receiver is missing nothing reaches the service
	w = f.do(http.MethodPost, "/api/messages/send", bytes.NewBufferString(`{"content":"hi"}`), "application/json")
	req.Equal(http.StatusBadRequest, w.Code)
	req.Equal(errors.CodeValidation, decodeBody(t, w)["error"])
}

func TestMessageHandler_SendUpload(t *testing.T) {
	req := require.New(t)
	f := newRestFixture(t)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	req.NoError(form.WriteField("receiver_id", "bob"))
	part, err := form.CreateFormFile("file", "cat.png")
	req.NoError(err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\n"))
	req.NoError(err)
	req.NoError(form.Close())

	f.objects.EXPECT().Save(gomock.Any(), "cat.png", gomock.Any()).
		Return(storage.StoredObject{URL: "http://localhost/uploads/x.png", MIME: "image/png", Size: 8}, nil)
	f.chat.EXPECT().Send(gomock.Any(), chat.SendMessageCommand{
		SenderID:    "alice",
		ReceiverID:  "bob",
		FileURL:     lo.ToPtr("http://localhost/uploads/x.png"),
		MessageType: "image",
	}).Return(domain.Message{ID: 10, Type: domain.ImageMessage}, nil)

	w := f.do(http.MethodPost, "/api/messages/send", &body, form.FormDataContentType())

	req.Equal(http.StatusCreated, w.Code)
}

func TestMessageHandler_ErrorMapping(t *testing.T) {
	req := require.New(t)
	f := newRestFixture(t)

	f.chat.EXPECT().Delete(gomock.Any(), "alice", domain.MessageID(7)).
		Return(errors.Authorization("only the sender can delete message 7"))
	f.chat.EXPECT().MarkMessageRead(gomock.Any(), "alice", domain.MessageID(8)).
		Return(0, errors.NotFound("message 8"))
	f.chat.EXPECT().UnreadCount(gomock.Any(), "alice").
		Return(0, errors.Transient(errors.ErrConnectionClosed))

	tests := []struct {
		method, path string
		status       int
		code         string
	}{
		{http.MethodDelete, "/api/messages/7", http.StatusForbidden, errors.CodeAuthorization},
		{http.MethodDelete, "/api/messages/abc", http.StatusBadRequest, errors.CodeValidation},
		{http.MethodPatch, "/api/messages/8/read", http.StatusNotFound, errors.CodeNotFound},
		{http.MethodGet, "/api/messages/unread/count", http.StatusServiceUnavailable, errors.CodeUnavailable},
	}
	for _, tt := range tests {
		w := f.do(tt.method, tt.path, nil, "")
		body := decodeBody(t, w)
		req.Equal(tt.status, w.Code, tt.path)
		req.Equal(tt.code, body["error"], tt.path)
		// Store failures never leak their cause
		req.NotContains(body["message"], errors.ErrConnectionClosed.Error(), tt.path)
	}
}

func TestMessageHandler_ReadSearchAndCount(t *testing.T) {
	req := require.New(t)
	f := newRestFixture(t)

	f.chat.EXPECT().MarkMessageRead(gomock.Any(), "alice", domain.MessageID(3)).Return(1, nil)
	f.chat.EXPECT().MarkConversationRead(gomock.Any(), "alice", "bob").Return(4, nil)
	f.chat.EXPECT().Search(gomock.Any(), chat.SearchQuery{ViewerID: "alice", Text: "lunch", CounterpartID: "bob"}).
		Return(domain.SearchPage{Total: 0, Page: 1, Limit: 50}, nil)
	f.chat.EXPECT().UnreadCount(gomock.Any(), "alice").Return(5, nil)

	w := f.do(http.MethodPatch, "/api/messages/3/read", nil, "")
	req.Equal(http.StatusOK, w.Code)
	req.EqualValues(1, decodeBody(t, w)["data"].(map[string]any)["updated"])

	w = f.do(http.MethodPatch, "/api/messages/conversation/bob/read", nil, "")
	req.Equal(http.StatusOK, w.Code)
	req.EqualValues(4, decodeBody(t, w)["data"].(map[string]any)["updated"])

	w = f.do(http.MethodGet, "/api/messages/search?q=lunch&user_id=bob", nil, "")
	req.Equal(http.StatusOK, w.Code)
	req.Empty(decodeBody(t, w)["data"].(map[string]any)["items"])

	w = f.do(http.MethodGet, "/api/messages/unread/count", nil, "")
	req.Equal(http.StatusOK, w.Code)
	req.EqualValues(5, decodeBody(t, w)["data"].(map[string]any)["count"])
}

func TestEngine_Health(t *testing.T) {
	req := require.New(t)
	f := newRestFixture(t)

	w := f.do(http.MethodGet, "/health", nil, "")

	req.Equal(http.StatusOK, w.Code)
	req.True(strings.Contains(w.Body.String(), "ok"))
}
