package ws

import (
	"context"
	"dm-lab/contract"
	"dm-lab/errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Authenticator checks a token issued for the claimed user.
type Authenticator interface {
	Authenticate(tokenString, claimedUserID string) (string, error)
}

// Handler upgrades authenticated requests into sessions.
// Sessions end when ctx ends.
type Handler struct {
	ctx        context.Context
	log        *slog.Logger
	tokens     Authenticator
	router     contract.IRouter
	upgrader   websocket.Upgrader
	bufferSize int
}

func NewHandler(ctx context.Context, log *slog.Logger, tokens Authenticator, router contract.IRouter, origins []string, bufferSize int) *Handler {
	return &Handler{
		ctx:    ctx,
		log:    log,
		tokens: tokens,
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(origins),
		},
		bufferSize: bufferSize,
	}
}

// Serve handles GET /ws?token=...&userId=...
// Identity is checked before the upgrade, a failure never opens a session.
func (h *Handler) Serve(c *gin.Context) {
	userID, err := h.tokens.Authenticate(c.Query("token"), c.Query("userId"))
	if err != nil {
		h.log.Debug("Socket handshake refused", "remote", c.ClientIP(), "error", err)
		c.AbortWithStatusJSON(errors.HTTPStatus(err), gin.H{
			"error":   errors.Code(err),
			"message": errors.Message(err),
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader already replied
		h.log.Warn("Socket upgrade failed", "user", userID, "error", err)
		return
	}

	session := NewSession(h.log, uuid.NewString(), userID, conn, h.router, h.bufferSize)
	session.Run(h.ctx)
}

func checkOrigin(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(origins, "*") {
			return true
		}
		return slices.Contains(origins, origin)
	}
}
