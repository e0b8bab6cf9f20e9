// Package ws serves the live socket surface.
package ws

import (
	"context"
	"dm-lab/contract"
	"dm-lab/domain/event"
	"dm-lab/errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	writeWait      = 10 * time.Second    // time allowed to write a frame to the peer
	pongWait       = 60 * time.Second    // time allowed to read the next pong from the peer
	pingInterval   = (pongWait * 9) / 10 // send pings to peer with this period
	maxMessageSize = int64(64 * 1024)    // max inbound frame size
)

// Session is one live connection. It is the EventSink the fanout writes to:
// frames are queued on egress and written by a single goroutine.
type Session struct {
	ID     string
	UserID string

	log       *slog.Logger
	conn      *websocket.Conn
	router    contract.IRouter
	egress    chan event.Outbound
	done      chan struct{}
	closeOnce sync.Once
}

func NewSession(log *slog.Logger, id, userID string, conn *websocket.Conn, router contract.IRouter, bufferSize int) *Session {
	return &Session{
		ID:     id,
		UserID: userID,
		log:    log.With("conn", id, "user", userID),
		conn:   conn,
		router: router,
		egress: make(chan event.Outbound, bufferSize),
		done:   make(chan struct{}),
	}
}

// Consume queues a frame without waiting. A connection whose buffer is
// full misses the frame so it never holds the fanout.
func (s *Session) Consume(_ context.Context, e event.Outbound) error {
	select {
	case <-s.done:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case s.egress <- e:
		return nil
	default:
		return errors.ErrConnectionBuffer
	}
}

// Run serves the connection until the peer leaves or ctx ends.
// Presence and typing state are released before Run returns.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.router.Connect(ctx, s.UserID, s.ID, s)
	defer s.router.Disconnect(context.WithoutCancel(ctx), s.UserID, s.ID)

	go s.writePump(ctx)
	s.readPump(ctx)
	s.close()
}

func (s *Session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("Unexpected close", "error", err)
			} else {
				s.log.Debug("Connection closed", "error", err)
			}
			return
		}
		s.router.Handle(ctx, s.UserID, s.ID, s, data)
	}
}

func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case e := <-s.egress:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(e); err != nil {
				s.log.Debug("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-s.done:
			return
		}
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
