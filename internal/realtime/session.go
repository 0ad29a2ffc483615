// Package realtime owns the websocket side of the server: authenticated
// sessions, the connection registry with its workspace rooms, and the Redis
// relay that feeds published events into those rooms.
package realtime

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer is the per-session outbound queue. When it is full the
	// message is dropped for that session: delivery is fire and forget.
	sendBuffer = 256
)

// Conn is the subset of *websocket.Conn the session uses. Tests substitute
// an in-memory implementation.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Session is one authenticated websocket connection. It is created after a
// successful handshake and destroyed on disconnect, forced eviction or by
// the registry sweep.
type Session struct {
	ID          string
	UserID      uuid.UUID
	Workspaces  []uuid.UUID // membership snapshot taken at connect time
	ConnectedAt time.Time

	conn   Conn
	send   chan []byte
	closed atomic.Bool
	done   chan struct{}
}

func NewSession(conn Conn, userID uuid.UUID, workspaces []uuid.UUID) *Session {
	return &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		Workspaces:  workspaces,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
	}
}

// Alive reports whether the underlying transport is still open. The registry
// sweep reaps sessions for which this is false.
func (s *Session) Alive() bool {
	return !s.closed.Load()
}

// Close shuts the transport down. Safe to call more than once.
func (s *Session) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
		s.conn.Close()
	}
}

// Deliver queues a payload for the session without blocking. A slow consumer
// whose buffer is full simply never receives this message.
func (s *Session) Deliver(payload []byte) {
	if s.closed.Load() {
		return
	}
	select {
	case s.send <- payload:
	default:
		slog.Debug("dropping message for slow session", "session", s.ID, "user", s.UserID)
	}
}

// readPump consumes the socket until it fails, keeping the read deadline
// fresh via pongs. The server does not accept mutations over the socket, so
// inbound frames are discarded; the read loop exists to detect disconnects.
func (s *Session) readPump(onClose func()) {
	defer func() {
		s.Close()
		onClose()
	}()
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pushes queued payloads and periodic pings to the socket.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()
	for {
		select {
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
