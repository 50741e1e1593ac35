package relay

import (
	"chat-relay/domain/event"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SessionConfig bounds the resources of one WebSocket connection.
type SessionConfig struct {
	SendBufferSize int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// Session is a connected WebSocket client.
// Outbound events are queued by Consume and written by a single writer goroutine.
type Session struct {
	id     string
	conn   *websocket.Conn
	send   chan event.Event
	done   chan struct{}
	config SessionConfig
	log    *slog.Logger
}

func newSession(conn *websocket.Conn, config SessionConfig, log *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		conn:   conn,
		send:   make(chan event.Event, config.SendBufferSize),
		done:   make(chan struct{}),
		config: config,
		log:    log.With("session_id", id),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Consume is called by the fanout and the hub.
// A full buffer drops the event rather than stalling other sessions.
func (s *Session) Consume(ctx context.Context, e event.Event) error {
	select {
	case s.send <- e:
		return nil
	case <-s.done:
		return websocket.ErrCloseSent
	case <-ctx.Done():
		return ctx.Err()
	default:
		s.log.Warn("Send buffer full, dropping event", "event", e.Name)
		return nil
	}
}

// readPump decodes inbound envelopes and hands them to handle until the connection fails.
func (s *Session) readPump(ctx context.Context, handle func(ctx context.Context, e event.Event)) {
	s.conn.SetReadLimit(s.config.MaxMessageSize)
	pongWait := 2 * s.config.PingInterval
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Connection closed", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var e event.Event
		if err := json.Unmarshal(data, &e); err != nil || e.Name == "" {
			s.log.Debug("Ignoring malformed envelope", "error", err)
			continue
		}
		handle(ctx, e)
	}
}

// writePump writes queued events and keeps the connection alive with pings.
func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(s.config.WriteTimeout))
			return
		case <-s.done:
			return
		case e := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := s.conn.WriteJSON(e); err != nil {
				s.log.Debug("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debug("Ping failed", "error", err)
				return
			}
		}
	}
}
