package relay

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/services"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// Server exposes the hub over WebSocket and the conversation service over HTTP.
type Server struct {
	hub      *Hub
	service  services.IConversationService
	verifier *auth.TokenVerifier
	upgrader websocket.Upgrader
	session  SessionConfig
	log      *slog.Logger
}

func NewServer(hub *Hub, service services.IConversationService, verifier *auth.TokenVerifier, session SessionConfig, allowedOrigins []string, log *slog.Logger) *Server {
	return &Server{
		hub:      hub,
		service:  service,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		session: session,
		log:     log,
	}
}

// checkOrigin accepts every origin when none is configured.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(allowed, origin)
	}
}

// Router wires HTTP routes to the hub and the conversation service.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api/chats", func(api chi.Router) {
		api.Use(auth.Middleware(s.verifier))
		api.Post("/", s.handleCreateChat)
		api.Get("/latest", s.handleLatestChats)
		api.Post("/{chatID}/messages", s.handlePostMessage)
	})
	return r
}

// handleWebSocket upgrades the connection and serves the session until it closes
// or the request context is canceled.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", "error", err)
		return
	}
	session := newSession(conn, s.session, s.log)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.hub.Connect(session.ID(), session)
	s.log.Debug("Session connected", "session_id", session.ID())
	defer func() {
		s.hub.Disconnect(session.ID())
		close(session.done)
		_ = conn.Close()
		s.log.Debug("Session disconnected", "session_id", session.ID())
	}()

	go func() {
		session.writePump(ctx)
		// Unblocks the reader when the writer gave up
		_ = conn.Close()
	}()
	session.readPump(ctx, func(ctx context.Context, e event.Event) {
		s.hub.Handle(ctx, session.ID(), e)
	})
}

type createChatRequest struct {
	Partners any `json:"partners"`
}

type postMessageRequest struct {
	Message string `json:"message"`
	Channel string `json:"channel"`
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	var body createChatRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	partners, err := services.ParsePartners(body.Partners)
	if err != nil {
		s.writeError(w, err)
		return
	}
	chat, err := s.service.CreateChat(r.Context(), userID, partners)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChatView(chat))
}

// handlePostMessage stores a message and, when a channel is given, broadcasts
// it to the channel like the new message event does.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	var body postMessageRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	message, err := s.service.PostMessage(r.Context(), chi.URLParam(r, "chatID"), userID, body.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if body.Channel != "" {
		s.hub.publishEvent(r.Context(), event.Delivery{Channel: body.Channel},
			event.NewBroadcastMessage, toBroadcastMessage(message, body.Channel))
	}
	writeJSON(w, http.StatusCreated, toMessageView(message))
}

func (s *Server) handleLatestChats(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	limit, err := services.ParseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	messages, err := s.service.GetLatestChatMessages(r.Context(), userID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(messages, func(m domain.Message, _ int) MessageView {
		return toMessageView(m)
	}))
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(v); err != nil {
		return errors.NewValidationError("body", errors.KindNotValid)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// writeError maps validation failures to 400, permission failures to 403 and the rest to 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var validation errors.ValidationError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validation.Error(), Field: validation.Field, Kind: validation.Kind})
	case errors.Is(err, errors.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	default:
		s.log.Error("Request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: strings.ToLower(http.StatusText(http.StatusInternalServerError))})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
