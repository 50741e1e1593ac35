package relay

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/services"
	"context"
	"encoding/json"
	"log/slog"

	"github.com/samber/lo"
)

// Hub interprets the events sent by sessions.
// Only new message, create chat and latest chats touch the conversation
// service, every other event is forwarded as is.
type Hub struct {
	service  services.IConversationService
	verifier *auth.TokenVerifier
	registry contract.IRegistry
	bus      contract.IBus
	log      *slog.Logger
}

func NewHub(service services.IConversationService, verifier *auth.TokenVerifier, registry contract.IRegistry, bus contract.IBus, log *slog.Logger) *Hub {
	return &Hub{service: service, verifier: verifier, registry: registry, bus: bus, log: log}
}

func (h *Hub) Connect(sessionID string, sink contract.EventSink) {
	h.registry.Register(sessionID, sink)
}

func (h *Hub) Disconnect(sessionID string) {
	h.registry.Unregister(sessionID)
}

// Handle dispatches one inbound event of sessionID.
func (h *Hub) Handle(ctx context.Context, sessionID string, e event.Event) {
	switch e.Name {
	case event.ChatMounted:
		h.reply(ctx, sessionID, event.ReceiveSocket, sessionID)
	case event.JoinChannel:
		if channel, ok := h.channel(ctx, sessionID, e); ok {
			h.registry.Join(sessionID, channel)
		}
	case event.LeaveChannel:
		if channel, ok := h.channel(ctx, sessionID, e); ok {
			h.registry.Leave(sessionID, channel)
		}
	case event.NewMessage:
		h.newMessage(ctx, sessionID, e)
	case event.NewChannel:
		h.publish(ctx, event.Delivery{Except: sessionID, Event: event.Event{Name: event.NewChannel, Data: e.Data}})
	case event.Typing:
		h.typing(ctx, sessionID, e, event.TypingBroadcast)
	case event.StopTyping:
		h.typing(ctx, sessionID, e, event.StopTypingBroadcast)
	case event.NewPrivateChannel:
		h.privateChannel(ctx, sessionID, e)
	case event.CreateChat:
		h.createChat(ctx, sessionID, e)
	case event.LatestChats:
		h.latestChats(ctx, sessionID, e)
	default:
		h.log.Debug("Ignoring unknown event", "event", e.Name, "session_id", sessionID)
	}
}

func (h *Hub) newMessage(ctx context.Context, sessionID string, e event.Event) {
	var payload event.NewMessagePayload
	if err := json.Unmarshal(e.Data, &payload); err != nil {
		h.fail(ctx, sessionID, e.Name, errors.NewValidationError("data", errors.KindNotValid))
		return
	}
	userID, err := h.verifier.Verify(payload.Token)
	if err != nil {
		h.log.Debug("Token validation failed", "session_id", sessionID)
		h.fail(ctx, sessionID, e.Name, err)
		return
	}
	message, err := h.service.PostMessage(ctx, payload.ChatID, userID, payload.Message)
	if err != nil {
		h.fail(ctx, sessionID, e.Name, err)
		return
	}
	if payload.Channel == "" {
		return
	}
	h.publishEvent(ctx, event.Delivery{Channel: payload.Channel, Except: sessionID},
		event.NewBroadcastMessage, toBroadcastMessage(message, payload.Channel))
}

func (h *Hub) typing(ctx context.Context, sessionID string, e event.Event, broadcast string) {
	var payload event.TypingPayload
	if err := json.Unmarshal(e.Data, &payload); err != nil || payload.Channel == "" {
		h.fail(ctx, sessionID, e.Name, errors.NewValidationError("channel", errors.KindRequired))
		return
	}
	h.publishEvent(ctx, event.Delivery{Channel: payload.Channel, Except: sessionID}, broadcast, payload.User)
}

func (h *Hub) privateChannel(ctx context.Context, sessionID string, e event.Event) {
	var payload event.PrivateChannelPayload
	if err := json.Unmarshal(e.Data, &payload); err != nil || payload.SocketID == "" {
		h.fail(ctx, sessionID, e.Name, errors.NewValidationError("socketId", errors.KindRequired))
		return
	}
	h.publishEvent(ctx, event.Delivery{Target: payload.SocketID}, event.ReceivePrivateChannel, payload.Channel)
}

func (h *Hub) createChat(ctx context.Context, sessionID string, e event.Event) {
	var payload event.CreateChatPayload
	if err := json.Unmarshal(e.Data, &payload); err != nil {
		h.fail(ctx, sessionID, e.Name, errors.NewValidationError("data", errors.KindNotValid))
		return
	}
	userID, err := h.verifier.Verify(payload.Token)
	if err != nil {
		h.fail(ctx, sessionID, e.Name, err)
		return
	}
	partners, err := services.ParsePartners(payload.Partners)
	if err != nil {
		h.fail(ctx, sessionID, e.Name, err)
		return
	}
	chat, err := h.service.CreateChat(ctx, userID, partners)
	if err != nil {
		h.fail(ctx, sessionID, e.Name, err)
		return
	}
	h.reply(ctx, sessionID, event.ChatCreated, toChatView(chat))
}

func (h *Hub) latestChats(ctx context.Context, sessionID string, e event.Event) {
	var payload event.LatestChatsPayload
	if err := json.Unmarshal(e.Data, &payload); err != nil {
		h.fail(ctx, sessionID, e.Name, errors.NewValidationError("data", errors.KindNotValid))
		return
	}
	userID, err := h.verifier.Verify(payload.Token)
	if err != nil {
		h.fail(ctx, sessionID, e.Name, err)
		return
	}
	limit, err := services.ParseLimit(payload.Limit)
	if err != nil {
		h.fail(ctx, sessionID, e.Name, err)
		return
	}
	messages, err := h.service.GetLatestChatMessages(ctx, userID, limit)
	if err != nil {
		h.fail(ctx, sessionID, e.Name, err)
		return
	}
	h.reply(ctx, sessionID, event.LatestChats, lo.Map(messages, func(m domain.Message, _ int) MessageView {
		return toMessageView(m)
	}))
}

// channel decodes the channel name carried by join and leave events.
func (h *Hub) channel(ctx context.Context, sessionID string, e event.Event) (string, bool) {
	var channel string
	if err := json.Unmarshal(e.Data, &channel); err != nil || channel == "" {
		h.fail(ctx, sessionID, e.Name, errors.NewValidationError("channel", errors.KindRequired))
		return "", false
	}
	return channel, true
}

// reply sends an event to sessionID only, it never leaves this instance.
func (h *Hub) reply(ctx context.Context, sessionID, name string, data any) {
	sink, ok := h.registry.Sink(sessionID)
	if !ok {
		return
	}
	e, err := event.New(name, data)
	if err != nil {
		h.log.Error("Failed to encode reply", "event", name, "error", err)
		return
	}
	if err := sink.Consume(ctx, e); err != nil {
		h.log.Debug("Reply not delivered", "event", name, "session_id", sessionID, "error", err)
	}
}

func (h *Hub) publishEvent(ctx context.Context, d event.Delivery, name string, data any) {
	e, err := event.New(name, data)
	if err != nil {
		h.log.Error("Failed to encode event", "event", name, "error", err)
		return
	}
	d.Event = e
	h.publish(ctx, d)
}

func (h *Hub) publish(ctx context.Context, d event.Delivery) {
	if err := h.bus.Publish(ctx, d); err != nil {
		h.log.Warn("Failed to publish event", "event", d.Event.Name, "error", err)
	}
}

// fail reports err to the session with the error event.
func (h *Hub) fail(ctx context.Context, sessionID, inbound string, err error) {
	payload := event.ErrorPayload{Event: inbound}
	var validation errors.ValidationError
	switch {
	case errors.As(err, &validation):
		payload.Message = validation.Error()
		payload.Field = validation.Field
		payload.Kind = validation.Kind
	case errors.Is(err, errors.ErrPermissionDenied), errors.Is(err, errors.ErrInvalidToken):
		payload.Message = err.Error()
	default:
		h.log.Error("Event failed", "event", inbound, "session_id", sessionID, "error", err)
		payload.Message = "internal error"
	}
	h.reply(ctx, sessionID, event.Error, payload)
}
