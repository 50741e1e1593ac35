// Package event defines what travels on the relay: the client envelope and
// the deliveries routed between relay instances.
package event

import "encoding/json"

// Inbound events, sent by clients.
const (
	ChatMounted       = "chat mounted"
	JoinChannel       = "join channel"
	LeaveChannel      = "leave channel"
	NewMessage        = "new message"
	NewChannel        = "new channel"
	Typing            = "typing"
	StopTyping        = "stop typing"
	NewPrivateChannel = "new private channel"
	CreateChat        = "create chat"
	LatestChats       = "latest chats"
)

// Outbound events, sent to clients.
const (
	ReceiveSocket         = "receive socket"
	NewBroadcastMessage   = "new bc message"
	TypingBroadcast       = "typing bc"
	StopTypingBroadcast   = "stop typing bc"
	ReceivePrivateChannel = "receive private channel"
	ChatCreated           = "chat created"
	Error                 = "error"
)

// Event is the JSON envelope exchanged with clients.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// New builds an event whose data is the JSON encoding of data.
func New(name string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Data: raw}, nil
}

// Delivery routes an event to sessions, possibly on other relay instances.
// Target sends to a single session. Otherwise the event goes to the members
// of Channel, or to every session when Channel is empty, except the Except session.
type Delivery struct {
	Channel string `json:"channel,omitempty"`
	Target  string `json:"target,omitempty"`
	Except  string `json:"except,omitempty"`
	Event   Event  `json:"event"`
}

type NewMessagePayload struct {
	Message string `json:"message"`
	ChatID  string `json:"chatId"`
	Channel string `json:"channel"`
	Token   string `json:"token"`
}

// BroadcastMessage is what channel members receive for a stored message.
type BroadcastMessage struct {
	ID           string `json:"id"`
	ChatID       string `json:"chatId"`
	Channel      string `json:"channel"`
	AuthorUserID string `json:"authorUserId"`
	Message      string `json:"message"`
	CreatedAt    int64  `json:"createdAt"`
}

type TypingPayload struct {
	Channel string `json:"channel"`
	User    any    `json:"user"`
}

type PrivateChannelPayload struct {
	SocketID string `json:"socketId"`
	Channel  any    `json:"channel"`
}

type CreateChatPayload struct {
	Token    string `json:"token"`
	Partners any    `json:"partners"`
}

type LatestChatsPayload struct {
	Token string `json:"token"`
	Limit any    `json:"limit"`
}

type ErrorPayload struct {
	Event   string `json:"event"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Kind    string `json:"kind,omitempty"`
}
