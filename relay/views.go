package relay

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
)

// ChatView is the JSON form of a chat. Times are unix milliseconds.
type ChatView struct {
	ID            string   `json:"id"`
	StarterUserID string   `json:"starterUserId"`
	Partners      []string `json:"partners"`
	NumMessages   int      `json:"numMessages"`
	LastMessageID string   `json:"lastMessage,omitempty"`
	LastUpdate    int64    `json:"lastUpdate"`
}

type MessageView struct {
	ID           string `json:"id"`
	ChatID       string `json:"chatId"`
	AuthorUserID string `json:"authorUserId"`
	Message      string `json:"message"`
	CreatedAt    int64  `json:"createdAt"`
}

func toChatView(c domain.Chat) ChatView {
	return ChatView{
		ID:            c.ID,
		StarterUserID: c.StarterUserID,
		Partners:      c.Partners,
		NumMessages:   c.NumMessages,
		LastMessageID: c.LastMessageID,
		LastUpdate:    c.LastUpdate.UnixMilli(),
	}
}

func toMessageView(m domain.Message) MessageView {
	return MessageView{
		ID:           m.ID,
		ChatID:       m.ChatID,
		AuthorUserID: m.AuthorUserID,
		Message:      m.Body,
		CreatedAt:    m.CreatedAt.UnixMilli(),
	}
}

func toBroadcastMessage(m domain.Message, channel string) event.BroadcastMessage {
	return event.BroadcastMessage{
		ID:           m.ID,
		ChatID:       m.ChatID,
		Channel:      channel,
		AuthorUserID: m.AuthorUserID,
		Message:      m.Body,
		CreatedAt:    m.CreatedAt.UnixMilli(),
	}
}
