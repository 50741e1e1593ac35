package repositories

import (
	"chat-relay/domain"
	"encoding/json"
	"time"
)

// DiskChat is the persisted representation of a chat in BadgerDB.
// Timestamps are stored as unix nanoseconds.
type DiskChat struct {
	ID            string   `json:"id"`
	StarterUserID string   `json:"starterUserId"`
	Partners      []string `json:"partners"`
	NumMessages   int      `json:"numMessages"`
	LastMessageID string   `json:"lastMessage,omitempty"`
	LastUpdate    int64    `json:"lastUpdate"`
	CreatedAt     int64    `json:"createdAt"`
}

// DiskMessage is the persisted representation of a message in BadgerDB.
type DiskMessage struct {
	ID           string `json:"id"`
	ChatID       string `json:"chat"`
	AuthorUserID string `json:"authorUserId"`
	Body         string `json:"message"`
	CreatedAt    int64  `json:"createdAt"`
}

func encodeChat(chat domain.Chat) ([]byte, error) {
	return json.Marshal(DiskChat{
		ID:            chat.ID,
		StarterUserID: chat.StarterUserID,
		Partners:      chat.Partners,
		NumMessages:   chat.NumMessages,
		LastMessageID: chat.LastMessageID,
		LastUpdate:    chat.LastUpdate.UnixNano(),
		CreatedAt:     chat.CreatedAt.UnixNano(),
	})
}

// DecodeChat turns a stored chat value back into a domain.Chat.
func DecodeChat(value []byte) (domain.Chat, error) {
	var dc DiskChat
	if err := json.Unmarshal(value, &dc); err != nil {
		return domain.Chat{}, err
	}
	partners := dc.Partners
	if partners == nil {
		partners = []string{}
	}
	return domain.Chat{
		ID:            dc.ID,
		StarterUserID: dc.StarterUserID,
		Partners:      partners,
		NumMessages:   dc.NumMessages,
		LastMessageID: dc.LastMessageID,
		LastUpdate:    time.Unix(0, dc.LastUpdate).UTC(),
		CreatedAt:     time.Unix(0, dc.CreatedAt).UTC(),
	}, nil
}

func encodeMessage(message domain.Message) ([]byte, error) {
	return json.Marshal(DiskMessage{
		ID:           message.ID,
		ChatID:       message.ChatID,
		AuthorUserID: message.AuthorUserID,
		Body:         message.Body,
		CreatedAt:    message.CreatedAt.UnixNano(),
	})
}

// DecodeMessage turns a stored message value back into a domain.Message.
func DecodeMessage(value []byte) (domain.Message, error) {
	var dm DiskMessage
	if err := json.Unmarshal(value, &dm); err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:           dm.ID,
		ChatID:       dm.ChatID,
		AuthorUserID: dm.AuthorUserID,
		Body:         dm.Body,
		CreatedAt:    time.Unix(0, dm.CreatedAt).UTC(),
	}, nil
}
