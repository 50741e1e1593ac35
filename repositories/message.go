package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type MessageRepository struct {
	store
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, maxRetries int) *MessageRepository {
	return &MessageRepository{store: newStore(db, maxRetries), log: log}
}

// AppendMessage trims and persists a message. The record and its timeline
// entry are written in the same transaction.
func (m *MessageRepository) AppendMessage(ctx context.Context, chatID, authorUserID, body string, createdAt time.Time) (domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.Message{}, errors.NewValidationError("message", errors.KindRequired)
	}
	message := domain.Message{
		ID:           NewID(),
		ChatID:       chatID,
		AuthorUserID: authorUserID,
		Body:         body,
		CreatedAt:    createdAt.UTC(),
	}
	value, err := encodeMessage(message)
	if err != nil {
		return domain.Message{}, storeErr("encode message", err)
	}
	err = m.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(message.ID), value); err != nil {
			return err
		}
		return txn.Set(chatMessageKey(chatID, message.CreatedAt, message.ID), nil)
	})
	if err != nil {
		return domain.Message{}, storeErr("append message", err)
	}
	return message, nil
}

func (m *MessageRepository) GetMessage(ctx context.Context, messageID string) (domain.Message, error) {
	var message domain.Message
	err := m.view(ctx, func(txn *badger.Txn) error {
		var err error
		message, err = getMessage(txn, messageID)
		return err
	})
	if err != nil {
		return domain.Message{}, storeErr("get message", err)
	}
	return message, nil
}

func (m *MessageRepository) GetMessages(ctx context.Context, messageIDs []string) ([]domain.Message, error) {
	messages := make([]domain.Message, 0, len(messageIDs))
	err := m.view(ctx, func(txn *badger.Txn) error {
		for _, id := range messageIDs {
			message, err := getMessage(txn, id)
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("get messages", err)
	}
	return messages, nil
}

// FindByChat walks the chat timeline backwards from the most recent entry.
func (m *MessageRepository) FindByChat(ctx context.Context, chatID string) ([]domain.Message, error) {
	messages := []domain.Message{}
	err := m.view(ctx, func(txn *badger.Txn) error {
		prefix := []byte(chatMessagePrefixKey(chatID))
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Reverse = true
		it := txn.NewIterator(options)
		var ids []string
		// Position after the newest possible key, then walk back
		for it.Seek(append(prefix, []byte("9999999999999999999")...)); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, messageIDFromTimelineKey(it.Item().Key()))
		}
		it.Close()

		for _, id := range ids {
			message, err := getMessage(txn, id)
			if errors.Is(err, errors.ErrNotFound) {
				m.log.Warn("Timeline references a missing message", "chat_id", chatID, "message_id", id)
				continue
			}
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("find messages by chat", err)
	}
	// Same timestamp entries are ordered by id ascending in the index
	domain.SortNewestFirst(messages)
	return messages, nil
}

func getMessage(txn *badger.Txn, messageID string) (domain.Message, error) {
	item, err := txn.Get(messageKey(messageID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	var message domain.Message
	err = item.Value(func(value []byte) error {
		message, err = DecodeMessage(value)
		return err
	})
	return message, err
}
