package services

import (
	"chat-relay/domain"
	"context"
	"time"
)

// DefaultSettleWindow leaves recent messages alone: without a transaction a post
// may have stored its message and not yet counted it.
const DefaultSettleWindow = 30 * time.Second

// Consistency compares the counters cached on a chat with what its messages say.
type Consistency struct {
	ChatID              string
	StoredCount         int
	ActualCount         int
	StoredLastMessageID string
	ActualLastMessageID string
	StoredLastUpdate    time.Time
	ActualLastUpdate    time.Time
}

// Drifted reports whether the chat counters disagree with its messages.
func (c Consistency) Drifted() bool {
	return !c.stored().Equal(c.actual())
}

func (c Consistency) stored() domain.Counters {
	return domain.Counters{NumMessages: c.StoredCount, LastMessageID: c.StoredLastMessageID, LastUpdate: c.StoredLastUpdate}
}

func (c Consistency) actual() domain.Counters {
	return domain.Counters{NumMessages: c.ActualCount, LastMessageID: c.ActualLastMessageID, LastUpdate: c.ActualLastUpdate}
}

// CheckConsistency recomputes the chat counters from the message store,
// which is the source of truth, without writing anything.
func (s *ConversationService) CheckConsistency(ctx context.Context, chatID string) (Consistency, error) {
	chat, err := s.chatRepository.GetChat(ctx, chatID)
	if err != nil {
		return Consistency{}, err
	}
	return s.consistency(ctx, chat)
}

func (s *ConversationService) consistency(ctx context.Context, chat domain.Chat) (Consistency, error) {
	messages, err := s.messageRepository.FindByChat(ctx, chat.ID)
	if err != nil {
		return Consistency{}, err
	}
	c := Consistency{
		ChatID:              chat.ID,
		StoredCount:         chat.NumMessages,
		ActualCount:         len(messages),
		StoredLastMessageID: chat.LastMessageID,
		StoredLastUpdate:    chat.LastUpdate,
		ActualLastUpdate:    chat.CreatedAt,
	}
	if len(messages) > 0 {
		c.ActualLastMessageID = messages[0].ID
		c.ActualLastUpdate = messages[0].CreatedAt
	}
	return c, nil
}

// Reconcile rewrites the counters of a drifted chat.
// A chat whose newest message is younger than the settle window is left for a
// later pass. The repair only applies while the chat still holds the counters
// that were checked, so an increment landing in between is never overwritten.
func (s *ConversationService) Reconcile(ctx context.Context, chatID string) (domain.Chat, bool, error) {
	var (
		chat     domain.Chat
		repaired bool
	)
	err := s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		repaired = false
		chat, err = s.chatRepository.GetChat(ctx, chatID)
		if err != nil {
			return err
		}
		c, err := s.consistency(ctx, chat)
		if err != nil {
			return err
		}
		if !c.Drifted() {
			return nil
		}
		if c.ActualCount > 0 && c.ActualLastUpdate.After(s.clock().Add(-s.settleWindow)) {
			s.log.Debug("Drifted chat still settling", "chat_id", chatID, "newest_message_at", c.ActualLastUpdate)
			return nil
		}
		applied, err := s.chatRepository.RepairCounters(ctx, chatID, c.stored(), c.actual())
		if err != nil || !applied {
			return err
		}
		chat = chat.WithCounters(c.actual())
		repaired = true
		return nil
	})
	if err != nil {
		return domain.Chat{}, false, err
	}
	if repaired {
		s.log.Warn("Chat counters repaired", "chat_id", chatID, "num_messages", chat.NumMessages, "last_message_id", chat.LastMessageID)
	}
	return chat, repaired, nil
}
