package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type ChatRepository struct {
	store
	log   *slog.Logger
	clock func() time.Time
}

func NewChatRepository(db *badger.DB, log *slog.Logger, maxRetries int) *ChatRepository {
	return &ChatRepository{store: newStore(db, maxRetries), log: log, clock: Now}
}

// Now is the clock used for creation timestamps, in UTC with millisecond precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// CreateChat persists a new empty chat along with one membership index entry per member.
func (r *ChatRepository) CreateChat(ctx context.Context, starterUserID string, partners []string) (domain.Chat, error) {
	if starterUserID == "" {
		return domain.Chat{}, errors.NewValidationError("userId", errors.KindNotValid)
	}
	chat := domain.NewChat(NewID(), starterUserID, partners, r.clock())
	value, err := encodeChat(chat)
	if err != nil {
		return domain.Chat{}, storeErr("encode chat", err)
	}
	err = r.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(chatKey(chat.ID), value); err != nil {
			return err
		}
		for _, member := range chat.Members() {
			if err := txn.Set(memberKey(member, chat.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Chat{}, storeErr("create chat", err)
	}
	r.log.Debug("Chat created", "chat_id", chat.ID, "members", len(chat.Partners)+1)
	return chat, nil
}

func (r *ChatRepository) GetChat(ctx context.Context, chatID string) (domain.Chat, error) {
	var chat domain.Chat
	err := r.view(ctx, func(txn *badger.Txn) error {
		var err error
		chat, err = getChat(txn, chatID)
		return err
	})
	if err != nil {
		return domain.Chat{}, storeErr("get chat", err)
	}
	return chat, nil
}

func (r *ChatRepository) FindMemberChat(ctx context.Context, chatID, userID string) (domain.Chat, bool, error) {
	chat, err := r.GetChat(ctx, chatID)
	if errors.Is(err, errors.ErrNotFound) {
		return domain.Chat{}, false, nil
	}
	if err != nil {
		return domain.Chat{}, false, err
	}
	if !chat.IsMember(userID) {
		return domain.Chat{}, false, nil
	}
	return chat, true, nil
}

// FindByMember scans the membership index of userID and loads every chat it references.
func (r *ChatRepository) FindByMember(ctx context.Context, userID string) ([]domain.Chat, error) {
	chats := []domain.Chat{}
	err := r.view(ctx, func(txn *badger.Txn) error {
		prefixStr := memberPrefixKey(userID)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		var chatIDs []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			chatIDs = append(chatIDs, string(it.Item().Key()[len(prefixStr):]))
		}
		it.Close()

		for _, chatID := range chatIDs {
			chat, err := getChat(txn, chatID)
			if errors.Is(err, errors.ErrNotFound) {
				r.log.Warn("Membership index references a missing chat", "chat_id", chatID, "user_id", userID)
				continue
			}
			if err != nil {
				return err
			}
			chats = append(chats, chat)
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("find chats by member", err)
	}
	return chats, nil
}

// IncrementMessage reads and rewrites the chat inside one transaction.
// Two concurrent increments on the same chat conflict on commit and the
// loser is replayed, so no increment is ever lost.
func (r *ChatRepository) IncrementMessage(ctx context.Context, chatID, messageID string, activityTime time.Time) error {
	err := r.update(ctx, func(txn *badger.Txn) error {
		chat, err := getChat(txn, chatID)
		if err != nil {
			return err
		}
		chat.RecordMessage(messageID, activityTime)
		return putChat(txn, chat)
	})
	return storeErr("increment message", err)
}

func (r *ChatRepository) RepairCounters(ctx context.Context, chatID string, expected, repaired domain.Counters) (bool, error) {
	applied := false
	err := r.update(ctx, func(txn *badger.Txn) error {
		applied = false
		chat, err := getChat(txn, chatID)
		if err != nil {
			return err
		}
		if !chat.Counters().Equal(expected) {
			return nil
		}
		applied = true
		return putChat(txn, chat.WithCounters(repaired))
	})
	if err != nil {
		return false, storeErr("repair counters", err)
	}
	return applied, nil
}

func (r *ChatRepository) ListChatIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.view(ctx, func(txn *badger.Txn) error {
		prefix := []byte(chatPrefix)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(chatPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("list chats", err)
	}
	return ids, nil
}

func getChat(txn *badger.Txn, chatID string) (domain.Chat, error) {
	item, err := txn.Get(chatKey(chatID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Chat{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.Chat{}, err
	}
	var chat domain.Chat
	err = item.Value(func(value []byte) error {
		chat, err = DecodeChat(value)
		return err
	})
	return chat, err
}

func putChat(txn *badger.Txn, chat domain.Chat) error {
	value, err := encodeChat(chat)
	if err != nil {
		return err
	}
	return txn.Set(chatKey(chat.ID), value)
}
