package repositories

import (
	"chat-relay/errors"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// DefaultMaxRetries bounds how many times a write is replayed after a badger.ErrConflict.
const DefaultMaxRetries = 10

// Keys layout:
//
//	chat:{chat_id}                                 -> chat record
//	member:{len(user_id)}:{user_id}:{chat_id}      -> empty, membership index
//	msg:{message_id}                               -> message record
//	chatmsg:{chat_id}:{created_at_padded}:{msg_id} -> empty, per chat timeline
//
// The user id is length prefixed so that an id containing ':' can never
// collide with the prefix of another user.
const (
	chatPrefix        = "chat:"
	memberPrefix      = "member:"
	messagePrefix     = "msg:"
	chatMessagePrefix = "chatmsg:"
)

func chatKey(chatID string) []byte {
	return []byte(chatPrefix + chatID)
}

func memberPrefixKey(userID string) string {
	return fmt.Sprintf("%s%d:%s:", memberPrefix, len(userID), userID)
}

func memberKey(userID, chatID string) []byte {
	return []byte(memberPrefixKey(userID) + chatID)
}

func messageKey(messageID string) []byte {
	return []byte(messagePrefix + messageID)
}

func chatMessagePrefixKey(chatID string) string {
	return chatMessagePrefix + chatID + ":"
}

// chatMessageKey uses a 19-digit zero padded timestamp so that the
// lexicographical order of keys is the chronological order of messages.
func chatMessageKey(chatID string, createdAt time.Time, messageID string) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", chatMessagePrefixKey(chatID), createdAt.UnixNano(), messageID))
}

func messageIDFromTimelineKey(key []byte) string {
	k := string(key)
	return k[strings.LastIndex(k, ":")+1:]
}

// NewID returns a time ordered identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

type txnKey struct{}

func withTxn(ctx context.Context, txn *badger.Txn) context.Context {
	return context.WithValue(ctx, txnKey{}, txn)
}

func txnFromContext(ctx context.Context) (*badger.Txn, bool) {
	txn, ok := ctx.Value(txnKey{}).(*badger.Txn)
	return txn, ok
}

// store holds what badger repositories share: reads and writes join the
// transaction carried by the context when there is one.
type store struct {
	db         *badger.DB
	maxRetries int
}

func newStore(db *badger.DB, maxRetries int) store {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return store{db: db, maxRetries: maxRetries}
}

func (s store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn, ok := txnFromContext(ctx); ok {
		return fn(txn)
	}
	return s.db.View(fn)
}

func (s store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn, ok := txnFromContext(ctx); ok {
		return fn(txn)
	}
	return retryOnConflict(ctx, s.maxRetries, func() error {
		return s.db.Update(fn)
	})
}

// retryOnConflict replays fn while its commit is rejected because a concurrent
// transaction wrote a key fn has read.
func retryOnConflict(ctx context.Context, maxRetries int, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return errors.ErrTooManyConflicts
}

// storeErr keeps domain errors as they are and wraps everything else in a StoreError.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var v errors.ValidationError
	if errors.As(err, &v) ||
		errors.Is(err, errors.ErrNotFound) ||
		errors.Is(err, errors.ErrTooManyConflicts) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.NewStoreError(op, err)
}
