//go:generate go run go.uber.org/mock/mockgen -source=repositories.go -destination=../mocks/mock_repositories.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"context"
	"time"
)

// IChatRepository stores chats and answers membership queries.
type IChatRepository interface {
	CreateChat(ctx context.Context, starterUserID string, partners []string) (domain.Chat, error)
	GetChat(ctx context.Context, chatID string) (domain.Chat, error)
	// FindMemberChat looks a chat up by id, restricted to chats where userID is a member.
	// An unknown chat and a chat the user does not belong to both yield found == false.
	FindMemberChat(ctx context.Context, chatID, userID string) (chat domain.Chat, found bool, err error)
	FindByMember(ctx context.Context, userID string) ([]domain.Chat, error)
	IncrementMessage(ctx context.Context, chatID, messageID string, activityTime time.Time) error
	// RepairCounters replaces the counters of a chat only while it still holds expected.
	// applied is false when the chat moved on since expected was read.
	RepairCounters(ctx context.Context, chatID string, expected, repaired domain.Counters) (applied bool, err error)
	ListChatIDs(ctx context.Context) ([]string, error)
}

// IMessageRepository stores immutable chat messages.
type IMessageRepository interface {
	AppendMessage(ctx context.Context, chatID, authorUserID, body string, createdAt time.Time) (domain.Message, error)
	GetMessage(ctx context.Context, messageID string) (domain.Message, error)
	// GetMessages returns the messages found among messageIDs, unknown ids are skipped.
	GetMessages(ctx context.Context, messageIDs []string) ([]domain.Message, error)
	// FindByChat returns every message of a chat, newest first.
	FindByChat(ctx context.Context, chatID string) ([]domain.Message, error)
}

// ITransactor runs fn so that every repository write made with the given
// context is committed together or not at all.
type ITransactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
