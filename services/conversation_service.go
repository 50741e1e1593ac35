package services

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/lo"
)

type IConversationService interface {
	CreateChat(ctx context.Context, starterUserID string, partners []string) (domain.Chat, error)
	PostMessage(ctx context.Context, chatID, userID, body string) (domain.Message, error)
	GetLatestChatMessages(ctx context.Context, userID string, limit int) ([]domain.Message, error)
	CheckConsistency(ctx context.Context, chatID string) (Consistency, error)
	Reconcile(ctx context.Context, chatID string) (domain.Chat, bool, error)
}

// ConversationService holds no state of its own, every instance can share the same stores.
type ConversationService struct {
	chatRepository    repositories.IChatRepository
	messageRepository repositories.IMessageRepository
	transactor        repositories.ITransactor
	log               *slog.Logger
	clock             func() time.Time
	settleWindow      time.Duration
}

func NewConversationService(
	chats repositories.IChatRepository,
	messages repositories.IMessageRepository,
	transactor repositories.ITransactor,
	log *slog.Logger,
) *ConversationService {
	return &ConversationService{
		chatRepository:    chats,
		messageRepository: messages,
		transactor:        transactor,
		log:               log,
		clock:             repositories.Now,
		settleWindow:      DefaultSettleWindow,
	}
}

// WithSettleWindow sets how old the newest message of a chat must be before Reconcile repairs it.
func (s *ConversationService) WithSettleWindow(window time.Duration) *ConversationService {
	s.settleWindow = window
	return s
}

func (s *ConversationService) CreateChat(ctx context.Context, starterUserID string, partners []string) (domain.Chat, error) {
	if err := validateStruct(createChatRequest{StarterUserID: starterUserID, Partners: partners}); err != nil {
		return domain.Chat{}, err
	}
	return s.chatRepository.CreateChat(ctx, starterUserID, domain.NormalizePartners(starterUserID, partners))
}

// PostMessage appends body to the chat on behalf of userID.
// The chat lookup is restricted to chats userID belongs to: an unknown chat and
// a chat of other users both end in ErrPermissionDenied.
func (s *ConversationService) PostMessage(ctx context.Context, chatID, userID, body string) (domain.Message, error) {
	if err := validateStruct(postMessageRequest{ChatID: chatID, UserID: userID}); err != nil {
		if errors.IsValidation(err, "userId", errors.KindNotValid) {
			return domain.Message{}, err
		}
		return domain.Message{}, errors.ErrPermissionDenied
	}

	_, found, err := s.chatRepository.FindMemberChat(ctx, chatID, userID)
	if err != nil {
		return domain.Message{}, err
	}
	if !found {
		return domain.Message{}, errors.ErrPermissionDenied
	}

	var message domain.Message
	err = s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		message, err = s.messageRepository.AppendMessage(ctx, chatID, userID, body, s.clock())
		if err != nil {
			return err
		}
		// The pointer must never reference a message that was not persisted
		return s.chatRepository.IncrementMessage(ctx, chatID, message.ID, message.CreatedAt)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// GetLatestChatMessages returns the newest message of every chat userID
// belongs to, newest first and at most limit of them.
// Chats without any message are left out.
func (s *ConversationService) GetLatestChatMessages(ctx context.Context, userID string, limit int) ([]domain.Message, error) {
	if err := validateStruct(latestChatsRequest{UserID: userID, Limit: limit}); err != nil {
		return nil, err
	}

	chats, err := s.chatRepository.FindByMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := lo.Filter(chats, func(c domain.Chat, _ int) bool {
		return c.HasMessages()
	})
	if len(active) == 0 {
		return []domain.Message{}, nil
	}

	// The pointer of a chat carries the creation time of its message,
	// so the limit can be applied before loading any message.
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if !a.LastUpdate.Equal(b.LastUpdate) {
			return a.LastUpdate.After(b.LastUpdate)
		}
		return a.LastMessageID > b.LastMessageID
	})

	// A dangling pointer is skipped and the next chat in order takes its place
	messages := make([]domain.Message, 0, min(limit, len(active)))
	for next := 0; next < len(active) && len(messages) < limit; {
		end := min(next+limit-len(messages), len(active))
		ids := lo.Map(active[next:end], func(c domain.Chat, _ int) string {
			return c.LastMessageID
		})
		loaded, err := s.messageRepository.GetMessages(ctx, ids)
		if err != nil {
			return nil, err
		}
		if len(loaded) < len(ids) {
			s.log.Warn("Some last messages could not be loaded", "user_id", userID, "expected", len(ids), "found", len(loaded))
		}
		messages = append(messages, loaded...)
		next = end
	}
	domain.SortNewestFirst(messages)
	return messages, nil
}
