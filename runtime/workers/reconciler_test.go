package workers

import (
	"chat-relay/domain"
	"chat-relay/mocks"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type reconcilerFunc func(ctx context.Context, chatID string) (domain.Chat, bool, error)

func (f reconcilerFunc) Reconcile(ctx context.Context, chatID string) (domain.Chat, bool, error) {
	return f(ctx, chatID)
}

func TestReconcilerWorker_Scan(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	chats := mocks.NewMockIChatRepository(ctrl)
	chats.EXPECT().ListChatIDs(gomock.Any()).Return([]string{"c1", "c2", "c3"}, nil)

	var seen []string
	reconciler := reconcilerFunc(func(ctx context.Context, chatID string) (domain.Chat, bool, error) {
		seen = append(seen, chatID)
		switch chatID {
		case "c1":
			return domain.Chat{ID: chatID}, true, nil
		case "c2":
			return domain.Chat{}, false, fmt.Errorf("boom")
		default:
			return domain.Chat{ID: chatID}, false, nil
		}
	})
	worker := NewReconcilerWorker(slog.Default(), chats, reconciler, time.Minute)

	// When
	repaired, err := worker.Scan(context.Background())

	// Then a failing chat does not stop the scan
	req.NoError(err)
	req.Equal(1, repaired)
	req.Equal([]string{"c1", "c2", "c3"}, seen)
}

func TestReconcilerWorker_Scan_List_Failure(t *testing.T) {
	ctrl := gomock.NewController(t)
	chats := mocks.NewMockIChatRepository(ctrl)
	chats.EXPECT().ListChatIDs(gomock.Any()).Return(nil, fmt.Errorf("store down"))
	worker := NewReconcilerWorker(slog.Default(), chats, nil, time.Minute)

	_, err := worker.Scan(context.Background())

	require.Error(t, err)
}

func TestReconcilerWorker_Run_Stops_With_Context(t *testing.T) {
	ctrl := gomock.NewController(t)
	chats := mocks.NewMockIChatRepository(ctrl)
	chats.EXPECT().ListChatIDs(gomock.Any()).Return(nil, nil).AnyTimes()
	worker := NewReconcilerWorker(slog.Default(), chats, nil, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, worker.Run(ctx))
}
