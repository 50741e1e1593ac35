package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Transaction_Commits_Both_Writes(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	chats := NewChatRepository(db, slog.Default(), 0)
	messages := NewMessageRepository(db, slog.Default(), 0)
	transactor := NewTransactor(db, slog.Default(), 0)
	chat, err := chats.CreateChat(ctx, "alice", []string{"bob"})
	req.NoError(err)

	err = transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		message, err := messages.AppendMessage(ctx, chat.ID, "bob", "hi", Now())
		if err != nil {
			return err
		}
		return chats.IncrementMessage(ctx, chat.ID, message.ID, message.CreatedAt)
	})
	req.NoError(err)

	stored, err := chats.GetChat(ctx, chat.ID)
	req.NoError(err)
	req.Equal(1, stored.NumMessages)
	timeline, err := messages.FindByChat(ctx, chat.ID)
	req.NoError(err)
	req.Len(timeline, 1)
	req.Equal(timeline[0].ID, stored.LastMessageID)
}

func Test_Transaction_Rolls_Back_On_Error(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	chats := NewChatRepository(db, slog.Default(), 0)
	messages := NewMessageRepository(db, slog.Default(), 0)
	transactor := NewTransactor(db, slog.Default(), 0)
	chat, err := chats.CreateChat(ctx, "alice", nil)
	req.NoError(err)

	boom := fmt.Errorf("boom")
	err = transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := messages.AppendMessage(ctx, chat.ID, "alice", "lost", Now()); err != nil {
			return err
		}
		return boom
	})
	req.ErrorIs(err, boom)

	// The message written before the failure is not visible
	timeline, err := messages.FindByChat(ctx, chat.ID)
	req.NoError(err)
	req.Empty(timeline)
}

func Test_Transaction_Concurrent_Units_Do_Not_Lose_Updates(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	chats := NewChatRepository(db, slog.Default(), 0)
	messages := NewMessageRepository(db, slog.Default(), 0)
	transactor := NewTransactor(db, slog.Default(), 100)
	chat, err := chats.CreateChat(ctx, "alice", nil)
	req.NoError(err)

	n := 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- transactor.WithinTransaction(ctx, func(ctx context.Context) error {
				message, err := messages.AppendMessage(ctx, chat.ID, "alice", "ping", Now())
				if err != nil {
					return err
				}
				return chats.IncrementMessage(ctx, chat.ID, message.ID, message.CreatedAt)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	stored, err := chats.GetChat(ctx, chat.ID)
	req.NoError(err)
	timeline, err := messages.FindByChat(ctx, chat.ID)
	req.NoError(err)
	req.Len(timeline, n)
	req.Equal(n, stored.NumMessages)
	req.Equal(timeline[0].ID, stored.LastMessageID)
}
