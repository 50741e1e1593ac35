package repositories

import (
	"chat-relay/errors"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Append_Message_Trims_Body(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default(), 0)
	at := Now()

	message, err := repository.AppendMessage(ctx, "chat-1", "alice", "  hello bob \n", at)
	req.NoError(err)
	req.NotEmpty(message.ID)
	req.Equal("hello bob", message.Body)
	req.Equal(at, message.CreatedAt)

	stored, err := repository.GetMessage(ctx, message.ID)
	req.NoError(err)
	req.Equal(message, stored)
}

func Test_Append_Blank_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), 0)

	_, err := repository.AppendMessage(context.Background(), "chat-1", "alice", " \t\n ", Now())
	req.True(errors.IsValidation(err, "message", errors.KindRequired))
}

func Test_Get_Unknown_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), 0)

	_, err := repository.GetMessage(context.Background(), "unknown")
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_Get_Messages_Skips_Unknown(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default(), 0)
	m1, err := repository.AppendMessage(ctx, "chat-1", "alice", "one", Now())
	req.NoError(err)
	m2, err := repository.AppendMessage(ctx, "chat-2", "bob", "two", Now())
	req.NoError(err)

	messages, err := repository.GetMessages(ctx, []string{m1.ID, "unknown", m2.ID})
	req.NoError(err)
	req.Equal([]string{m1.ID, m2.ID}, []string{messages[0].ID, messages[1].ID})
}

func Test_Find_By_Chat_Sorted_Newest_First(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewMessageRepository(openDB(t), slog.Default(), 0)
	at := Now()

	authors := []string{"Alice", "Bob", "Clara"}
	for i, author := range authors {
		_, err := repository.AppendMessage(ctx, "chat-1", author, "this message will self destruct in 5 seconds",
			at.Add(time.Duration(i)*time.Minute))
		req.NoError(err)
	}
	// Given a message in another chat
	_, err := repository.AppendMessage(ctx, "chat-2", "Dave", "elsewhere", at.Add(time.Hour))
	req.NoError(err)

	messages, err := repository.FindByChat(ctx, "chat-1")
	req.NoError(err)
	req.Len(messages, 3)
	req.Equal("Clara", messages[0].AuthorUserID)
	req.Equal("Bob", messages[1].AuthorUserID)
	req.Equal("Alice", messages[2].AuthorUserID)

	empty, err := repository.FindByChat(ctx, "chat-3")
	req.NoError(err)
	req.Empty(empty)
}
