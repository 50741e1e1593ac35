package services

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

// directTransactor runs units without a transaction, like a MongoDB deployment without replica set.
type directTransactor struct{}

func (directTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type badgerStack struct {
	svc      *ConversationService
	chats    *repositories.ChatRepository
	messages *repositories.MessageRepository
}

func newBadgerStack(t *testing.T) badgerStack {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	chats := repositories.NewChatRepository(db, log, 200)
	messages := repositories.NewMessageRepository(db, log, 200)
	transactor := repositories.NewTransactor(db, log, 200)
	return badgerStack{
		svc:      NewConversationService(chats, messages, transactor, log),
		chats:    chats,
		messages: messages,
	}
}

func Test_New_Chat_Has_No_Messages(t *testing.T) {
	req := require.New(t)
	s := newBadgerStack(t)

	chat, err := s.svc.CreateChat(context.Background(), "alice", []string{"bob", "carol"})

	req.NoError(err)
	req.Equal(0, chat.NumMessages)
	req.Empty(chat.LastMessageID)
}

func Test_Latest_Chats_For_User_Without_Chats_Is_Empty(t *testing.T) {
	req := require.New(t)
	s := newBadgerStack(t)

	got, err := s.svc.GetLatestChatMessages(context.Background(), "alice", 10)

	req.NoError(err)
	req.NotNil(got)
	req.Len(got, 0)
}

func Test_Latest_Chats_Excludes_Chats_Without_Messages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newBadgerStack(t)

	// Given 3 empty chats
	for i := 0; i < 3; i++ {
		_, err := s.svc.CreateChat(ctx, "alice", []string{fmt.Sprintf("user-%d", i)})
		req.NoError(err)
	}

	// When
	got, err := s.svc.GetLatestChatMessages(ctx, "alice", 10)

	// Then
	req.NoError(err)
	req.Len(got, 0)
}

func Test_Latest_Chats_Returns_Only_Qualifying_Chats(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newBadgerStack(t)

	// Given 5 chats, 2 of them with alice and at least one message
	withAlice, err := s.svc.CreateChat(ctx, "alice", []string{"bob"})
	req.NoError(err)
	joinedByAlice, err := s.svc.CreateChat(ctx, "carol", []string{"alice"})
	req.NoError(err)
	_, err = s.svc.CreateChat(ctx, "alice", []string{"dave"})
	req.NoError(err)
	others, err := s.svc.CreateChat(ctx, "bob", []string{"carol"})
	req.NoError(err)
	_, err = s.svc.CreateChat(ctx, "dave", nil)
	req.NoError(err)

	_, err = s.svc.PostMessage(ctx, withAlice.ID, "bob", "hello alice")
	req.NoError(err)
	_, err = s.svc.PostMessage(ctx, joinedByAlice.ID, "alice", "hello carol")
	req.NoError(err)
	_, err = s.svc.PostMessage(ctx, others.ID, "carol", "not for alice")
	req.NoError(err)

	// When
	got, err := s.svc.GetLatestChatMessages(ctx, "alice", 10)

	// Then
	req.NoError(err)
	req.Len(got, 2)
	req.ElementsMatch([]string{withAlice.ID, joinedByAlice.ID}, []string{got[0].ChatID, got[1].ChatID})
}

func Test_Latest_Chats_Are_Newest_First_And_Limited(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newBadgerStack(t)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.svc.clock = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	// Given 8 chats of which only some qualify, each active chat getting several messages
	var chats []domain.Chat
	for i := 0; i < 8; i++ {
		starter := "alice"
		if i%4 == 3 {
			starter = "zoe"
		}
		chat, err := s.svc.CreateChat(ctx, starter, []string{"bob"})
		req.NoError(err)
		chats = append(chats, chat)
	}
	for _, i := range []int{5, 1, 3, 2, 5, 6} {
		_, err := s.svc.PostMessage(ctx, chats[i].ID, "bob", fmt.Sprintf("message in %d", i))
		req.NoError(err)
	}

	// When
	all, err := s.svc.GetLatestChatMessages(ctx, "alice", 10)
	req.NoError(err)
	limited, err := s.svc.GetLatestChatMessages(ctx, "alice", 2)
	req.NoError(err)

	// Then chats 3 and 7 belong to zoe, the others of alice with messages are 1, 2, 5, 6
	req.Len(all, 4)
	req.Equal([]string{chats[6].ID, chats[5].ID, chats[2].ID, chats[1].ID},
		[]string{all[0].ChatID, all[1].ChatID, all[2].ChatID, all[3].ChatID})
	for i := 0; i < len(all)-1; i++ {
		req.False(all[i].CreatedAt.Before(all[i+1].CreatedAt))
	}
	req.Equal(all[:2], limited)
	req.Equal("message in 5", all[1].Body)
}

func Test_Post_Message_Denies_Strangers_And_Unknown_Chats_Alike(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newBadgerStack(t)
	chat, err := s.svc.CreateChat(ctx, "alice", []string{"bob"})
	req.NoError(err)

	_, strangerErr := s.svc.PostMessage(ctx, chat.ID, "mallory", "hi")
	_, unknownErr := s.svc.PostMessage(ctx, "no-such-chat", "bob", "hi")

	req.ErrorIs(strangerErr, errors.ErrPermissionDenied)
	req.ErrorIs(unknownErr, errors.ErrPermissionDenied)
	req.Equal(strangerErr, unknownErr)

	stored, err := s.chats.GetChat(ctx, chat.ID)
	req.NoError(err)
	req.Equal(0, stored.NumMessages)
}

func Test_Post_Message_Rejects_Blank_Body(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newBadgerStack(t)
	chat, err := s.svc.CreateChat(ctx, "alice", nil)
	req.NoError(err)

	_, err = s.svc.PostMessage(ctx, chat.ID, "alice", " \t\n ")

	req.True(errors.IsValidation(err, "message", errors.KindRequired))
	stored, err := s.chats.GetChat(ctx, chat.ID)
	req.NoError(err)
	req.Equal(0, stored.NumMessages)
	req.Empty(stored.LastMessageID)
}

func Test_Concurrent_Posts_Count_Every_Message(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newBadgerStack(t)
	chat, err := s.svc.CreateChat(ctx, "alice", []string{"bob", "carol"})
	req.NoError(err)
	authors := chat.Members()

	n := 30
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.svc.PostMessage(ctx, chat.ID, authors[i%len(authors)], fmt.Sprintf("message %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	stored, err := s.chats.GetChat(ctx, chat.ID)
	req.NoError(err)
	timeline, err := s.messages.FindByChat(ctx, chat.ID)
	req.NoError(err)
	req.Equal(n, stored.NumMessages)
	req.Len(timeline, n)
	req.Equal(timeline[0].ID, stored.LastMessageID)
}

func Test_Check_Consistency_Detects_Drift(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newBadgerStack(t)
	chat, err := s.svc.CreateChat(ctx, "alice", nil)
	req.NoError(err)
	posted, err := s.svc.PostMessage(ctx, chat.ID, "alice", "persisted")
	req.NoError(err)

	// Given a message written without its counter update
	orphan, err := s.messages.AppendMessage(ctx, chat.ID, "alice", "orphan", posted.CreatedAt.Add(time.Second))
	req.NoError(err)

	// When
	c, err := s.svc.CheckConsistency(ctx, chat.ID)

	// Then
	req.NoError(err)
	req.True(c.Drifted())
	req.Equal(1, c.StoredCount)
	req.Equal(2, c.ActualCount)
	req.Equal(orphan.ID, c.ActualLastMessageID)

	s.svc.clock = func() time.Time { return orphan.CreatedAt.Add(time.Hour) }
	repaired, ok, err := s.svc.Reconcile(ctx, chat.ID)
	req.NoError(err)
	req.True(ok)
	req.Equal(2, repaired.NumMessages)
	req.Equal(orphan.ID, repaired.LastMessageID)

	c, err = s.svc.CheckConsistency(ctx, chat.ID)
	req.NoError(err)
	req.False(c.Drifted())
}

func Test_Reconcile_Does_Not_Count_A_Message_Twice_While_It_Is_Being_Posted(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newBadgerStack(t)
	svc := NewConversationService(s.chats, s.messages, directTransactor{}, slog.Default())
	chat, err := svc.CreateChat(ctx, "alice", []string{"bob"})
	req.NoError(err)

	// Given a post that stored its message but did not count it yet
	message, err := s.messages.AppendMessage(ctx, chat.ID, "bob", "in flight", repositories.Now())
	req.NoError(err)

	// When the reconciler passes before the post completes
	_, repaired, err := svc.Reconcile(ctx, chat.ID)
	req.NoError(err)
	req.False(repaired)
	req.NoError(s.chats.IncrementMessage(ctx, chat.ID, message.ID, message.CreatedAt))

	// Then
	stored, err := s.chats.GetChat(ctx, chat.ID)
	req.NoError(err)
	req.Equal(1, stored.NumMessages)
	req.Equal(message.ID, stored.LastMessageID)
	c, err := svc.CheckConsistency(ctx, chat.ID)
	req.NoError(err)
	req.False(c.Drifted())
}

func Test_Reconcile_Repairs_A_Stale_Last_Update(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newBadgerStack(t)
	chat, err := s.svc.CreateChat(ctx, "alice", nil)
	req.NoError(err)
	posted, err := s.svc.PostMessage(ctx, chat.ID, "alice", "hello")
	req.NoError(err)

	// Given a chat whose pointer is right but whose last update went back in time
	stored, err := s.chats.GetChat(ctx, chat.ID)
	req.NoError(err)
	stale := stored.Counters()
	stale.LastUpdate = chat.CreatedAt.Add(-time.Hour)
	applied, err := s.chats.RepairCounters(ctx, chat.ID, stored.Counters(), stale)
	req.NoError(err)
	req.True(applied)

	c, err := s.svc.CheckConsistency(ctx, chat.ID)
	req.NoError(err)
	req.True(c.Drifted())

	// When
	s.svc.clock = func() time.Time { return posted.CreatedAt.Add(time.Hour) }
	repaired, ok, err := s.svc.Reconcile(ctx, chat.ID)

	// Then
	req.NoError(err)
	req.True(ok)
	req.Equal(posted.CreatedAt, repaired.LastUpdate)
	c, err = s.svc.CheckConsistency(ctx, chat.ID)
	req.NoError(err)
	req.False(c.Drifted())
}
