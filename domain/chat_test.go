package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewChat_Starts_Empty(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()

	chat := NewChat("chat-1", "alice", []string{"bob", "alice", "bob", ""}, now)

	req.Equal(0, chat.NumMessages)
	req.Empty(chat.LastMessageID)
	req.False(chat.HasMessages())
	req.Equal(now, chat.LastUpdate)
	req.Equal([]string{"bob"}, chat.Partners)
}

func TestChat_IsMember(t *testing.T) {
	req := require.New(t)
	chat := NewChat("chat-1", "alice", []string{"bob", "clara"}, time.Now())

	req.True(chat.IsMember("alice"))
	req.True(chat.IsMember("clara"))
	req.False(chat.IsMember("dave"))
	req.False(chat.IsMember(""))
	req.Equal([]string{"alice", "bob", "clara"}, chat.Members())
}

func TestChat_RecordMessage_Converges_To_Newest(t *testing.T) {
	req := require.New(t)
	created := time.Now().UTC()
	at := created.Add(time.Second)

	// Given messages applied out of order
	chat := NewChat("chat-1", "alice", nil, created)
	chat.RecordMessage("m2", at.Add(2*time.Second))
	chat.RecordMessage("m1", at.Add(time.Second))
	chat.RecordMessage("m3", at.Add(2*time.Second))

	// Then every message is counted and the pointer is on the newest one
	req.Equal(3, chat.NumMessages)
	req.True(chat.HasMessages())
	req.Equal("m3", chat.LastMessageID)
	req.Equal(at.Add(2*time.Second), chat.LastUpdate)
}

func TestChat_RecordMessage_First_Message_Always_Wins(t *testing.T) {
	req := require.New(t)
	created := time.Now().UTC()

	// Given a message timestamped before the chat creation (clock skew)
	chat := NewChat("chat-1", "alice", nil, created)
	chat.RecordMessage("m1", created.Add(-time.Minute))

	req.Equal("m1", chat.LastMessageID)
	req.Equal(created.Add(-time.Minute), chat.LastUpdate)
}

func TestSortNewestFirst_Breaks_Ties_By_ID(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()
	messages := []Message{
		{ID: "a", CreatedAt: at},
		{ID: "c", CreatedAt: at.Add(-time.Second)},
		{ID: "b", CreatedAt: at},
		{ID: "d", CreatedAt: at.Add(time.Second)},
	}

	SortNewestFirst(messages)

	ids := []string{messages[0].ID, messages[1].ID, messages[2].ID, messages[3].ID}
	req.Equal([]string{"d", "b", "a", "c"}, ids)
}
