package e2e

import (
	"chat-relay/domain/event"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type chat struct {
	ID          string `json:"id"`
	NumMessages int    `json:"numMessages"`
	LastMessage string `json:"lastMessage"`
}

type message struct {
	ID           string `json:"id"`
	ChatID       string `json:"chatId"`
	AuthorUserID string `json:"authorUserId"`
	Message      string `json:"message"`
}

type testConversationSuite struct {
	BaseRelaySuite
}

func TestConversationSuite(t *testing.T) {
	suite.Run(t, &testConversationSuite{})
}

func (s *testConversationSuite) TestFullConversationFlow() {
	alice := "alice-" + uuid.NewString()
	bob := "bob-" + uuid.NewString()
	channel := "room-" + uuid.NewString()
	var created chat

	s.Run("Step 1: Create a chat over HTTP", func() {
		s.Step(s.T(), "Alice starts a chat with Bob")
		status := s.HTTP(http.MethodPost, "/api/chats", alice, map[string]any{"partners": []string{bob}}, &created)
		s.Require().Equal(http.StatusCreated, status)
		s.Require().NotEmpty(created.ID)
		s.Require().Zero(created.NumMessages)
	})

	s.Run("Step 2: A message is stored and broadcast to the channel", func() {
		s.Step(s.T(), "Bob listens while Alice writes")
		aliceSocket, bobSocket := s.Dial("alice"), s.Dial("bob")
		aliceSocket.Join(channel)
		bobSocket.Join(channel)

		aliceSocket.Send(event.NewMessage, event.NewMessagePayload{
			Message: "hello bob",
			ChatID:  created.ID,
			Channel: channel,
			Token:   s.Token(alice),
		})
		var broadcast event.BroadcastMessage
		bobSocket.ExpectData(event.NewBroadcastMessage, &broadcast)
		s.Require().Equal("hello bob", broadcast.Message)
		s.Require().Equal(alice, broadcast.AuthorUserID)
		s.Require().Equal(created.ID, broadcast.ChatID)
	})

	s.Run("Step 3: A stranger cannot post", func() {
		s.Step(s.T(), "Mallory is not a member")
		status := s.HTTP(http.MethodPost, "/api/chats/"+created.ID+"/messages", "mallory-"+uuid.NewString(),
			map[string]any{"message": "let me in"}, nil)
		s.Require().Equal(http.StatusForbidden, status)
	})

	s.Run("Step 4: Latest chats show the last message", func() {
		s.Step(s.T(), "Bob lists his latest chats")
		var latest []message
		status := s.HTTP(http.MethodGet, "/api/chats/latest?limit=5", bob, nil, &latest)
		s.Require().Equal(http.StatusOK, status)
		s.Require().Len(latest, 1)
		s.Require().Equal("hello bob", latest[0].Message)
		s.Require().Equal(created.ID, latest[0].ChatID)
	})
}
