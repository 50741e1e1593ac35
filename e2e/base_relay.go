package e2e

import (
	"bytes"
	"chat-relay/auth"
	"chat-relay/domain/event"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr == "" || s.Config.SharedSecret == "" {
		s.T().Skip("RELAY_ADDR and AUTH0_SHARED_SECRET are required")
	}
}

// Step prints a colorized header for a test step
func (s *BaseRelaySuite) Step(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

func (s *BaseRelaySuite) Token(userID string) string {
	token, err := auth.GenerateToken(s.Config.SharedSecret, userID, time.Hour)
	s.Require().NoError(err)
	return token
}

// Socket is a websocket client logging what it exchanges
type Socket struct {
	suite *BaseRelaySuite
	conn  *websocket.Conn
	name  string
}

func (s *BaseRelaySuite) Dial(name string) *Socket {
	u := url.URL{Scheme: "ws", Host: s.Config.RelayAddr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	s.Require().NoError(err, "Failed to connect to relay at "+u.String())
	s.T().Cleanup(func() { _ = conn.Close() })
	return &Socket{suite: s, conn: conn, name: name}
}

func (c *Socket) Send(name string, data any) {
	e, err := event.New(name, data)
	c.suite.Require().NoError(err)
	c.log("->", e)
	c.suite.Require().NoError(c.conn.WriteJSON(e))
}

// Expect reads events until one named name arrives
func (c *Socket) Expect(name string) event.Event {
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var e event.Event
		c.suite.Require().NoError(c.conn.ReadJSON(&e), "waiting for %q", name)
		c.log("<-", e)
		if e.Name == name {
			return e
		}
	}
}

func (c *Socket) ExpectData(name string, out any) {
	c.suite.Require().NoError(json.Unmarshal(c.Expect(name).Data, out))
}

// Mount runs the handshake and returns the session id
func (c *Socket) Mount() string {
	c.Send(event.ChatMounted, nil)
	var id string
	c.ExpectData(event.ReceiveSocket, &id)
	return id
}

func (c *Socket) Join(channel string) {
	c.Send(event.JoinChannel, channel)
	c.Mount()
}

func (c *Socket) log(direction string, e event.Event) {
	line := fmt.Sprintf("WS %s %s %q", c.name, direction, e.Name)
	if c.suite.Config.DebugJSON {
		line += " " + string(e.Data)
	}
	c.suite.T().Log(line)
}

// HTTP calls the relay REST API as userID and decodes the response into out when not nil
func (s *BaseRelaySuite) HTTP(method, path, userID string, body, out any) int {
	var reader bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&reader).Encode(body))
	}
	r, err := http.NewRequest(method, "http://"+s.Config.RelayAddr+path, &reader)
	s.Require().NoError(err)
	r.Header.Set("Authorization", "Bearer "+s.Token(userID))
	r.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := http.DefaultClient.Do(r)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.T().Logf("HTTP %s %s [%d] in %v", method, path, resp.StatusCode, time.Since(start))
	if out != nil && resp.StatusCode < 300 {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}
