package redis

import (
	"chat-relay/domain/event"
	"chat-relay/mocks"
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func Test_Bus_Forwards_Published_Deliveries_To_Local_Bus(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := NewClient(ctx, addr, "", 0)
	req.NoError(err)
	defer client.Close()

	ctrl := gomock.NewController(t)
	local := mocks.NewMockIBus(ctrl)
	received := make(chan event.Delivery, 100)
	local.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, d event.Delivery) error {
			select {
			case received <- d:
			default:
			}
			return nil
		}).
		AnyTimes()

	channel := fmt.Sprintf("chat-relay-test-%d", time.Now().UnixNano())
	bus := NewBus(client, channel, local, slog.Default())
	go func() { _ = bus.Run(ctx) }()

	sent, err := event.New(event.TypingBroadcast, event.TypingPayload{Channel: "general", User: "alice"})
	req.NoError(err)
	delivery := event.Delivery{Channel: "general", Except: "s1", Event: sent}

	// Publish until the subscription is in place
	var got event.Delivery
	for delivered := false; !delivered; {
		req.NoError(bus.Publish(ctx, delivery))
		select {
		case got = <-received:
			delivered = true
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			req.FailNow("Delivery was not forwarded")
		}
	}

	req.Equal(delivery.Channel, got.Channel)
	req.Equal(delivery.Except, got.Except)
	req.Equal(sent.Name, got.Event.Name)
	req.JSONEq(string(sent.Data), string(got.Event.Data))
}
