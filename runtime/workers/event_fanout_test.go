package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/mocks"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventFanout_Channel(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	mockSink := mocks.NewMockEventSink(ctrl)
	fanout := NewEventFanout(log, mockRegistry, 10, time.Second)
	evt := event.Event{Name: event.TypingBroadcast}

	// Given two sessions in the channel besides the sender
	mockRegistry.EXPECT().
		GetSinksForChannel("general", "sender").
		Return([]contract.EventSink{mockSink, mockSink}).
		Times(1)
	var count atomic.Int32
	mockSink.EXPECT().Consume(gomock.Any(), evt).Do(
		func(ctx context.Context, e event.Event) {
			count.Add(1)
		}).Return(nil).
		Times(2)

	// When
	fanout.Fanout(context.Background(), event.Delivery{Channel: "general", Except: "sender", Event: evt})

	// Then both sinks were served before Fanout returned
	req.Equal(int32(2), count.Load())
}

func TestEventFanout_Target_And_Everyone(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	mockSink := mocks.NewMockEventSink(ctrl)
	fanout := NewEventFanout(log, mockRegistry, 10, time.Second)

	mockRegistry.EXPECT().Sink("bob").Return(mockSink, true)
	mockRegistry.EXPECT().Sink("ghost").Return(nil, false)
	mockRegistry.EXPECT().GetAllSinks("alice").Return([]contract.EventSink{mockSink})
	mockSink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	fanout.Fanout(context.Background(), event.Delivery{Target: "bob", Event: event.Event{Name: event.ReceivePrivateChannel}})
	fanout.Fanout(context.Background(), event.Delivery{Target: "ghost", Event: event.Event{Name: event.ReceivePrivateChannel}})
	fanout.Fanout(context.Background(), event.Delivery{Except: "alice", Event: event.Event{Name: event.NewChannel}})
}

func TestEventFanout_SinkTimeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	slowSink := mocks.NewMockEventSink(ctrl)
	fanout := NewEventFanout(log, mockRegistry, 10, 50*time.Millisecond)

	// Given a sink that never returns before its deadline
	mockRegistry.EXPECT().GetSinksForChannel("general", "").Return([]contract.EventSink{slowSink})
	slowSink.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, e event.Event) error {
			<-ctx.Done()
			return ctx.Err()
		})

	start := time.Now()
	fanout.Fanout(context.Background(), event.Delivery{Channel: "general", Event: event.Event{Name: event.TypingBroadcast}})

	// Then the fanout is not blocked longer than the sink timeout
	req.Less(time.Since(start), time.Second)
}

func TestEventFanout_Run_Delivers_Published_Events(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	mockRegistry := mocks.NewMockIRegistry(ctrl)
	mockSink := mocks.NewMockEventSink(ctrl)
	fanout := NewEventFanout(log, mockRegistry, 10, time.Second)

	delivered := make(chan event.Event, 1)
	mockRegistry.EXPECT().GetSinksForChannel("general", "").Return([]contract.EventSink{mockSink})
	mockSink.EXPECT().Consume(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, e event.Event) error {
			delivered <- e
			return nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fanout.Run(ctx) }()

	req.NoError(fanout.Publish(ctx, event.Delivery{Channel: "general", Event: event.Event{Name: event.NewBroadcastMessage}}))

	select {
	case e := <-delivered:
		req.Equal(event.NewBroadcastMessage, e.Name)
	case <-time.After(time.Second):
		req.Fail("Event was not delivered")
	}
}
