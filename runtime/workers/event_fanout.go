package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventFanout delivers events to the sessions connected to this process.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// ordering, durability, or retries. EventFanout is not a message broker.
// Deliveries are queued by Publish and handed to sinks by Run, each sink
// being given at most sinkTimeout.
//
// EventFanout is safe for concurrent use by multiple goroutines.
type EventFanout struct {
	log         *slog.Logger
	registry    contract.IRegistry
	deliveries  chan event.Delivery
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, registry contract.IRegistry, bufferSize int, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:         log,
		registry:    registry,
		deliveries:  make(chan event.Delivery, bufferSize),
		sinkTimeout: sinkTimeout,
	}
}

// Publish queues d for local delivery.
func (w *EventFanout) Publish(ctx context.Context, d event.Delivery) error {
	select {
	case w.deliveries <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case d := <-w.deliveries:
			w.Fanout(ctx, d)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

// Fanout resolves the sinks targeted by d and sends the event to each of them concurrently.
func (w *EventFanout) Fanout(ctx context.Context, d event.Delivery) {
	sinks := w.sinksFor(d)
	var wg sync.WaitGroup
	for _, sink := range sinks {
		wg.Add(1)
		go func(sink contract.EventSink) {
			defer wg.Done()
			sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
			defer cancel()
			if err := sink.Consume(sinkCtx, d.Event); err != nil {
				w.log.Debug("Event not delivered", "event", d.Event.Name, "error", err)
			}
		}(sink)
	}
	wg.Wait()
}

func (w *EventFanout) sinksFor(d event.Delivery) []contract.EventSink {
	switch {
	case d.Target != "":
		sink, ok := w.registry.Sink(d.Target)
		if !ok {
			return nil
		}
		return []contract.EventSink{sink}
	case d.Channel != "":
		return w.registry.GetSinksForChannel(d.Channel, d.Except)
	default:
		return w.registry.GetAllSinks(d.Except)
	}
}
