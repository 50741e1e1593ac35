//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the outbound side of a connected session.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// IRegistry tracks connected sessions and the channels they joined.
type IRegistry interface {
	Register(sessionID string, sink EventSink)
	Unregister(sessionID string)
	Join(sessionID, channel string) bool
	Leave(sessionID, channel string)
	Sink(sessionID string) (EventSink, bool)
	GetSinksForChannel(channel, except string) []EventSink
	GetAllSinks(except string) []EventSink
	Count() int
}

// IBus carries deliveries to the sessions they target, wherever they are connected.
type IBus interface {
	Publish(ctx context.Context, d event.Delivery) error
	Run(ctx context.Context) error
}
