//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"dm-lab/domain/event"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes.
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

// EventSink is one live connection able to receive outbound frames.
type EventSink interface {
	Consume(ctx context.Context, e event.Outbound) error
}

// IRegistry tracks live connections per user.
// Connect and Disconnect report presence transitions.
type IRegistry interface {
	Connect(userID, connID string, sink EventSink) bool
	Disconnect(userID, connID string) bool
	SinksFor(userID string) []EventSink
	IsOnline(userID string) bool
	OnlineUsers() []string
}

// Publisher hands deliveries over to whatever routes them to connections.
type Publisher interface {
	Publish(ctx context.Context, d event.Delivery) error
}

// IRouter is what a live transport talks to.
type IRouter interface {
	Connect(ctx context.Context, userID, connID string, sink EventSink)
	Disconnect(ctx context.Context, userID, connID string)
	Handle(ctx context.Context, userID, connID string, sink EventSink, raw []byte)
}
