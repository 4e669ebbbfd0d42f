//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"care-link/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself; the supervisor does.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision, avoiding manual naming in the interface.
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

// EventSink receives feed events. Implementations must tolerate duplicate
// events for the same message id.
type EventSink interface {
	Consume(ctx context.Context, e event.FeedEvent) error
}

// IRegistry resolves which live sessions an event must reach.
type IRegistry interface {
	SinksFor(userID string) []EventSink
	Subscribe(sessionID, userID string, sink EventSink)
	Unsubscribe(sessionID, userID string)
}
