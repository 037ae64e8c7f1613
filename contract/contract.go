//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"darkroom/domain"
	"darkroom/domain/event"
)

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding the need for manual naming in the Worker
// interface.
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

// EventSink is one connected client's delivery channel. Consume must not
// block past ctx; a sink that cannot keep up loses events rather than
// stalling the fan-out.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IStore is the durable message store consumed by the persister and the
// history loader. StoreMessage is fire-and-forget from the router's point
// of view; RecentMessages returns messages with Seq < beforeSeq in
// chronological order (pass 0 for "from the latest").
type IStore interface {
	StoreMessage(msg domain.Message) error
	RecentMessages(room domain.RoomID, beforeSeq uint64, limit int) ([]domain.Message, error)
}

// IIndex is the full-text side index over persisted messages.
type IIndex interface {
	IndexMessage(msg domain.Message) error
	Search(ctx context.Context, room domain.RoomID, terms string, limit int) ([]domain.Message, error)
}
