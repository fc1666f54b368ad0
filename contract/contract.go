//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks -exclude_interfaces=ISupervisor
package contract

import (
	"context"
	"reflect"
	"tchat/domain"
	"time"
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

// Peer is the delivery handle of one connected client.
// Send and Prompt never block: they enqueue and report a soft failure.
type Peer interface {
	// Send delivers a display line, framed with the MSG: prefix.
	Send(line string) error
	// Prompt writes raw text that precedes a client read.
	Prompt(text string) error
	// Close is idempotent and unblocks a pending ReadLine.
	Close() error
}

// Stream is a Peer that can also be read from, one line at a time.
type Stream interface {
	Peer
	ReadLine() (string, error)
	RemoteAddr() string
}

type IProfileStore interface {
	RecordConnect(name string, at time.Time) (domain.Profile, error)
	RecordDisconnect(name string, at time.Time) error
	Get(name string) (domain.Profile, error)
	List() ([]domain.Profile, error)
}

type IBroadcaster interface {
	Broadcast(code domain.RoomCode, message, exclude string) int
}
