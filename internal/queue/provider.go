package queue

import (
	"context"
	"errors"

	"queue-purger/internal/models"
)

var (
	ErrQueueNotFound = errors.New("queue not found")
	ErrAccessRefused = errors.New("access refused")
	ErrNotConnected  = errors.New("not connected")
)

// State is what the broker reports for a queue on a passive declare.
type State struct {
	Name      string
	Messages  int
	Consumers int
}

// Provider is a single broker connection. Connect and Close bracket a run;
// every other call requires an open connection.
type Provider interface {
	Connect(ctx context.Context) error
	Close() error

	// Inspect never creates or modifies the queue.
	Inspect(name string) (State, error)
	// PurgeQueue returns the number of messages removed.
	PurgeQueue(name string) (int, error)
	// Requeue moves up to limit messages from one queue to another and returns
	// how many were moved.
	Requeue(ctx context.Context, from, to string, limit int) (int, error)
	// Peek returns up to limit messages from the head of a queue and leaves
	// them on it.
	Peek(ctx context.Context, name string, limit int) ([]models.PeekedMessage, error)
}

// Lister enumerates every queue of the configured virtual host.
type Lister interface {
	ListQueues() ([]models.QueueStatus, error)
}
