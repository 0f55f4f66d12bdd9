// ABOUTME: Store interface and data types for the thread registry and run ledger
// ABOUTME: Defines Thread and Run records plus a no-op Store for disabled persistence

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateRun is returned when a run is recorded twice
var ErrDuplicateRun = errors.New("run already recorded")

// Thread is an agent-service thread the relay has seen.
type Thread struct {
	ID        string
	AgentID   string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Deleted reports whether the thread was deleted through the relay.
func (t *Thread) Deleted() bool {
	return t.DeletedAt != nil
}

// Run is the outcome of one agent run.
type Run struct {
	ID               string
	ThreadID         string
	AgentID          string
	Status           string
	ErrorCode        string
	PromptTokens     int
	CompletionTokens int
	CreatedAt        time.Time
}

// Store is the persistence interface used by the relay.
type Store interface {
	// RecordThread registers a thread. Recording a known thread is a no-op.
	RecordThread(ctx context.Context, thread *Thread) error

	// MarkThreadDeleted stamps a thread as deleted, registering it first if
	// the relay had never seen it.
	MarkThreadDeleted(ctx context.Context, id string, at time.Time) error

	// GetThread returns ErrNotFound for unknown threads.
	GetThread(ctx context.Context, id string) (*Thread, error)

	RecordRun(ctx context.Context, run *Run) error

	// ListRunsByThread returns runs oldest first. limit <= 0 means all.
	ListRunsByThread(ctx context.Context, threadID string, limit int) ([]*Run, error)

	Close() error
}

// NopStore accepts every write and finds nothing.
type NopStore struct{}

var _ Store = NopStore{}

func (NopStore) RecordThread(context.Context, *Thread) error                { return nil }
func (NopStore) MarkThreadDeleted(context.Context, string, time.Time) error { return nil }
func (NopStore) GetThread(context.Context, string) (*Thread, error)         { return nil, ErrNotFound }
func (NopStore) RecordRun(context.Context, *Run) error                      { return nil }
func (NopStore) ListRunsByThread(context.Context, string, int) ([]*Run, error) {
	return nil, nil
}
func (NopStore) Close() error { return nil }
