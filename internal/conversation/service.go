// ABOUTME: Thread lifecycle for chat turns: resolve-or-create and delete
// ABOUTME: Records created and deleted threads in the registry without failing requests

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/agent-relay/internal/agentsvc"
	"github.com/2389/agent-relay/internal/store"
)

// ErrMissingThreadID is returned by Delete for an empty thread ID.
var ErrMissingThreadID = errors.New("thread_id is required")

// ThreadService is what the service needs from the agent service.
type ThreadService interface {
	CreateThread(ctx context.Context) (*agentsvc.Thread, error)
	DeleteThread(ctx context.Context, threadID string) (*agentsvc.ThreadDeletion, error)
}

// ThreadRegistry is what the service needs from storage.
type ThreadRegistry interface {
	RecordThread(ctx context.Context, thread *store.Thread) error
	MarkThreadDeleted(ctx context.Context, id string, at time.Time) error
}

// Service resolves and deletes threads.
type Service struct {
	threads  ThreadService
	registry ThreadRegistry
	logger   *slog.Logger
}

// New creates a Service. A nil registry disables recording.
func New(threads ThreadService, registry ThreadRegistry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = store.NopStore{}
	}
	return &Service{
		threads:  threads,
		registry: registry,
		logger:   logger.With("component", "conversation"),
	}
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	ThreadID string
	Created  bool
}

// IsNewThreadSentinel reports whether a client-supplied thread ID asks for
// a new thread.
func IsNewThreadSentinel(threadID string) bool {
	switch threadID {
	case "", "-1", "null":
		return true
	default:
		return false
	}
}

// Resolve returns the thread to run against, creating one when threadID is
// a new-thread sentinel. Existing IDs are not checked.
func (s *Service) Resolve(ctx context.Context, threadID, agentID string) (Resolution, error) {
	if !IsNewThreadSentinel(threadID) {
		s.logger.Debug("resuming thread", "thread_id", threadID)
		return Resolution{ThreadID: threadID}, nil
	}

	thread, err := s.threads.CreateThread(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("creating thread: %w", err)
	}

	s.logger.Info("thread created", "thread_id", thread.ID, "agent_id", agentID)
	s.record(func(ctx context.Context) error {
		return s.registry.RecordThread(ctx, &store.Thread{
			ID:        thread.ID,
			AgentID:   agentID,
			CreatedAt: time.Now(),
		})
	}, "thread_id", thread.ID)

	return Resolution{ThreadID: thread.ID, Created: true}, nil
}

// DeleteResult is the confirmation of a deleted thread.
type DeleteResult struct {
	ThreadID string
	Message  string
}

// DeleteError reports a failed deletion. It unwraps to the agent-service
// error, so errors.Is(err, agentsvc.ErrNotFound) detects unknown threads.
type DeleteError struct {
	ThreadID string
	Err      error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("Failed to delete thread %s: %v", e.ThreadID, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

// Delete removes a thread from the agent service.
func (s *Service) Delete(ctx context.Context, threadID string) (*DeleteResult, error) {
	if threadID == "" {
		return nil, ErrMissingThreadID
	}

	if _, err := s.threads.DeleteThread(ctx, threadID); err != nil {
		s.logger.Warn("thread deletion failed", "thread_id", threadID, "error", err)
		return nil, &DeleteError{ThreadID: threadID, Err: err}
	}

	s.logger.Info("thread deleted", "thread_id", threadID)
	s.record(func(ctx context.Context) error {
		return s.registry.MarkThreadDeleted(ctx, threadID, time.Now())
	}, "thread_id", threadID)

	return &DeleteResult{
		ThreadID: threadID,
		Message:  fmt.Sprintf("Thread %s deleted.", threadID),
	}, nil
}

// record runs a registry write with its own timeout so a cancelled request
// still leaves a trace.
func (s *Service) record(write func(ctx context.Context) error, attrs ...any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := write(ctx); err != nil {
		s.logger.Error("failed to update thread registry", append(attrs, "error", err)...)
	}
}
