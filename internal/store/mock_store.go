// ABOUTME: Mock Store implementation for testing
// ABOUTME: Keeps threads and runs in memory so tests can run without SQLite

package store

import (
	"context"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu      sync.RWMutex
	threads map[string]*Thread // keyed by thread ID
	runs    map[string][]*Run  // keyed by thread ID
	runIDs  map[string]bool
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		threads: make(map[string]*Thread),
		runs:    make(map[string][]*Run),
		runIDs:  make(map[string]bool),
	}
}

// RecordThread stores a thread unless it is already known.
func (m *MockStore) RecordThread(ctx context.Context, thread *Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.threads[thread.ID]; ok {
		return nil
	}
	t := *thread
	m.threads[t.ID] = &t
	return nil
}

// MarkThreadDeleted stamps a thread as deleted.
func (m *MockStore) MarkThreadDeleted(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.threads[id]
	if !ok {
		t = &Thread{ID: id, CreatedAt: at}
		m.threads[id] = t
	}
	deletedAt := at
	t.DeletedAt = &deletedAt
	return nil
}

// GetThread retrieves a copy of a thread by ID.
func (m *MockStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// RecordRun appends a run.
func (m *MockStore) RecordRun(ctx context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runIDs[run.ID] {
		return ErrDuplicateRun
	}
	r := *run
	m.runIDs[r.ID] = true
	m.runs[r.ThreadID] = append(m.runs[r.ThreadID], &r)
	return nil
}

// ListRunsByThread returns runs in insertion order.
func (m *MockStore) ListRunsByThread(ctx context.Context, threadID string, limit int) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := m.runs[threadID]
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	out := make([]*Run, len(runs))
	for i, r := range runs {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
