// ABOUTME: Tests for the thread lifecycle service
// ABOUTME: Verifies sentinel handling, resume without creation, deletion errors, and registry writes

package conversation

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agent-relay/internal/agentsvc"
	"github.com/2389/agent-relay/internal/store"
)

// mockThreads implements ThreadService for testing
type mockThreads struct {
	created   int
	deleted   []string
	createErr error
	deleteErr error
}

func (m *mockThreads) CreateThread(ctx context.Context) (*agentsvc.Thread, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created++
	return &agentsvc.Thread{ID: "thread_new"}, nil
}

func (m *mockThreads) DeleteThread(ctx context.Context, threadID string) (*agentsvc.ThreadDeletion, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	m.deleted = append(m.deleted, threadID)
	return &agentsvc.ThreadDeletion{ID: threadID, Deleted: true}, nil
}

// failingRegistry fails every write
type failingRegistry struct{}

func (failingRegistry) RecordThread(context.Context, *store.Thread) error {
	return errors.New("disk full")
}

func (failingRegistry) MarkThreadDeleted(context.Context, string, time.Time) error {
	return errors.New("disk full")
}

func TestResolve_SentinelsCreateThread(t *testing.T) {
	for _, sentinel := range []string{"", "-1", "null"} {
		t.Run("sentinel="+sentinel, func(t *testing.T) {
			threads := &mockThreads{}
			registry := store.NewMockStore()
			svc := New(threads, registry, nil)

			res, err := svc.Resolve(context.Background(), sentinel, "asst_1")
			require.NoError(t, err)
			assert.True(t, res.Created)
			assert.Equal(t, "thread_new", res.ThreadID)
			assert.Equal(t, 1, threads.created)

			recorded, err := registry.GetThread(context.Background(), "thread_new")
			require.NoError(t, err)
			assert.Equal(t, "asst_1", recorded.AgentID)
		})
	}
}

func TestResolve_ExistingThreadIsNotCreated(t *testing.T) {
	threads := &mockThreads{}
	registry := store.NewMockStore()
	svc := New(threads, registry, nil)

	res, err := svc.Resolve(context.Background(), "thread_abc", "asst_1")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "thread_abc", res.ThreadID)
	assert.Zero(t, threads.created)

	_, err = registry.GetThread(context.Background(), "thread_abc")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResolve_CreateFailure(t *testing.T) {
	svc := New(&mockThreads{createErr: errors.New("boom")}, nil, nil)

	_, err := svc.Resolve(context.Background(), "", "asst_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating thread")
	assert.Contains(t, err.Error(), "boom")
}

func TestResolve_RegistryFailureDoesNotFail(t *testing.T) {
	svc := New(&mockThreads{}, failingRegistry{}, nil)

	res, err := svc.Resolve(context.Background(), "", "asst_1")
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestDelete_Success(t *testing.T) {
	threads := &mockThreads{}
	registry := store.NewMockStore()
	svc := New(threads, registry, nil)

	res, err := svc.Delete(context.Background(), "thread_abc")
	require.NoError(t, err)
	assert.Equal(t, "Thread thread_abc deleted.", res.Message)
	assert.Equal(t, []string{"thread_abc"}, threads.deleted)

	recorded, err := registry.GetThread(context.Background(), "thread_abc")
	require.NoError(t, err)
	assert.True(t, recorded.Deleted())
}

func TestDelete_MissingThreadID(t *testing.T) {
	svc := New(&mockThreads{}, nil, nil)
	_, err := svc.Delete(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingThreadID)
}

func TestDelete_FailureIsWrapped(t *testing.T) {
	cause := &agentsvc.APIError{StatusCode: http.StatusNotFound, Code: "not_found", Message: "No thread found"}
	registry := store.NewMockStore()
	svc := New(&mockThreads{deleteErr: cause}, registry, nil)

	_, err := svc.Delete(context.Background(), "thread_gone")
	require.Error(t, err)

	var delErr *DeleteError
	require.ErrorAs(t, err, &delErr)
	assert.Equal(t, "thread_gone", delErr.ThreadID)
	assert.True(t, errors.Is(err, agentsvc.ErrNotFound))
	assert.Equal(t, "Failed to delete thread thread_gone: "+cause.Error(), err.Error())

	_, err = registry.GetThread(context.Background(), "thread_gone")
	assert.ErrorIs(t, err, store.ErrNotFound, "failed deletions are not recorded")
}

func TestIsNewThreadSentinel(t *testing.T) {
	assert.True(t, IsNewThreadSentinel(""))
	assert.True(t, IsNewThreadSentinel("-1"))
	assert.True(t, IsNewThreadSentinel("null"))
	assert.False(t, IsNewThreadSentinel("thread_1"))
	assert.False(t, IsNewThreadSentinel("0"))
}
