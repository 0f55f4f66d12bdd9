// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers the thread registry, deletion stamps, and run ledger ordering/limiting

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_Memory(t *testing.T) {
	store, err := NewSQLiteStore(MemoryPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.RecordThread(ctx, &Thread{ID: "thread_mem", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("RecordThread failed: %v", err)
	}
	if _, err := store.GetThread(ctx, "thread_mem"); err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
}

func TestRecordAndGetThread(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	thread := &Thread{
		ID:        "thread_123",
		AgentID:   "asst_001",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	if err := store.RecordThread(ctx, thread); err != nil {
		t.Fatalf("RecordThread failed: %v", err)
	}

	got, err := store.GetThread(ctx, "thread_123")
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if got.AgentID != thread.AgentID {
		t.Errorf("AgentID mismatch: got %q, want %q", got.AgentID, thread.AgentID)
	}
	if !got.CreatedAt.Equal(thread.CreatedAt) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", got.CreatedAt, thread.CreatedAt)
	}
	if got.Deleted() {
		t.Error("new thread should not be deleted")
	}
}

func TestRecordThread_Idempotent(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	first := &Thread{ID: "thread_1", AgentID: "asst_a", CreatedAt: time.Now().UTC().Truncate(time.Second)}
	if err := store.RecordThread(ctx, first); err != nil {
		t.Fatalf("RecordThread failed: %v", err)
	}
	second := &Thread{ID: "thread_1", AgentID: "asst_b", CreatedAt: first.CreatedAt.Add(time.Hour)}
	if err := store.RecordThread(ctx, second); err != nil {
		t.Fatalf("second RecordThread failed: %v", err)
	}

	got, err := store.GetThread(ctx, "thread_1")
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if got.AgentID != "asst_a" {
		t.Errorf("expected original agent to be kept, got %q", got.AgentID)
	}
}

func TestGetThread_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.GetThread(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkThreadDeleted(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Second)
	if err := store.RecordThread(ctx, &Thread{ID: "thread_del", AgentID: "asst_1", CreatedAt: created}); err != nil {
		t.Fatalf("RecordThread failed: %v", err)
	}

	deletedAt := created.Add(time.Minute)
	if err := store.MarkThreadDeleted(ctx, "thread_del", deletedAt); err != nil {
		t.Fatalf("MarkThreadDeleted failed: %v", err)
	}

	got, err := store.GetThread(ctx, "thread_del")
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if !got.Deleted() {
		t.Fatal("thread should be marked deleted")
	}
	if !got.DeletedAt.Equal(deletedAt) {
		t.Errorf("DeletedAt mismatch: got %v, want %v", got.DeletedAt, deletedAt)
	}
	if got.AgentID != "asst_1" {
		t.Errorf("AgentID should survive deletion, got %q", got.AgentID)
	}
}

func TestMarkThreadDeleted_UnknownThread(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.MarkThreadDeleted(ctx, "thread_foreign", time.Now()); err != nil {
		t.Fatalf("MarkThreadDeleted failed: %v", err)
	}

	got, err := store.GetThread(ctx, "thread_foreign")
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if !got.Deleted() {
		t.Error("foreign thread should be registered as deleted")
	}
}

func TestRecordRun_AndList(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	runs := []*Run{
		{ID: "run_1", ThreadID: "thread_a", AgentID: "asst_1", Status: "completed", PromptTokens: 10, CompletionTokens: 5, CreatedAt: base},
		{ID: "run_2", ThreadID: "thread_a", AgentID: "asst_1", Status: "failed", ErrorCode: "rate_limit_exceeded", CreatedAt: base.Add(time.Second)},
		{ID: "run_3", ThreadID: "thread_b", AgentID: "asst_1", Status: "completed", CreatedAt: base},
		{ID: "run_4", ThreadID: "thread_a", AgentID: "asst_2", Status: "completed", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, r := range runs {
		if err := store.RecordRun(ctx, r); err != nil {
			t.Fatalf("RecordRun(%s) failed: %v", r.ID, err)
		}
	}

	got, err := store.ListRunsByThread(ctx, "thread_a", 0)
	if err != nil {
		t.Fatalf("ListRunsByThread failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(got))
	}
	wantOrder := []string{"run_1", "run_2", "run_4"}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("run %d: got %q, want %q", i, got[i].ID, id)
		}
	}
	if got[0].PromptTokens != 10 || got[0].CompletionTokens != 5 {
		t.Errorf("token counts not persisted: %+v", got[0])
	}
	if got[0].ErrorCode != "" {
		t.Errorf("expected empty error code, got %q", got[0].ErrorCode)
	}
	if got[1].ErrorCode != "rate_limit_exceeded" {
		t.Errorf("error code mismatch: got %q", got[1].ErrorCode)
	}

	limited, err := store.ListRunsByThread(ctx, "thread_a", 2)
	if err != nil {
		t.Fatalf("ListRunsByThread with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 runs with limit, got %d", len(limited))
	}

	none, err := store.ListRunsByThread(ctx, "thread_none", 0)
	if err != nil {
		t.Fatalf("ListRunsByThread failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no runs, got %d", len(none))
	}
}

func TestRecordRun_Duplicate(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	run := &Run{ID: "run_dup", ThreadID: "thread_a", AgentID: "asst_1", Status: "completed", CreatedAt: time.Now()}
	if err := store.RecordRun(ctx, run); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if err := store.RecordRun(ctx, run); !errors.Is(err, ErrDuplicateRun) {
		t.Errorf("expected ErrDuplicateRun, got %v", err)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := first.RecordThread(ctx, &Thread{ID: "thread_keep", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("RecordThread failed: %v", err)
	}
	first.Close()

	second, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()
	if _, err := second.GetThread(ctx, "thread_keep"); err != nil {
		t.Errorf("thread lost across reopen: %v", err)
	}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	return store
}
