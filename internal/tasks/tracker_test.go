// File path: internal/tasks/tracker_test.go
package tasks

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

type stubStore struct {
	entries map[string]Progress
	fail    bool
}

func newStubStore() *stubStore {
	return &stubStore{entries: make(map[string]Progress)}
}

func (s *stubStore) UpsertTask(_ context.Context, progress Progress) error {
	if s.fail {
		return errors.New("store offline")
	}
	if existing, ok := s.entries[progress.TaskID]; ok {
		progress.CreatedAt = existing.CreatedAt
	}
	s.entries[progress.TaskID] = progress
	return nil
}

func (s *stubStore) TaskByID(_ context.Context, taskID string) (*Progress, error) {
	if s.fail {
		return nil, errors.New("store offline")
	}
	entry, ok := s.entries[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return &entry, nil
}

func (s *stubStore) ListTasks(_ context.Context, limit int) ([]Progress, error) {
	if s.fail {
		return nil, errors.New("store offline")
	}
	out := make([]Progress, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubStore) CleanupTasks(_ context.Context, olderThan time.Time) (int64, error) {
	if s.fail {
		return 0, errors.New("store offline")
	}
	var removed int64
	for id, entry := range s.entries {
		if entry.UpdatedAt.Before(olderThan) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

func TestSubmitCreatesPendingTask(t *testing.T) {
	store := newStubStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	taskID := tracker.Submit(ctx)
	if taskID == "" {
		t.Fatal("expected a task id")
	}
	entry, err := tracker.Get(ctx, taskID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Status != StatusPending {
		t.Fatalf("status = %q, want %q", entry.Status, StatusPending)
	}
	if entry.Progress != 0 {
		t.Fatalf("progress = %v, want 0", entry.Progress)
	}
	if _, ok := store.entries[taskID]; !ok {
		t.Fatal("expected task persisted in durable store")
	}
}

func TestUpdateClampsProgressAndCoercesStatus(t *testing.T) {
	tracker := NewTracker(newStubStore())
	ctx := context.Background()

	tracker.Update(ctx, "t1", Status("bogus"), 1.7, "over", nil, "")
	entry, err := tracker.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Status != StatusPending {
		t.Fatalf("status = %q, want pending for unknown input", entry.Status)
	}
	if entry.Progress != 1 {
		t.Fatalf("progress = %v, want clamped to 1", entry.Progress)
	}

	tracker.Update(ctx, "t1", StatusProcessing, -0.5, "under", nil, "")
	entry, err = tracker.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Progress != 0 {
		t.Fatalf("progress = %v, want clamped to 0", entry.Progress)
	}
}

func TestMemoryFallbackWhenDurableFails(t *testing.T) {
	store := newStubStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	tracker.Update(ctx, "t1", StatusProcessing, 0.3, "splitting", nil, "")
	store.fail = true
	tracker.Update(ctx, "t1", StatusCompleted, 1, "done", map[string]any{"chunks": 4}, "")

	entry, err := tracker.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed from memory fallback", entry.Status)
	}
	if entry.Result["chunks"] != 4 {
		t.Fatalf("result = %v, want chunks=4", entry.Result)
	}
}

func TestGetPrefersNewerMemoryEntry(t *testing.T) {
	store := newStubStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	tracker.Update(ctx, "t1", StatusProcessing, 0.5, "chunking", nil, "")
	// Simulate a degraded write that only landed in memory: the durable tier
	// accepts reads but rejected the last write.
	stale := store.entries["t1"]
	tracker.mu.Lock()
	newer := tracker.mem["t1"]
	newer.Status = StatusFailed
	newer.Error = "split failed"
	newer.UpdatedAt = stale.UpdatedAt.Add(time.Second)
	tracker.mem["t1"] = newer
	tracker.mu.Unlock()

	entry, err := tracker.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Status != StatusFailed {
		t.Fatalf("status = %q, want the newer memory entry", entry.Status)
	}
}

func TestCreatedAtPreservedAcrossUpdates(t *testing.T) {
	store := newStubStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	tracker.Update(ctx, "t1", StatusPending, 0, "created", nil, "")
	first, err := tracker.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	tracker.Update(ctx, "t1", StatusProcessing, 0.5, "working", nil, "")
	second, err := tracker.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at changed across updates: %v vs %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("updated_at did not advance")
	}
}

func TestListMergesMemoryOnlyEntries(t *testing.T) {
	store := newStubStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	tracker.Update(ctx, "durable-task", StatusCompleted, 1, "done", nil, "")
	store.fail = true
	tracker.Update(ctx, "memory-task", StatusProcessing, 0.3, "working", nil, "")
	store.fail = false

	entries, err := tracker.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	ids := make(map[string]bool)
	for _, entry := range entries {
		ids[entry.TaskID] = true
	}
	if !ids["durable-task"] || !ids["memory-task"] {
		t.Fatalf("list = %v, want both tiers represented", ids)
	}
	if entries[0].TaskID != "memory-task" {
		t.Fatalf("first entry = %q, want most recently updated", entries[0].TaskID)
	}
}

func TestCleanupRemovesStaleTasks(t *testing.T) {
	store := newStubStore()
	tracker := NewTracker(store)
	ctx := context.Background()

	backdate := func(id string, days int) {
		tracker.mu.Lock()
		stale := tracker.mem[id]
		stale.UpdatedAt = time.Now().UTC().AddDate(0, 0, -days)
		tracker.mem[id] = stale
		tracker.mu.Unlock()
		if _, ok := store.entries[id]; ok {
			store.entries[id] = stale
		}
	}

	tracker.Update(ctx, "old", StatusCompleted, 1, "done", nil, "")
	backdate("old", 30)

	// A degraded write that only ever reached the memory tier.
	store.fail = true
	tracker.Update(ctx, "old-memory-only", StatusFailed, 0.5, "degraded", nil, "boom")
	store.fail = false
	backdate("old-memory-only", 30)

	tracker.Update(ctx, "fresh", StatusProcessing, 0.5, "working", nil, "")

	removed, err := tracker.Cleanup(ctx, 7)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	// "old" lives in both tiers but is one task; "old-memory-only" exists
	// only in memory. Two tasks removed, not three tier entries.
	if removed != 2 {
		t.Fatalf("removed = %d, want 2 distinct tasks", removed)
	}
	if _, err := tracker.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old task gone, got %v", err)
	}
	if _, err := tracker.Get(ctx, "old-memory-only"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected memory-only task gone, got %v", err)
	}
	if _, err := tracker.Get(ctx, "fresh"); err != nil {
		t.Fatalf("fresh task should survive: %v", err)
	}
}

func TestTrackerWithoutDurableStore(t *testing.T) {
	tracker := NewTracker(nil)
	ctx := context.Background()

	taskID := tracker.Submit(ctx)
	tracker.Update(ctx, taskID, StatusCompleted, 1, "done", nil, "")
	entry, err := tracker.Get(ctx, taskID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", entry.Status)
	}
}
