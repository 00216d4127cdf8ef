// File path: internal/sqlite/store_test.go
package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nicodishanthj/knowbase/internal/catalog"
	"github.com/nicodishanthj/knowbase/internal/tasks"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "knowbase.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenFreshDatabaseMigratesAndEnablesWAL(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatalf("open fresh database: %v", err)
	}
	defer store.Close()

	var mode string
	if err := store.DB().Get(&mode, `PRAGMA journal_mode`); err != nil {
		t.Fatalf("query journal mode: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}
	// The migrated schema must be immediately writable.
	if err := store.InsertFile(context.Background(), testFile("kb1", "doc.txt", "h1")); err != nil {
		t.Fatalf("insert into fresh database: %v", err)
	}
}

func testFile(kb, filename, hash string) *catalog.FileRecord {
	return &catalog.FileRecord{
		ID:               uuid.NewString(),
		Filename:         filename,
		OriginalFilename: filename,
		ContentType:      "text/plain",
		Size:             12,
		ContentHash:      hash,
		Content:          []byte("file content"),
		KnowledgeBase:    kb,
		Metadata:         catalog.Metadata{"source": "test"},
	}
}

func TestInsertAndLookupFile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	file := testFile("kb1", "doc.txt", "hash-1")
	if err := store.InsertFile(ctx, file); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if file.CreatedAt.IsZero() || file.UpdatedAt.IsZero() {
		t.Fatal("timestamps should be set on insert")
	}

	byID, err := store.FileByID(ctx, file.ID)
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if byID.Filename != "doc.txt" || string(byID.Content) != "file content" {
		t.Fatalf("record = %+v", byID)
	}
	if byID.Metadata["source"] != "test" {
		t.Fatalf("metadata = %v", byID.Metadata)
	}
	if !byID.Inline() {
		t.Fatal("record without storage path should be inline")
	}

	byHash, err := store.FileByHash(ctx, "kb1", "hash-1")
	if err != nil || byHash.ID != file.ID {
		t.Fatalf("by hash: %v, %+v", err, byHash)
	}
	byName, err := store.FileByName(ctx, "kb1", "doc.txt")
	if err != nil || byName.ID != file.ID {
		t.Fatalf("by name: %v, %+v", err, byName)
	}

	if _, err := store.FileByID(ctx, "missing"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("missing id = %v, want ErrNotFound", err)
	}
	if _, err := store.FileByHash(ctx, "kb2", "hash-1"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("other knowledge base should not see the hash, got %v", err)
	}
}

func TestDuplicateHashRejectedWithinKnowledgeBase(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.InsertFile(ctx, testFile("kb1", "a.txt", "same-hash")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := store.InsertFile(ctx, testFile("kb1", "b.txt", "same-hash"))
	if err == nil || !strings.Contains(err.Error(), "UNIQUE") {
		t.Fatalf("err = %v, want unique violation", err)
	}
	// Same bytes in another knowledge base are a distinct record.
	if err := store.InsertFile(ctx, testFile("kb2", "a.txt", "same-hash")); err != nil {
		t.Fatalf("other knowledge base insert: %v", err)
	}
}

func TestStoragePathRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	file := testFile("kb1", "big.bin", "hash-big")
	file.Content = nil
	file.StoragePath = "ha/hash-big.bin"
	if err := store.InsertFile(ctx, file); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := store.FileByID(ctx, file.ID)
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if got.Inline() || got.StoragePath != "ha/hash-big.bin" {
		t.Fatalf("record = %+v, want object-backed", got)
	}
	paths, err := store.StoragePaths(ctx)
	if err != nil || len(paths) != 1 || paths[0] != "ha/hash-big.bin" {
		t.Fatalf("paths = %v, %v", paths, err)
	}
}

func TestListingOmitsBlobContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.InsertFile(ctx, testFile("kb1", "doc.txt", "h1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	files, err := store.FilesForKnowledgeBase(ctx, "kb1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files = %d, want 1", len(files))
	}
	if len(files[0].Content) != 0 {
		t.Fatal("listings should not carry inline payloads")
	}
	if files[0].Size != 12 {
		t.Fatalf("size = %d, want 12", files[0].Size)
	}
}

func testChunkSet(kb, filename, fileID string, count int) *catalog.ChunkSet {
	return &catalog.ChunkSet{
		ID:            uuid.NewString(),
		FileID:        fileID,
		Filename:      filename,
		ChunkCount:    count,
		Size:          int64(count * 100),
		KnowledgeBase: kb,
	}
}

func TestLinkChunkSetsOnlyTouchesUnlinkedRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	unlinked := testChunkSet("kb1", "doc.txt", "", 3)
	alreadyLinked := testChunkSet("kb1", "doc.txt", "existing-file", 2)
	otherName := testChunkSet("kb1", "other.txt", "", 1)
	for _, set := range []*catalog.ChunkSet{unlinked, alreadyLinked, otherName} {
		if err := store.InsertChunkSet(ctx, set); err != nil {
			t.Fatalf("insert set: %v", err)
		}
	}

	linked, err := store.LinkChunkSets(ctx, "kb1", "doc.txt", "new-file")
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if linked != 1 {
		t.Fatalf("linked = %d, want 1", linked)
	}
	got, err := store.ChunkSetByID(ctx, unlinked.ID)
	if err != nil || got.FileID != "new-file" {
		t.Fatalf("set = %+v, %v", got, err)
	}
	kept, err := store.ChunkSetByID(ctx, alreadyLinked.ID)
	if err != nil || kept.FileID != "existing-file" {
		t.Fatalf("linked row must not be re-pointed: %+v", kept)
	}

	forFile, err := store.ChunkSetsForFile(ctx, "new-file")
	if err != nil || len(forFile) != 1 || forFile[0].ID != unlinked.ID {
		t.Fatalf("sets for file = %+v, %v", forFile, err)
	}
}

func TestSetChunkCountAndNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	set := testChunkSet("kb1", "doc.txt", "", 5)
	if err := store.InsertChunkSet(ctx, set); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.SetChunkCount(ctx, set.ID, 0); err != nil {
		t.Fatalf("set count: %v", err)
	}
	got, err := store.ChunkSetByID(ctx, set.ID)
	if err != nil || got.ChunkCount != 0 {
		t.Fatalf("set = %+v, %v", got, err)
	}
	if err := store.SetChunkCount(ctx, "missing", 0); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecomputeStatsIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.InsertFile(ctx, testFile("kb1", "a.txt", "h1")); err != nil {
		t.Fatalf("insert file: %v", err)
	}
	if err := store.InsertChunkSet(ctx, testChunkSet("kb1", "a.txt", "", 4)); err != nil {
		t.Fatalf("insert set: %v", err)
	}
	if err := store.InsertChunkSet(ctx, testChunkSet("kb1", "b.txt", "", 6)); err != nil {
		t.Fatalf("insert set: %v", err)
	}

	first, err := store.RecomputeStats(ctx, "kb1")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if first.FileCount != 2 || first.ChunkCount != 10 {
		t.Fatalf("stats = %+v, want 2 chunk-sets and 10 chunks", first)
	}
	for i := 0; i < 3; i++ {
		again, err := store.RecomputeStats(ctx, "kb1")
		if err != nil {
			t.Fatalf("recompute %d: %v", i, err)
		}
		if again.FileCount != first.FileCount || again.ChunkCount != first.ChunkCount {
			t.Fatalf("recompute diverged: %+v vs %+v", again, first)
		}
	}

	empty, err := store.RecomputeStats(ctx, "brand-new")
	if err != nil {
		t.Fatalf("recompute absent: %v", err)
	}
	if empty.FileCount != 0 || empty.ChunkCount != 0 {
		t.Fatalf("stats = %+v, want zeroed row for absent knowledge base", empty)
	}
}

func TestKnowledgeBaseNamesSpansAllTiers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// No knowledge_bases rows exist yet: both bases are known only through
	// their file and chunk-set rows.
	if err := store.InsertFile(ctx, testFile("kb-files", "a.txt", "h1")); err != nil {
		t.Fatalf("insert file: %v", err)
	}
	if err := store.InsertChunkSet(ctx, testChunkSet("kb-sets", "b.txt", "", 2)); err != nil {
		t.Fatalf("insert set: %v", err)
	}

	names, err := store.KnowledgeBaseNames(ctx)
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	want := []string{"kb-files", "kb-sets"}
	if len(names) != len(want) || names[0] != want[0] || names[1] != want[1] {
		t.Fatalf("names = %v, want %v", names, want)
	}

	// Recomputing adds an aggregate row; the name must not repeat.
	if _, err := store.RecomputeStats(ctx, "kb-sets"); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	again, err := store.KnowledgeBaseNames(ctx)
	if err != nil {
		t.Fatalf("names after recompute: %v", err)
	}
	if len(again) != 2 {
		t.Fatalf("names after recompute = %v, want no duplicates", again)
	}
}

func TestClearKnowledgeBaseScopesDeletion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.InsertFile(ctx, testFile("kb1", "a.txt", "h1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.InsertChunkSet(ctx, testChunkSet("kb1", "a.txt", "", 3)); err != nil {
		t.Fatalf("insert set: %v", err)
	}
	if err := store.InsertFile(ctx, testFile("kb2", "b.txt", "h2")); err != nil {
		t.Fatalf("insert other: %v", err)
	}

	if err := store.ClearKnowledgeBase(ctx, "kb1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	files, err := store.FilesForKnowledgeBase(ctx, "kb1")
	if err != nil || len(files) != 0 {
		t.Fatalf("kb1 files = %v, %v", files, err)
	}
	sets, err := store.ChunkSetsForKnowledgeBase(ctx, "kb1")
	if err != nil || len(sets) != 0 {
		t.Fatalf("kb1 sets = %v, %v", sets, err)
	}
	other, err := store.FilesForKnowledgeBase(ctx, "kb2")
	if err != nil || len(other) != 1 {
		t.Fatalf("kb2 files = %v, %v, must be untouched", other, err)
	}
}

func TestTaskUpsertPreservesCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	first := tasks.Progress{
		TaskID:    "t1",
		Status:    tasks.StatusPending,
		Message:   "created",
		CreatedAt: created,
		UpdatedAt: created,
	}
	if err := store.UpsertTask(ctx, first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second := first
	second.Status = tasks.StatusCompleted
	second.Progress = 1
	second.Result = map[string]any{"chunks": 3}
	second.CreatedAt = time.Now().UTC()
	second.UpdatedAt = time.Now().UTC()
	if err := store.UpsertTask(ctx, second); err != nil {
		t.Fatalf("upsert update: %v", err)
	}

	got, err := store.TaskByID(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != tasks.StatusCompleted {
		t.Fatalf("status = %q", got.Status)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created_at = %v, want preserved %v", got.CreatedAt, created)
	}
	if got.Result["chunks"] != float64(3) {
		t.Fatalf("result = %v", got.Result)
	}
	if _, err := store.TaskByID(ctx, "missing"); !errors.Is(err, tasks.ErrNotFound) {
		t.Fatalf("missing task = %v, want ErrNotFound", err)
	}
}

func TestListTasksOrderAndCleanup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i, id := range []string{"t1", "t2", "t3"} {
		entry := tasks.Progress{
			TaskID:    id,
			Status:    tasks.StatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			UpdatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.UpsertTask(ctx, entry); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	listed, err := store.ListTasks(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 || listed[0].TaskID != "t3" || listed[1].TaskID != "t2" {
		t.Fatalf("listed = %+v, want newest first with limit", listed)
	}

	removed, err := store.CleanupTasks(ctx, base.Add(1500*time.Millisecond))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	remaining, err := store.ListTasks(ctx, 10)
	if err != nil || len(remaining) != 1 || remaining[0].TaskID != "t3" {
		t.Fatalf("remaining = %+v, %v", remaining, err)
	}
}
