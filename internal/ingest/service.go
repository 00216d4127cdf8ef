// File path: internal/ingest/service.go
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/nicodishanthj/knowbase/internal/catalog"
	"github.com/nicodishanthj/knowbase/internal/common"
	"github.com/nicodishanthj/knowbase/internal/filestore"
	"github.com/nicodishanthj/knowbase/internal/splitter"
	"github.com/nicodishanthj/knowbase/internal/tasks"
)

// Mode selects which artifacts an upload produces.
type Mode string

const (
	// ModeChunksOnly splits and indexes without persisting the raw document.
	ModeChunksOnly Mode = "chunks-only"
	// ModeRawOnly persists the raw document without chunking.
	ModeRawOnly Mode = "raw-only"
	// ModeBoth persists the raw document and indexes its chunks.
	ModeBoth Mode = "both"
)

// ParseMode validates a mode string, defaulting empty input to ModeBoth.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeChunksOnly:
		return ModeChunksOnly, nil
	case ModeRawOnly:
		return ModeRawOnly, nil
	case ModeBoth, "":
		return ModeBoth, nil
	default:
		return "", fmt.Errorf("unknown ingest mode %q", value)
	}
}

const defaultWorkers = 4

// Service orchestrates the document lifecycle: upload acceptance, background
// splitting and storage, progress tracking, and the management operations
// layered over the catalog.
type Service struct {
	files    *filestore.Hybrid
	catalog  *catalog.Service
	splitter *splitter.Splitter
	tracker  *tasks.Tracker
	registry *Registry
	pool     *ants.Pool
	logger   *slog.Logger
}

// NewService builds the orchestrator over its collaborators with a bounded
// worker pool for background jobs.
func NewService(files *filestore.Hybrid, cat *catalog.Service, split *splitter.Splitter, tracker *tasks.Tracker, workers int) (*Service, error) {
	if workers <= 0 {
		workers = defaultWorkers
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("ingest: create worker pool: %w", err)
	}
	return &Service{
		files:    files,
		catalog:  cat,
		splitter: split,
		tracker:  tracker,
		registry: NewRegistry(),
		pool:     pool,
		logger:   common.Logger(),
	}, nil
}

// Close drains the worker pool.
func (s *Service) Close() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// Registry exposes the per-process knowledge base registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Ingest accepts an upload and schedules its processing, returning the task
// id immediately. All subsequent outcomes, success or failure, surface only
// through the task's status.
func (s *Service) Ingest(ctx context.Context, data []byte, filename, knowledgeBase string, mode Mode) (string, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return "", fmt.Errorf("ingest: filename required")
	}
	knowledgeBase = strings.TrimSpace(knowledgeBase)
	if knowledgeBase == "" {
		return "", fmt.Errorf("ingest: knowledge base required")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("ingest: empty upload")
	}
	mode, err := ParseMode(string(mode))
	if err != nil {
		return "", err
	}

	taskID := s.tracker.Submit(ctx)
	s.tracker.Update(ctx, taskID, tasks.StatusProcessing, 0.1, "upload accepted", nil, "")
	s.registry.Touch(knowledgeBase)

	payload := make([]byte, len(data))
	copy(payload, data)
	if err := s.pool.Submit(func() {
		// The request context dies with the caller; background work gets its own.
		s.run(context.Background(), taskID, payload, filename, knowledgeBase, mode)
	}); err != nil {
		s.tracker.Update(ctx, taskID, tasks.StatusFailed, 0.1, "could not schedule processing", nil, err.Error())
		return taskID, fmt.Errorf("ingest: schedule task: %w", err)
	}
	s.logger.Info("ingest: upload accepted",
		"task_id", taskID, "knowledge_base", knowledgeBase, "filename", filename, "mode", mode, "size", len(data))
	return taskID, nil
}

func (s *Service) run(ctx context.Context, taskID string, data []byte, filename, knowledgeBase string, mode Mode) {
	fail := func(progress float64, stage string, err error) {
		s.logger.Error("ingest: task failed",
			"task_id", taskID, "knowledge_base", knowledgeBase, "filename", filename, "stage", stage, "error", err)
		s.tracker.Update(ctx, taskID, tasks.StatusFailed, progress, stage, nil, err.Error())
	}

	var chunks []string
	if mode != ModeRawOnly {
		split, err := s.splitter.SplitText(string(data))
		if err != nil {
			fail(0.1, "splitting document", err)
			return
		}
		chunks = split
	}
	s.tracker.Update(ctx, taskID, tasks.StatusProcessing, 0.3, "document split", nil, "")

	var (
		record  *catalog.FileRecord
		deduped bool
	)
	if mode != ModeChunksOnly {
		stored, dup, err := s.files.Store(ctx, data, filename, knowledgeBase, nil)
		if err != nil {
			fail(0.3, "storing document", err)
			return
		}
		record, deduped = stored, dup
		if err := s.catalog.LinkFile(ctx, knowledgeBase, filename, record.ID); err != nil {
			fail(0.5, "linking chunk-sets", err)
			return
		}
	}
	s.tracker.Update(ctx, taskID, tasks.StatusProcessing, 0.5, "document stored", nil, "")

	var set *catalog.ChunkSet
	if mode != ModeRawOnly {
		req := catalog.CreateChunkSetRequest{
			Filename:      filename,
			KnowledgeBase: knowledgeBase,
			Chunks:        chunks,
		}
		if record != nil {
			req.FileID = record.ID
		}
		created, err := s.catalog.CreateChunkSet(ctx, req)
		if err != nil {
			fail(0.5, "indexing chunks", err)
			return
		}
		set = created
	}
	s.tracker.Update(ctx, taskID, tasks.StatusProcessing, 0.8, "chunks indexed", nil, "")

	result := map[string]any{
		"filename":       filename,
		"knowledge_base": knowledgeBase,
		"mode":           string(mode),
	}
	if record != nil {
		result["file_id"] = record.ID
		result["deduplicated"] = deduped
	}
	if set != nil {
		result["chunk_set_id"] = set.ID
		result["chunks"] = set.ChunkCount
	}
	s.tracker.Update(ctx, taskID, tasks.StatusCompleted, 1.0, "ingestion complete", result, "")
	s.logger.Info("ingest: task completed",
		"task_id", taskID, "knowledge_base", knowledgeBase, "filename", filename, "deduplicated", deduped)
}

// GetTask returns the progress record for a task.
func (s *Service) GetTask(ctx context.Context, taskID string) (*tasks.Progress, error) {
	return s.tracker.Get(ctx, taskID)
}

// ListTasks returns recent tasks.
func (s *Service) ListTasks(ctx context.Context, limit int) ([]tasks.Progress, error) {
	return s.tracker.List(ctx, limit)
}

// CleanupTasks drops task records older than the retention window.
func (s *Service) CleanupTasks(ctx context.Context, olderThanDays int) (int64, error) {
	return s.tracker.Cleanup(ctx, olderThanDays)
}

// FileInfo pairs a file record with the live chunk count summed over its
// chunk-sets.
type FileInfo struct {
	catalog.FileRecord
	ChunkCount int `json:"chunk_count"`
}

// ListFiles returns the files of a knowledge base with their current chunk
// counts.
func (s *Service) ListFiles(ctx context.Context, knowledgeBase string) ([]FileInfo, error) {
	files, err := s.catalog.ListFiles(ctx, knowledgeBase)
	if err != nil {
		return nil, err
	}
	sets, err := s.catalog.ChunkSets(ctx, knowledgeBase)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(sets))
	for _, set := range sets {
		if set.Linked() {
			counts[set.FileID] += set.ChunkCount
		}
	}
	out := make([]FileInfo, 0, len(files))
	for _, file := range files {
		out = append(out, FileInfo{FileRecord: file, ChunkCount: counts[file.ID]})
	}
	return out, nil
}

// GetFile returns a single file record.
func (s *Service) GetFile(ctx context.Context, fileID string) (*catalog.FileRecord, error) {
	return s.catalog.GetFile(ctx, fileID)
}

// Download returns a file's payload regardless of storage placement.
func (s *Service) Download(ctx context.Context, fileID string) (*catalog.FileRecord, []byte, error) {
	return s.files.Retrieve(ctx, fileID)
}

// DownloadURL returns a short-lived direct link for object-backed files.
func (s *Service) DownloadURL(ctx context.Context, fileID string, expiry time.Duration) (string, error) {
	return s.files.DownloadURL(ctx, fileID, expiry)
}

// DeleteChunks performs soft truncation of one chunk-set.
func (s *Service) DeleteChunks(ctx context.Context, chunkSetID string) error {
	return s.catalog.DeleteChunksOnly(ctx, chunkSetID)
}

// DeleteFile removes a file and everything derived from it.
func (s *Service) DeleteFile(ctx context.Context, fileID string) error {
	return s.catalog.DeleteFileAndChunks(ctx, fileID)
}

// ClearKnowledgeBase removes all data scoped to the name and drops its
// in-process registry entry.
func (s *Service) ClearKnowledgeBase(ctx context.Context, name string) error {
	if err := s.catalog.ClearKnowledgeBase(ctx, name); err != nil {
		return err
	}
	s.registry.Clear(name)
	return nil
}

// Stats returns the aggregate counters for a knowledge base.
func (s *Service) Stats(ctx context.Context, name string) (*catalog.KnowledgeBase, error) {
	return s.catalog.Stats(ctx, name)
}

// RefreshAllStats recomputes aggregates for every knowledge base.
func (s *Service) RefreshAllStats(ctx context.Context) error {
	return s.catalog.RefreshAllStats(ctx)
}

// SweepOrphans reclaims blob objects no catalog row references.
func (s *Service) SweepOrphans(ctx context.Context) (int64, error) {
	return s.files.SweepOrphans(ctx)
}
