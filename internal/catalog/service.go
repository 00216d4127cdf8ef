// File path: internal/catalog/service.go
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nicodishanthj/knowbase/internal/common"
)

// Service owns the three-tier hierarchy: knowledge base, file record and
// chunk-set. It is the only writer of those row lifecycles, and the only
// component that issues scoped deletions to the external chunk index.
type Service struct {
	store  Store
	index  ChunkIndex
	logger *slog.Logger
}

func NewService(store Store, index ChunkIndex) *Service {
	return &Service{store: store, index: index, logger: common.Logger()}
}

// CreateChunkSetRequest carries one chunking result. FileID may be left empty;
// the service then resolves the owning file by filename within the knowledge
// base, or leaves the chunk-set unlinked until the file is uploaded later.
type CreateChunkSetRequest struct {
	FileID        string
	Filename      string
	KnowledgeBase string
	Chunks        []string
	Metadata      Metadata
}

// CreateChunkSet pushes the chunks to the index, persists one chunk-set row
// for the source document, and recomputes the knowledge base aggregates.
// Index writes happen before the row insert, so a failure can never leave a
// row claiming chunks that were not indexed.
func (s *Service) CreateChunkSet(ctx context.Context, req CreateChunkSetRequest) (*ChunkSet, error) {
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return nil, fmt.Errorf("filename required")
	}
	kb := strings.TrimSpace(req.KnowledgeBase)
	if kb == "" {
		return nil, fmt.Errorf("knowledge base required")
	}

	fileID := strings.TrimSpace(req.FileID)
	if fileID == "" {
		if file, err := s.store.FileByName(ctx, kb, filename); err == nil {
			fileID = file.ID
		}
	}

	set := &ChunkSet{
		ID:            uuid.NewString(),
		FileID:        fileID,
		Filename:      filename,
		ChunkCount:    len(req.Chunks),
		KnowledgeBase: kb,
		Metadata:      req.Metadata,
	}
	for _, chunk := range req.Chunks {
		set.Size += int64(len(chunk))
	}

	if len(req.Chunks) > 0 && s.indexReady() {
		chunks := make([]Chunk, 0, len(req.Chunks))
		for i, text := range req.Chunks {
			chunks = append(chunks, Chunk{
				ID:            fmt.Sprintf("%s:%d", set.ID, i),
				Filename:      filename,
				Index:         i,
				Content:       text,
				KnowledgeBase: kb,
				Metadata: map[string]any{
					"filename":     filename,
					"chunk_index":  i,
					"total_chunks": len(req.Chunks),
				},
			})
		}
		if _, err := s.index.AddChunks(ctx, kb, chunks); err != nil {
			return nil, fmt.Errorf("index chunks for %s: %w", filename, err)
		}
	}

	if err := s.store.InsertChunkSet(ctx, set); err != nil {
		return nil, err
	}
	if _, err := s.store.RecomputeStats(ctx, kb); err != nil {
		s.logger.Warn("catalog: stat recompute after chunk-set insert failed", "knowledge_base", kb, "error", err)
	}
	s.logger.Info("catalog: chunk-set created",
		"knowledge_base", kb, "filename", filename, "chunks", set.ChunkCount, "linked", set.Linked())
	return set, nil
}

// LinkFile retroactively attaches a freshly uploaded file to any chunk-sets
// created before it, matched by filename within the knowledge base. Invoked
// whenever either side of the correlation is created.
func (s *Service) LinkFile(ctx context.Context, knowledgeBase, filename, fileID string) error {
	linked, err := s.store.LinkChunkSets(ctx, knowledgeBase, filename, fileID)
	if err != nil {
		return err
	}
	if linked > 0 {
		s.logger.Info("catalog: linked chunk-sets to file",
			"knowledge_base", knowledgeBase, "filename", filename, "file_id", fileID, "count", linked)
	}
	return nil
}

// DeleteChunksOnly removes the indexed chunks for a chunk-set and zeroes its
// chunk count, keeping both the chunk-set row and any file record. This soft
// truncation is deliberately asymmetric to DeleteFileAndChunks.
func (s *Service) DeleteChunksOnly(ctx context.Context, chunkSetID string) error {
	set, err := s.store.ChunkSetByID(ctx, chunkSetID)
	if err != nil {
		return err
	}
	s.deleteIndexed(ctx, set.KnowledgeBase, set.Filename)
	if err := s.store.SetChunkCount(ctx, set.ID, 0); err != nil {
		return err
	}
	if _, err := s.store.RecomputeStats(ctx, set.KnowledgeBase); err != nil {
		s.logger.Warn("catalog: stat recompute after truncation failed", "knowledge_base", set.KnowledgeBase, "error", err)
	}
	return nil
}

// DeleteFileAndChunks is the complete deletion path: indexed chunks, every
// chunk-set owned by the file, and the file record itself.
func (s *Service) DeleteFileAndChunks(ctx context.Context, fileID string) error {
	file, err := s.store.FileByID(ctx, fileID)
	if err != nil {
		return err
	}
	s.deleteIndexed(ctx, file.KnowledgeBase, file.Filename)
	if err := s.store.DeleteChunkSetsForFile(ctx, file.ID); err != nil {
		return err
	}
	if err := s.store.DeleteFile(ctx, file.ID); err != nil {
		return err
	}
	if _, err := s.store.RecomputeStats(ctx, file.KnowledgeBase); err != nil {
		s.logger.Warn("catalog: stat recompute after delete failed", "knowledge_base", file.KnowledgeBase, "error", err)
	}
	s.logger.Info("catalog: file and chunks deleted",
		"knowledge_base", file.KnowledgeBase, "filename", file.Filename, "file_id", file.ID)
	return nil
}

// ClearKnowledgeBase removes everything scoped to the name as one logical
// unit. The index is cleared first: if that fails the relational rows stay
// put, so chunks can never end up referencing deleted file records.
func (s *Service) ClearKnowledgeBase(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("knowledge base required")
	}
	if s.indexReady() {
		if err := s.index.DeleteKnowledgeBase(ctx, name); err != nil {
			return fmt.Errorf("clear index for %s: %w", name, err)
		}
	}
	if err := s.store.ClearKnowledgeBase(ctx, name); err != nil {
		return err
	}
	if _, err := s.store.RecomputeStats(ctx, name); err != nil {
		s.logger.Warn("catalog: stat recompute after clear failed", "knowledge_base", name, "error", err)
	}
	s.logger.Info("catalog: knowledge base cleared", "knowledge_base", name)
	return nil
}

// RecomputeStats rebuilds the derived aggregates for one knowledge base. Safe
// to call any number of times; concurrent callers converge on the same value
// because the counters are recomputed from rows, never incremented.
func (s *Service) RecomputeStats(ctx context.Context, name string) (*KnowledgeBase, error) {
	return s.store.RecomputeStats(ctx, name)
}

// RefreshAllStats recomputes aggregates for every known knowledge base. This
// is the self-healing sweep used after partial failures elsewhere; names are
// derived from the source tables, so a knowledge base whose aggregate row was
// never created is swept too.
func (s *Service) RefreshAllStats(ctx context.Context) error {
	names, err := s.store.KnowledgeBaseNames(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := s.store.RecomputeStats(ctx, name); err != nil {
			return fmt.Errorf("recompute %s: %w", name, err)
		}
	}
	return nil
}

// Stats returns the aggregate row for a knowledge base.
func (s *Service) Stats(ctx context.Context, name string) (*KnowledgeBase, error) {
	return s.store.KnowledgeBase(ctx, name)
}

// ListFiles returns the file records scoped to a knowledge base.
func (s *Service) ListFiles(ctx context.Context, knowledgeBase string) ([]FileRecord, error) {
	return s.store.FilesForKnowledgeBase(ctx, knowledgeBase)
}

// GetFile returns a single file record by id.
func (s *Service) GetFile(ctx context.Context, fileID string) (*FileRecord, error) {
	return s.store.FileByID(ctx, fileID)
}

// ChunkSets returns the chunk-set records scoped to a knowledge base.
func (s *Service) ChunkSets(ctx context.Context, knowledgeBase string) ([]ChunkSet, error) {
	return s.store.ChunkSetsForKnowledgeBase(ctx, knowledgeBase)
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Available()
}

// deleteIndexed issues a scoped chunk deletion and downgrades index
// unavailability to a warning: with no reachable index there is nothing to
// delete, and the chunk_count bookkeeping stays correct either way.
func (s *Service) deleteIndexed(ctx context.Context, knowledgeBase, filename string) {
	if !s.indexReady() {
		return
	}
	if err := s.index.DeleteByFilename(ctx, knowledgeBase, filename); err != nil {
		s.logger.Warn("catalog: index chunk deletion failed",
			"knowledge_base", knowledgeBase, "filename", filename, "error", err)
	}
}
