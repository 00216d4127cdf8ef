// File path: internal/sqlite/chunksets.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nicodishanthj/knowbase/internal/catalog"
)

// InsertChunkSet persists one chunking result record.
func (s *Store) InsertChunkSet(ctx context.Context, set *catalog.ChunkSet) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if set == nil || strings.TrimSpace(set.ID) == "" {
		return fmt.Errorf("chunk-set id required")
	}
	now := time.Now().UTC()
	if set.CreatedAt.IsZero() {
		set.CreatedAt = now
	}
	set.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
INSERT INTO document_metadata(id, file_id, filename, chunk_count, size, knowledge_base, metadata, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		set.ID,
		nullable(set.FileID),
		set.Filename,
		set.ChunkCount,
		set.Size,
		set.KnowledgeBase,
		set.Metadata,
		set.CreatedAt,
		set.UpdatedAt,
	)
	if err != nil {
		return storageErr("insert chunk-set", err)
	}
	return nil
}

// ChunkSetByID retrieves a single chunk-set record.
func (s *Store) ChunkSetByID(ctx context.Context, id string) (*catalog.ChunkSet, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var row chunkSetRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM document_metadata WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk-set %s: %w", id, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("select chunk-set", err)
	}
	record := row.record()
	return &record, nil
}

// ChunkSetsForFile lists chunk-sets owned by a file.
func (s *Store) ChunkSetsForFile(ctx context.Context, fileID string) ([]catalog.ChunkSet, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	rows := []chunkSetRow{}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM document_metadata WHERE file_id = ? ORDER BY created_at`, fileID)
	if err != nil {
		return nil, storageErr("select chunk-sets for file", err)
	}
	records := make([]catalog.ChunkSet, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}

// ChunkSetsForKnowledgeBase lists chunk-sets scoped to a knowledge base.
func (s *Store) ChunkSetsForKnowledgeBase(ctx context.Context, knowledgeBase string) ([]catalog.ChunkSet, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	rows := []chunkSetRow{}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM document_metadata WHERE knowledge_base = ? ORDER BY created_at DESC`, knowledgeBase)
	if err != nil {
		return nil, storageErr("select chunk-sets", err)
	}
	records := make([]catalog.ChunkSet, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}

// SetChunkCount overwrites the chunk count for a chunk-set. Setting zero is
// the soft-truncation path: the record survives with its file.
func (s *Store) SetChunkCount(ctx context.Context, id string, count int) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
UPDATE document_metadata SET chunk_count = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, count, id)
	if err != nil {
		return storageErr("update chunk count", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("chunk-set %s: %w", id, catalog.ErrNotFound)
	}
	return nil
}

// DeleteChunkSetsForFile removes every chunk-set owned by a file.
func (s *Store) DeleteChunkSetsForFile(ctx context.Context, fileID string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM document_metadata WHERE file_id = ?`, fileID); err != nil {
		return storageErr("delete chunk-sets", err)
	}
	return nil
}

// LinkChunkSets attaches a file id to every unlinked chunk-set matching the
// filename within the knowledge base and reports how many rows were updated.
func (s *Store) LinkChunkSets(ctx context.Context, knowledgeBase, filename, fileID string) (int64, error) {
	if err := s.ensureReady(); err != nil {
		return 0, err
	}
	result, err := s.db.ExecContext(ctx, `
UPDATE document_metadata SET file_id = ?, updated_at = CURRENT_TIMESTAMP
WHERE knowledge_base = ? AND filename = ? AND file_id IS NULL`,
		fileID, knowledgeBase, filename)
	if err != nil {
		return 0, storageErr("link chunk-sets", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("link chunk-sets", err)
	}
	return affected, nil
}
