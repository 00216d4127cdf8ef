// File path: internal/sqlite/files.go
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

// InsertFile persists a new file record. Content and storage path are
// mutually exclusive; the hybrid store guarantees exactly one is set.
func (s *Store) InsertFile(ctx context.Context, file *catalog.FileRecord) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if file == nil || strings.TrimSpace(file.ID) == "" {
		return fmt.Errorf("file id required")
	}
	now := time.Now().UTC()
	if file.CreatedAt.IsZero() {
		file.CreatedAt = now
	}
	file.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
INSERT INTO document_files(id, filename, original_filename, content_type, size, content_hash,
        content, storage_path, knowledge_base, metadata, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID,
		file.Filename,
		file.OriginalFilename,
		file.ContentType,
		file.Size,
		file.ContentHash,
		file.Content,
		nullable(file.StoragePath),
		file.KnowledgeBase,
		file.Metadata,
		file.CreatedAt,
		file.UpdatedAt,
	)
	if err != nil {
		return storageErr("insert file", err)
	}
	return nil
}

// FileByID retrieves a single file record.
func (s *Store) FileByID(ctx context.Context, id string) (*catalog.FileRecord, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var row fileRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM document_files WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %s: %w", id, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("select file", err)
	}
	record := row.record()
	return &record, nil
}

// FileByHash resolves the dedup lookup: an existing record with the same
// content hash inside the knowledge base scope.
func (s *Store) FileByHash(ctx context.Context, knowledgeBase, hash string) (*catalog.FileRecord, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var row fileRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM document_files WHERE knowledge_base = ? AND content_hash = ?`, knowledgeBase, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("hash %s in %s: %w", hash, knowledgeBase, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("select file by hash", err)
	}
	record := row.record()
	return &record, nil
}

// FileByName resolves the loose filename correlation used for chunk-set
// linking. When multiple uploads share a filename the most recent wins.
func (s *Store) FileByName(ctx context.Context, knowledgeBase, filename string) (*catalog.FileRecord, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var row fileRow
	err := s.db.GetContext(ctx, &row, `
SELECT * FROM document_files WHERE knowledge_base = ? AND filename = ?
ORDER BY created_at DESC LIMIT 1`, knowledgeBase, filename)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %s in %s: %w", filename, knowledgeBase, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("select file by name", err)
	}
	record := row.record()
	return &record, nil
}

// FilesForKnowledgeBase lists the file records scoped to a knowledge base.
// Inline content is omitted from listings; retrieval goes through the hybrid
// store.
func (s *Store) FilesForKnowledgeBase(ctx context.Context, knowledgeBase string) ([]catalog.FileRecord, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	rows := []fileRow{}
	err := s.db.SelectContext(ctx, &rows, `
SELECT id, filename, original_filename, content_type, size, content_hash,
       NULL AS content, storage_path, knowledge_base, metadata, created_at, updated_at
FROM document_files WHERE knowledge_base = ? ORDER BY created_at DESC`, knowledgeBase)
	if err != nil {
		return nil, storageErr("select files", err)
	}
	records := make([]catalog.FileRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}

// DeleteFile removes a file row.
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM document_files WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete file", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("file %s: %w", id, catalog.ErrNotFound)
	}
	return nil
}

// ClearKnowledgeBase removes every file and chunk-set row scoped to the name
// inside a single transaction, so a partial failure never leaves chunk-sets
// pointing at deleted files.
func (s *Store) ClearKnowledgeBase(ctx context.Context, name string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return storageErr("begin clear", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_metadata WHERE knowledge_base = ?`, name); err != nil {
		return storageErr("clear chunk-sets", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_files WHERE knowledge_base = ?`, name); err != nil {
		return storageErr("clear files", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit clear", err)
	}
	committed = true
	return nil
}

// StoragePaths returns every external locator referenced by file rows. Used
// by the orphan sweep to distinguish live objects from garbage.
func (s *Store) StoragePaths(ctx context.Context) ([]string, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	paths := []string{}
	err := s.db.SelectContext(ctx, &paths,
		`SELECT storage_path FROM document_files WHERE storage_path IS NOT NULL`)
	if err != nil {
		return nil, storageErr("select storage paths", err)
	}
	return paths, nil
}
