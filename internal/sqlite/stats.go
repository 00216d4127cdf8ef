// File path: internal/sqlite/stats.go
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/nicodishanthj/knowbase/internal/catalog"
)

// KnowledgeBase returns the aggregate row for a knowledge base.
func (s *Store) KnowledgeBase(ctx context.Context, name string) (*catalog.KnowledgeBase, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var kb catalog.KnowledgeBase
	err := s.db.GetContext(ctx, &kb, `SELECT * FROM knowledge_bases WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("knowledge base %s: %w", name, catalog.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("select knowledge base", err)
	}
	return &kb, nil
}

// ListKnowledgeBases returns every knowledge base row.
func (s *Store) ListKnowledgeBases(ctx context.Context) ([]catalog.KnowledgeBase, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	bases := []catalog.KnowledgeBase{}
	if err := s.db.SelectContext(ctx, &bases, `SELECT * FROM knowledge_bases ORDER BY name`); err != nil {
		return nil, storageErr("select knowledge bases", err)
	}
	return bases, nil
}

// KnowledgeBaseNames returns every knowledge base name any table references.
// The union matters for self-healing: a knowledge base whose aggregate row
// was never created still shows up through its file or chunk-set rows.
func (s *Store) KnowledgeBaseNames(ctx context.Context) ([]string, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	names := []string{}
	err := s.db.SelectContext(ctx, &names, `
SELECT name FROM knowledge_bases
UNION
SELECT knowledge_base FROM document_files
UNION
SELECT knowledge_base FROM document_metadata
ORDER BY 1`)
	if err != nil {
		return nil, storageErr("select knowledge base names", err)
	}
	return names, nil
}

// RecomputeStats rebuilds file_count and chunk_count for one knowledge base
// from the kb_stats view, creating the row when absent. The counters are
// recomputed from source rows rather than incremented, which is what makes
// repeated and concurrent calls converge on the same correct value.
func (s *Store) RecomputeStats(ctx context.Context, name string) (*catalog.KnowledgeBase, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("knowledge base name required")
	}

	var counts struct {
		FileCount  int `db:"file_count"`
		ChunkCount int `db:"chunk_count"`
	}
	err := s.db.GetContext(ctx, &counts,
		`SELECT file_count, chunk_count FROM kb_stats WHERE knowledge_base = ?`, name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storageErr("select kb stats", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO knowledge_bases(name, file_count, chunk_count, updated_at)
VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(name) DO UPDATE SET
        file_count=excluded.file_count,
        chunk_count=excluded.chunk_count,
        updated_at=CURRENT_TIMESTAMP`,
		name, counts.FileCount, counts.ChunkCount)
	if err != nil {
		return nil, storageErr("upsert kb stats", err)
	}
	return s.KnowledgeBase(ctx, name)
}
