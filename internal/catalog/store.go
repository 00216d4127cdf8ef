// File path: internal/catalog/store.go
package catalog

import "context"

// Store is the relational tier beneath the catalog. The production
// implementation lives in internal/sqlite; tests substitute in-memory fakes.
type Store interface {
	InsertFile(ctx context.Context, file *FileRecord) error
	FileByID(ctx context.Context, id string) (*FileRecord, error)
	FileByHash(ctx context.Context, knowledgeBase, hash string) (*FileRecord, error)
	FileByName(ctx context.Context, knowledgeBase, filename string) (*FileRecord, error)
	FilesForKnowledgeBase(ctx context.Context, knowledgeBase string) ([]FileRecord, error)
	DeleteFile(ctx context.Context, id string) error

	InsertChunkSet(ctx context.Context, set *ChunkSet) error
	ChunkSetByID(ctx context.Context, id string) (*ChunkSet, error)
	ChunkSetsForFile(ctx context.Context, fileID string) ([]ChunkSet, error)
	ChunkSetsForKnowledgeBase(ctx context.Context, knowledgeBase string) ([]ChunkSet, error)
	SetChunkCount(ctx context.Context, id string, count int) error
	DeleteChunkSetsForFile(ctx context.Context, fileID string) error

	// LinkChunkSets attaches fileID to every unlinked chunk-set matching
	// filename within the knowledge base and reports how many rows changed.
	// The filename+knowledge-base pair is the only correlation that exists
	// between a raw upload and a chunking run.
	LinkChunkSets(ctx context.Context, knowledgeBase, filename, fileID string) (int64, error)

	// ClearKnowledgeBase removes every file and chunk-set row scoped to the
	// name as one transaction.
	ClearKnowledgeBase(ctx context.Context, name string) error

	KnowledgeBase(ctx context.Context, name string) (*KnowledgeBase, error)
	ListKnowledgeBases(ctx context.Context) ([]KnowledgeBase, error)

	// KnowledgeBaseNames returns every knowledge base name referenced by any
	// tier: aggregate rows, file rows, or chunk-set rows. This is broader
	// than ListKnowledgeBases, whose rows only exist once a stat
	// recomputation has succeeded.
	KnowledgeBaseNames(ctx context.Context) ([]string, error)

	// RecomputeStats rebuilds the aggregate counters for a knowledge base
	// from its chunk-set rows, creating the row when absent. Idempotent by
	// construction: it recomputes from source rows instead of incrementing.
	RecomputeStats(ctx context.Context, name string) (*KnowledgeBase, error)
}

// ChunkIndex is the slice of the external vector index this core depends on.
// The index owns embeddings and similarity search; the catalog only pushes
// chunks in and issues scoped deletions.
type ChunkIndex interface {
	Available() bool
	AddChunks(ctx context.Context, knowledgeBase string, chunks []Chunk) ([]string, error)
	DeleteByFilename(ctx context.Context, knowledgeBase, filename string) error
	DeleteKnowledgeBase(ctx context.Context, knowledgeBase string) error
}
