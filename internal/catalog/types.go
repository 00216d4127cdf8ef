// File path: internal/catalog/types.go
package catalog

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Metadata is the free-form key-value payload attached to catalog rows. It is
// validated at the boundary and never load-bearing: no invariant may depend on
// its contents.
type Metadata map[string]string

// Value implements driver.Valuer so metadata persists as a JSON column.
func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner for the JSON metadata column.
func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata column type %T", src)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// KnowledgeBase is the top tier of the hierarchy: a named, isolated namespace
// of files and chunks. FileCount and ChunkCount are derived aggregates and are
// only ever written by stat recomputation, never incremented in place.
type KnowledgeBase struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	FileCount   int       `db:"file_count" json:"file_count"`
	ChunkCount  int       `db:"chunk_count" json:"chunk_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// FileRecord describes one stored upload. Exactly one of Content and
// StoragePath is populated: inline placement carries the bytes in the row,
// external placement carries only the object locator.
type FileRecord struct {
	ID               string    `db:"id" json:"id"`
	Filename         string    `db:"filename" json:"filename"`
	OriginalFilename string    `db:"original_filename" json:"original_filename"`
	ContentType      string    `db:"content_type" json:"content_type"`
	Size             int64     `db:"size" json:"size"`
	ContentHash      string    `db:"content_hash" json:"content_hash"`
	Content          []byte    `db:"content" json:"-"`
	StoragePath      string    `db:"storage_path" json:"storage_path,omitempty"`
	KnowledgeBase    string    `db:"knowledge_base" json:"knowledge_base"`
	Metadata         Metadata  `db:"metadata" json:"metadata,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Inline reports whether the record carries its bytes in the relational row.
func (f *FileRecord) Inline() bool {
	return f.StoragePath == ""
}

// ChunkSet records the chunking result for one source document. FileID is
// empty while unlinked: a chunk-set may be created before its file is
// uploaded, and may outlive its file for audit. ChunkCount is the ground truth
// for chunk aggregation; zero means the chunks were soft-truncated while the
// record survives.
type ChunkSet struct {
	ID            string    `db:"id" json:"id"`
	FileID        string    `db:"file_id" json:"file_id,omitempty"`
	Filename      string    `db:"filename" json:"filename"`
	ChunkCount    int       `db:"chunk_count" json:"chunk_count"`
	Size          int64     `db:"size" json:"size"`
	KnowledgeBase string    `db:"knowledge_base" json:"knowledge_base"`
	Metadata      Metadata  `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Linked reports whether the chunk-set has been correlated with a file row.
func (c *ChunkSet) Linked() bool {
	return c.FileID != ""
}

// Chunk is the unit handed to the external vector index. The embedding itself
// is owned by the index, never by this core.
type Chunk struct {
	ID            string         `json:"id"`
	Filename      string         `json:"filename"`
	Index         int            `json:"index"`
	Content       string         `json:"content"`
	KnowledgeBase string         `json:"knowledge_base"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}
