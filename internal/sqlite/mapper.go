// File path: internal/sqlite/mapper.go
package sqlite

import (
	"database/sql"
	"time"

	"github.com/nicodishanthj/knowbase/internal/catalog"
)

// Row structs mirror nullable columns with sql.Null* types; the mapping
// functions translate them into the catalog's plain records, where absence is
// represented by the zero value.

type fileRow struct {
	ID               string           `db:"id"`
	Filename         string           `db:"filename"`
	OriginalFilename string           `db:"original_filename"`
	ContentType      string           `db:"content_type"`
	Size             int64            `db:"size"`
	ContentHash      string           `db:"content_hash"`
	Content          []byte           `db:"content"`
	StoragePath      sql.NullString   `db:"storage_path"`
	KnowledgeBase    string           `db:"knowledge_base"`
	Metadata         catalog.Metadata `db:"metadata"`
	CreatedAt        time.Time        `db:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at"`
}

func (r fileRow) record() catalog.FileRecord {
	record := catalog.FileRecord{
		ID:               r.ID,
		Filename:         r.Filename,
		OriginalFilename: r.OriginalFilename,
		ContentType:      r.ContentType,
		Size:             r.Size,
		ContentHash:      r.ContentHash,
		Content:          r.Content,
		KnowledgeBase:    r.KnowledgeBase,
		Metadata:         r.Metadata,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.StoragePath.Valid {
		record.StoragePath = r.StoragePath.String
	}
	return record
}

type chunkSetRow struct {
	ID            string           `db:"id"`
	FileID        sql.NullString   `db:"file_id"`
	Filename      string           `db:"filename"`
	ChunkCount    int              `db:"chunk_count"`
	Size          int64            `db:"size"`
	KnowledgeBase string           `db:"knowledge_base"`
	Metadata      catalog.Metadata `db:"metadata"`
	CreatedAt     time.Time        `db:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at"`
}

func (r chunkSetRow) record() catalog.ChunkSet {
	record := catalog.ChunkSet{
		ID:            r.ID,
		Filename:      r.Filename,
		ChunkCount:    r.ChunkCount,
		Size:          r.Size,
		KnowledgeBase: r.KnowledgeBase,
		Metadata:      r.Metadata,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.FileID.Valid {
		record.FileID = r.FileID.String
	}
	return record
}

func nullable(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
