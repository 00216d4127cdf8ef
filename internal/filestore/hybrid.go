// File path: internal/filestore/hybrid.go
package filestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nicodishanthj/knowbase/internal/blob"
	"github.com/nicodishanthj/knowbase/internal/catalog"
	"github.com/nicodishanthj/knowbase/internal/common"
	"github.com/nicodishanthj/knowbase/internal/content"
)

// SizeThreshold is the inline/object routing boundary. Payloads at or below
// it live in the relational row; larger payloads go to the object tier with
// only the key recorded.
const SizeThreshold = 1024 * 1024

// Catalog is the slice of the relational tier the hybrid store needs.
type Catalog interface {
	InsertFile(ctx context.Context, file *catalog.FileRecord) error
	FileByID(ctx context.Context, id string) (*catalog.FileRecord, error)
	FileByHash(ctx context.Context, knowledgeBase, hash string) (*catalog.FileRecord, error)
	StoragePaths(ctx context.Context) ([]string, error)
}

// Hybrid routes document payloads between the relational catalog and the
// object tier based on size, deduplicating by content hash within each
// knowledge base.
type Hybrid struct {
	store   Catalog
	objects blob.Store
	logger  *slog.Logger
}

// New builds a Hybrid over the relational catalog and object tier.
func New(store Catalog, objects blob.Store) *Hybrid {
	return &Hybrid{store: store, objects: objects, logger: common.Logger()}
}

// Store persists a document exactly once per knowledge base. When identical
// bytes were stored before, the existing record is returned and deduped is
// true. The object write happens before the row insert so a crash between the
// two leaves a dangling object, never a row pointing at nothing.
func (h *Hybrid) Store(ctx context.Context, data []byte, filename, knowledgeBase string, metadata catalog.Metadata) (*catalog.FileRecord, bool, error) {
	hash := content.Hash(data)

	existing, err := h.store.FileByHash(ctx, knowledgeBase, hash)
	if err == nil {
		h.logger.Info("filestore: duplicate content, reusing record",
			"knowledge_base", knowledgeBase, "filename", filename, "file_id", existing.ID)
		return existing, true, nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return nil, false, err
	}

	record := &catalog.FileRecord{
		ID:               uuid.NewString(),
		Filename:         filename,
		OriginalFilename: filename,
		ContentType:      content.DetectContentType(filename),
		Size:             int64(len(data)),
		ContentHash:      hash,
		KnowledgeBase:    knowledgeBase,
		Metadata:         metadata,
	}

	if len(data) <= SizeThreshold {
		record.Content = data
	} else {
		key := content.ObjectKey(hash, filename)
		if err := h.objects.Put(ctx, key, data, record.ContentType); err != nil {
			return nil, false, fmt.Errorf("filestore: store object: %w", err)
		}
		record.StoragePath = key
	}

	if err := h.store.InsertFile(ctx, record); err != nil {
		// Two concurrent uploads of the same bytes race on the
		// (knowledge_base, content_hash) unique index; the loser adopts the
		// winner's row. The loser's object write, if any, overwrote
		// identical bytes under the same key, so nothing leaks.
		if strings.Contains(err.Error(), "UNIQUE") {
			winner, lookupErr := h.store.FileByHash(ctx, knowledgeBase, hash)
			if lookupErr == nil {
				return winner, true, nil
			}
		}
		return nil, false, err
	}
	return record, false, nil
}

// Retrieve returns a file's payload regardless of where it lives. A row that
// points at a missing object is reported as inconsistent state rather than
// not-found: the catalog says the file exists.
func (h *Hybrid) Retrieve(ctx context.Context, id string) (*catalog.FileRecord, []byte, error) {
	record, err := h.store.FileByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if record.Inline() {
		return record, record.Content, nil
	}
	data, err := h.objects.Get(ctx, record.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("filestore: file %s at %s: %w (%v)",
			id, record.StoragePath, catalog.ErrInconsistentState, err)
	}
	return record, data, nil
}

// DownloadURL returns a short-lived direct link for object-backed files.
// Inline files have no object to link to; callers serve those bytes
// themselves.
func (h *Hybrid) DownloadURL(ctx context.Context, id string, expiry time.Duration) (string, error) {
	record, err := h.store.FileByID(ctx, id)
	if err != nil {
		return "", err
	}
	if record.Inline() {
		return "", fmt.Errorf("filestore: file %s is stored inline", id)
	}
	return h.objects.URL(ctx, record.StoragePath, expiry)
}

// SweepOrphans removes objects no catalog row references. Dangling objects
// accumulate from crashes between the object write and the row insert and
// from file deletions; they are garbage, not corruption, and this reclaims
// them.
func (h *Hybrid) SweepOrphans(ctx context.Context) (int64, error) {
	referenced, err := h.store.StoragePaths(ctx)
	if err != nil {
		return 0, err
	}
	keep := make(map[string]bool, len(referenced))
	for _, path := range referenced {
		keep[path] = true
	}
	keys, err := h.objects.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("filestore: sweep: %w", err)
	}
	var removed int64
	for _, key := range keys {
		if keep[key] {
			continue
		}
		if err := h.objects.Remove(ctx, key); err != nil {
			h.logger.Warn("filestore: failed to remove orphan object", "key", key, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		h.logger.Info("filestore: swept orphan objects", "removed", removed)
	}
	return removed, nil
}
