// File path: cmd/knowbase/services.go
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nicodishanthj/knowbase/internal/blob"
	"github.com/nicodishanthj/knowbase/internal/catalog"
	"github.com/nicodishanthj/knowbase/internal/common"
	"github.com/nicodishanthj/knowbase/internal/filestore"
	"github.com/nicodishanthj/knowbase/internal/ingest"
	"github.com/nicodishanthj/knowbase/internal/splitter"
	"github.com/nicodishanthj/knowbase/internal/sqlite"
	"github.com/nicodishanthj/knowbase/internal/tasks"
	"github.com/nicodishanthj/knowbase/internal/vector"
)

type services struct {
	ingest *ingest.Service
	store  *sqlite.Store
	index  *vector.Client
}

// buildServices wires the full stack: SQLite catalog, blob tier, vector
// index, tracker and the ingest orchestrator.
func buildServices(ctx context.Context) (*services, error) {
	logger := common.Logger()

	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = defaultCatalogPath()
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	var objects blob.Store
	blobCfg := blob.LoadConfig()
	if blobCfg.Configured() {
		minioStore, err := blob.NewMinioStore(ctx, blobCfg)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("connect object store: %w", err)
		}
		objects = minioStore
		logger.Info("knowbase: object store connected", "endpoint", blobCfg.Endpoint, "bucket", blobCfg.Bucket)
	} else {
		objects = blob.NewMemoryStore()
		logger.Warn("knowbase: no object store configured, large files will not survive restarts")
	}

	index, err := vector.NewFromEnv(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("configure vector index: %w", err)
	}

	files := filestore.New(store, objects)
	cat := catalog.NewService(store, index)
	tracker := tasks.NewTracker(store)

	split := splitter.New(
		envInt("CHUNK_SIZE", splitter.DefaultChunkSize),
		envInt("CHUNK_OVERLAP", splitter.DefaultChunkOverlap),
	)
	svc, err := ingest.NewService(files, cat, split, tracker, envInt("INGEST_WORKERS", 0))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &services{ingest: svc, store: store, index: index}, nil
}

func (s *services) Close() {
	if s == nil {
		return
	}
	if s.ingest != nil {
		s.ingest.Close()
	}
	if s.index != nil {
		_ = s.index.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

func defaultCatalogPath() string {
	if env := strings.TrimSpace(os.Getenv("SQLITE_PATH")); env != "" {
		return env
	}
	return filepath.Join("data", "knowbase.db")
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
