// File path: internal/ingest/registry.go
package ingest

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry tracks the knowledge bases this process has touched. Each entry is
// created on first use and removed only by an explicit Clear, so a cleared
// knowledge base never lingers as a stale in-process handle.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]time.Time)}
}

// Touch records activity against a knowledge base, creating the entry when absent.
func (r *Registry) Touch(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	r.mu.Lock()
	r.entries[name] = time.Now().UTC()
	r.mu.Unlock()
}

// Known reports whether the knowledge base has been used in this process.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	_, ok := r.entries[strings.TrimSpace(name)]
	r.mu.RUnlock()
	return ok
}

// List returns the registered knowledge base names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Clear drops the entry for a knowledge base.
func (r *Registry) Clear(name string) {
	r.mu.Lock()
	delete(r.entries, strings.TrimSpace(name))
	r.mu.Unlock()
}
