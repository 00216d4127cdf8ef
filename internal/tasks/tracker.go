// File path: internal/tasks/tracker.go
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nicodishanthj/knowbase/internal/common"
)

// Status is the lifecycle state of a background ingestion task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// NormalizeStatus coerces unrecognised values to pending rather than
// propagating garbage into the store.
func NormalizeStatus(value string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return Status(strings.ToLower(strings.TrimSpace(value)))
	default:
		return StatusPending
	}
}

// Progress is the tracked state of one task. Created on submission, mutated
// only by the task's own execution, terminal once completed or failed.
type Progress struct {
	TaskID    string         `json:"task_id"`
	Status    Status         `json:"status"`
	Progress  float64        `json:"progress"`
	Message   string         `json:"message"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Terminal reports whether the task has reached a final state.
func (p Progress) Terminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}

// ErrNotFound marks a task id with no record in either tier.
var ErrNotFound = errors.New("task not found")

// DurableStore is the persistent tier of the tracker, implemented by the
// SQLite catalog.
type DurableStore interface {
	UpsertTask(ctx context.Context, progress Progress) error
	TaskByID(ctx context.Context, taskID string) (*Progress, error)
	ListTasks(ctx context.Context, limit int) ([]Progress, error)
	CleanupTasks(ctx context.Context, olderThan time.Time) (int64, error)
}

// Tracker records task lifecycles with a durable-primary, memory-fallback
// write policy. A tracking failure is never surfaced to callers: when the
// durable tier is unreachable the update lands in the in-process map and the
// failure is only logged, so the system stays correct while briefly less
// durable.
type Tracker struct {
	durable DurableStore
	logger  *slog.Logger

	mu  sync.RWMutex
	mem map[string]Progress
}

// NewTracker builds a Tracker. A nil durable store is a supported degraded
// configuration; everything then lives in memory.
func NewTracker(durable DurableStore) *Tracker {
	return &Tracker{
		durable: durable,
		logger:  common.Logger(),
		mem:     make(map[string]Progress),
	}
}

// Submit registers a new task and returns its id.
func (t *Tracker) Submit(ctx context.Context) string {
	taskID := uuid.NewString()
	t.Update(ctx, taskID, StatusPending, 0, "task created", nil, "")
	return taskID
}

// Update records task state. Progress is clamped to [0,1] and unknown status
// values are coerced to pending. Never returns an error: durable failures
// degrade to the memory tier.
func (t *Tracker) Update(ctx context.Context, taskID string, status Status, progress float64, message string, result map[string]any, errMsg string) {
	if strings.TrimSpace(taskID) == "" {
		return
	}
	entry := Progress{
		TaskID:    taskID,
		Status:    NormalizeStatus(string(status)),
		Progress:  clamp(progress),
		Message:   message,
		Result:    result,
		Error:     errMsg,
		UpdatedAt: time.Now().UTC(),
	}
	entry.CreatedAt = t.createdAt(taskID, entry.UpdatedAt)

	if t.durable != nil {
		if err := t.durable.UpsertTask(ctx, entry); err != nil {
			t.logger.Warn("tasks: durable update failed, using memory fallback",
				"task_id", taskID, "status", entry.Status, "error", err)
		}
	}
	// The memory tier always mirrors the latest write; it doubles as a fast
	// cache and as the fallback record when the durable write failed.
	t.mu.Lock()
	t.mem[taskID] = entry
	t.mu.Unlock()
}

// Get returns the tracked state for a task, preferring the durable tier and
// falling back to memory on read failure, absent configuration, or when the
// memory tier holds a newer degraded write.
func (t *Tracker) Get(ctx context.Context, taskID string) (*Progress, error) {
	var durable *Progress
	if t.durable != nil {
		entry, err := t.durable.TaskByID(ctx, taskID)
		if err == nil {
			durable = entry
		} else if !errors.Is(err, ErrNotFound) {
			t.logger.Warn("tasks: durable read failed, using memory fallback", "task_id", taskID, "error", err)
		}
	}
	t.mu.RLock()
	mem, ok := t.mem[taskID]
	t.mu.RUnlock()

	switch {
	case durable != nil && ok && mem.UpdatedAt.After(durable.UpdatedAt):
		return &mem, nil
	case durable != nil:
		return durable, nil
	case ok:
		return &mem, nil
	default:
		return nil, ErrNotFound
	}
}

// List returns up to limit tasks ordered by most recent update, merging
// memory-only entries so degraded-mode writes stay visible.
func (t *Tracker) List(ctx context.Context, limit int) ([]Progress, error) {
	if limit <= 0 {
		limit = 50
	}
	seen := make(map[string]Progress)
	if t.durable != nil {
		entries, err := t.durable.ListTasks(ctx, limit)
		if err != nil {
			t.logger.Warn("tasks: durable list failed, using memory fallback", "error", err)
		} else {
			for _, entry := range entries {
				seen[entry.TaskID] = entry
			}
		}
	}
	t.mu.RLock()
	for id, entry := range t.mem {
		if existing, ok := seen[id]; !ok || entry.UpdatedAt.After(existing.UpdatedAt) {
			seen[id] = entry
		}
	}
	t.mu.RUnlock()

	out := make([]Progress, 0, len(seen))
	for _, entry := range seen {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Cleanup removes tasks last updated before the retention window and reports
// how many records were dropped across both tiers.
func (t *Tracker) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		olderThanDays = 7
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	var durableRemoved int64
	if t.durable != nil {
		count, err := t.durable.CleanupTasks(ctx, cutoff)
		if err != nil {
			t.logger.Warn("tasks: durable cleanup failed", "error", err)
		} else {
			durableRemoved = count
		}
	}
	var memRemoved int64
	t.mu.Lock()
	for id, entry := range t.mem {
		if entry.UpdatedAt.Before(cutoff) {
			delete(t.mem, id)
			memRemoved++
		}
	}
	t.mu.Unlock()
	// The memory tier mirrors durable writes, so the same task would be
	// counted twice if the tallies were summed. The larger tally covers
	// both memory-only fallback entries and rows that predate this process.
	if memRemoved > durableRemoved {
		return memRemoved, nil
	}
	return durableRemoved, nil
}

func (t *Tracker) createdAt(taskID string, fallback time.Time) time.Time {
	t.mu.RLock()
	existing, ok := t.mem[taskID]
	t.mu.RUnlock()
	if ok && !existing.CreatedAt.IsZero() {
		return existing.CreatedAt
	}
	return fallback
}

func clamp(progress float64) float64 {
	switch {
	case progress < 0:
		return 0
	case progress > 1:
		return 1
	default:
		return progress
	}
}
