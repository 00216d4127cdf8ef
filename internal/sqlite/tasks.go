// File path: internal/sqlite/tasks.go
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nicodishanthj/knowbase/internal/tasks"
)

type taskRow struct {
	TaskID    string         `db:"task_id"`
	Status    string         `db:"status"`
	Progress  float64        `db:"progress"`
	Message   string         `db:"message"`
	Result    sql.NullString `db:"result"`
	Error     string         `db:"error"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r taskRow) progress() (tasks.Progress, error) {
	entry := tasks.Progress{
		TaskID:    r.TaskID,
		Status:    tasks.NormalizeStatus(r.Status),
		Progress:  r.Progress,
		Message:   r.Message,
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Result.Valid && r.Result.String != "" {
		if err := json.Unmarshal([]byte(r.Result.String), &entry.Result); err != nil {
			return entry, fmt.Errorf("decode task result: %w", err)
		}
	}
	return entry, nil
}

// UpsertTask writes the latest task state. On conflict the original
// created_at is kept so task age survives repeated updates.
func (s *Store) UpsertTask(ctx context.Context, progress tasks.Progress) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	if strings.TrimSpace(progress.TaskID) == "" {
		return fmt.Errorf("task id required")
	}
	result := sql.NullString{}
	if len(progress.Result) > 0 {
		encoded, err := json.Marshal(progress.Result)
		if err != nil {
			return fmt.Errorf("encode task result: %w", err)
		}
		result = sql.NullString{String: string(encoded), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO task_status(task_id, status, progress, message, result, error, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(task_id) DO UPDATE SET
        status = excluded.status,
        progress = excluded.progress,
        message = excluded.message,
        result = excluded.result,
        error = excluded.error,
        updated_at = excluded.updated_at`,
		progress.TaskID,
		string(progress.Status),
		progress.Progress,
		progress.Message,
		result,
		progress.Error,
		progress.CreatedAt,
		progress.UpdatedAt,
	)
	if err != nil {
		return storageErr("upsert task", err)
	}
	return nil
}

// TaskByID retrieves one task record.
func (s *Store) TaskByID(ctx context.Context, taskID string) (*tasks.Progress, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var row taskRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM task_status WHERE task_id = ?`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", taskID, tasks.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get task", err)
	}
	entry, err := row.progress()
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListTasks returns the most recently updated tasks.
func (s *Store) ListTasks(ctx context.Context, limit int) ([]tasks.Progress, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, `
SELECT * FROM task_status ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, storageErr("list tasks", err)
	}
	out := make([]tasks.Progress, 0, len(rows))
	for _, row := range rows {
		entry, err := row.progress()
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// CleanupTasks deletes tasks last updated before the cutoff and reports the
// number removed.
func (s *Store) CleanupTasks(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := s.ensureReady(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM task_status WHERE updated_at < ?`, olderThan)
	if err != nil {
		return 0, storageErr("cleanup tasks", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("cleanup tasks", err)
	}
	return removed, nil
}
