// File path: cmd/knowbase/main_test.go
package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nicodishanthj/knowbase/internal/tasks"
)

func TestPollTaskSurfacesPersistentLookupFailure(t *testing.T) {
	lookupErr := errors.New("catalog unreachable")
	calls := 0
	get := func(context.Context, string) (*tasks.Progress, error) {
		calls++
		return nil, lookupErr
	}

	_, err := pollTask(context.Background(), get, "task-1", time.Millisecond)
	if !errors.Is(err, lookupErr) {
		t.Fatalf("err = %v, want wrapped lookup error", err)
	}
	if calls != pollFailureLimit {
		t.Fatalf("calls = %d, want %d before giving up", calls, pollFailureLimit)
	}
}

func TestPollTaskRecoversFromTransientFailures(t *testing.T) {
	calls := 0
	get := func(context.Context, string) (*tasks.Progress, error) {
		calls++
		if calls%2 == 1 {
			return nil, errors.New("transient")
		}
		if calls < 6 {
			return &tasks.Progress{TaskID: "task-1", Status: tasks.StatusProcessing}, nil
		}
		return &tasks.Progress{TaskID: "task-1", Status: tasks.StatusCompleted}, nil
	}

	entry, err := pollTask(context.Background(), get, "task-1", time.Millisecond)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if entry.Status != tasks.StatusCompleted {
		t.Fatalf("status = %s, want completed", entry.Status)
	}
}

func TestPollTaskHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	get := func(context.Context, string) (*tasks.Progress, error) {
		cancel()
		return &tasks.Progress{TaskID: "task-1", Status: tasks.StatusPending}, nil
	}

	_, err := pollTask(ctx, get, "task-1", time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
