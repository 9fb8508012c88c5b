package janitor_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/faillog"
	"github.com/voteflow/voteflow/id"
	"github.com/voteflow/voteflow/janitor"
	"github.com/voteflow/voteflow/job"
	"github.com/voteflow/voteflow/store/memory"
)

// recordingEmitter captures sweep-completed events.
type recordingEmitter struct {
	mu     sync.Mutex
	sweeps map[string]int64
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{sweeps: make(map[string]int64)}
}

func (e *recordingEmitter) EmitSweepCompleted(_ context.Context, task string, removed int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sweeps[task] += removed
}

func (e *recordingEmitter) removed(task string) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.sweeps[task]
	return n, ok
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		expr  string
		valid bool
	}{
		{"0 3 * * *", true},
		{"*/5 * * * *", true},
		{"@every 1h", true},
		{"@daily", true},
		{"not a schedule", false},
		{"0 3 * *", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := janitor.ParseSchedule(tt.expr)
			if tt.valid && err != nil {
				t.Fatalf("ParseSchedule(%q) = %v, want nil", tt.expr, err)
			}
			if !tt.valid && err == nil {
				t.Fatalf("ParseSchedule(%q) = nil, want error", tt.expr)
			}
		})
	}
}

func TestAddTaskRejectsBadSchedule(t *testing.T) {
	j := janitor.New(nil, slog.Default())
	err := j.AddTask(janitor.Task{
		Name:     "broken",
		Schedule: "whenever",
		Sweep:    func(context.Context) (int64, error) { return 0, nil },
	})
	if err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestRunAllFiresEveryTask(t *testing.T) {
	emitter := newRecordingEmitter()
	j := janitor.New(emitter, slog.Default())

	var a, b atomic.Int64
	mustAdd(t, j, janitor.Task{
		Name:     "task-a",
		Schedule: "@every 24h",
		Sweep:    func(context.Context) (int64, error) { a.Add(1); return 3, nil },
	})
	mustAdd(t, j, janitor.Task{
		Name:     "task-b",
		Schedule: "0 3 * * *",
		Sweep:    func(context.Context) (int64, error) { b.Add(1); return 0, nil },
	})

	j.RunAll(context.Background())

	if a.Load() != 1 || b.Load() != 1 {
		t.Fatalf("sweeps ran %d/%d times, want 1/1", a.Load(), b.Load())
	}
	if n, ok := emitter.removed("task-a"); !ok || n != 3 {
		t.Fatalf("task-a emitted %d (present=%v), want 3", n, ok)
	}
	if _, ok := emitter.removed("task-b"); !ok {
		t.Fatal("task-b sweep not emitted")
	}
}

func TestSweepErrorSuppressesEmit(t *testing.T) {
	emitter := newRecordingEmitter()
	j := janitor.New(emitter, slog.Default())

	mustAdd(t, j, janitor.Task{
		Name:     "failing",
		Schedule: "@every 1h",
		Sweep:    func(context.Context) (int64, error) { return 0, errors.New("db down") },
	})

	j.RunAll(context.Background())

	if _, ok := emitter.removed("failing"); ok {
		t.Fatal("failed sweep still emitted completion")
	}
}

func TestTickFiresDueTasks(t *testing.T) {
	var fired atomic.Int64
	j := janitor.New(nil, slog.Default(), janitor.WithTickInterval(10*time.Millisecond))

	// One-second cadence is the finest @every supports.
	mustAdd(t, j, janitor.Task{
		Name:     "eager",
		Schedule: "@every 1s",
		Sweep:    func(context.Context) (int64, error) { fired.Add(1); return 0, nil },
	})

	if err := j.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer j.Stop(context.Background()) //nolint:errcheck

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if fired.Load() >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task fired %d times, want at least 2", fired.Load())
}

func TestPurgeJobsTask(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	fresh := time.Now().UTC()
	seedSettledJob(t, st, old)
	seedSettledJob(t, st, fresh)

	task := janitor.PurgeJobsTask(st, "0 3 * * *", 24*time.Hour)
	if task.Name != "purge-jobs" {
		t.Fatalf("task name %q", task.Name)
	}

	removed, err := task.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d jobs, want 1", removed)
	}
}

func TestPurgeFailuresTask(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	for _, age := range []time.Duration{72 * time.Hour, time.Hour} {
		entry := &faillog.Entry{
			ID:       id.NewFailureID(),
			JobID:    id.NewJobID(),
			JobName:  "vote.process",
			Queue:    voteflow.VoteQueue,
			Error:    "boom",
			FailedAt: time.Now().UTC().Add(-age),
		}
		if err := st.PushFailure(ctx, entry); err != nil {
			t.Fatalf("push failure: %v", err)
		}
	}

	task := janitor.PurgeFailuresTask(st, "30 3 * * *", 24*time.Hour)
	removed, err := task.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d entries, want 1", removed)
	}

	count, err := st.CountFailures(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count %d after purge, want 1", count)
	}
}

func mustAdd(t *testing.T, j *janitor.Janitor, task janitor.Task) {
	t.Helper()
	if err := j.AddTask(task); err != nil {
		t.Fatalf("add task %q: %v", task.Name, err)
	}
}

func seedSettledJob(t *testing.T, st *memory.Store, completedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	j := &job.Job{
		ID:          id.NewJobID(),
		Name:        "vote.process",
		Queue:       voteflow.VoteQueue,
		State:       job.StatePending,
		MaxAttempts: 3,
		RunAt:       completedAt,
		CreatedAt:   completedAt,
		UpdatedAt:   completedAt,
	}
	if err := st.EnqueueJob(ctx, j); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	j.State = job.StateCompleted
	j.CompletedAt = &completedAt
	if err := st.UpdateJob(ctx, j); err != nil {
		t.Fatalf("update: %v", err)
	}
}
