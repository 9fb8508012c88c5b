package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/backoff"
	"github.com/voteflow/voteflow/ext"
	"github.com/voteflow/voteflow/faillog"
	"github.com/voteflow/voteflow/id"
	"github.com/voteflow/voteflow/job"
	"github.com/voteflow/voteflow/middleware"
	"github.com/voteflow/voteflow/store/memory"
	"github.com/voteflow/voteflow/worker"
)

// eventExtension records every lifecycle event it receives.
type eventExtension struct {
	mu     sync.Mutex
	events []string
}

func (e *eventExtension) Name() string { return "test.events" }

func (e *eventExtension) record(ev string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventExtension) seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func (e *eventExtension) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	e.record("completed")
	return nil
}

func (e *eventExtension) OnJobRejected(context.Context, *job.Job, error) error {
	e.record("rejected")
	return nil
}

func (e *eventExtension) OnJobRetrying(context.Context, *job.Job, int, time.Time) error {
	e.record("retrying")
	return nil
}

func (e *eventExtension) OnJobFailed(context.Context, *job.Job, error) error {
	e.record("failed")
	return nil
}

type execFixture struct {
	store    *memory.Store
	registry *job.Registry
	events   *eventExtension
	extReg   *ext.Registry
	exec     *worker.Executor
}

func newExecFixture(t *testing.T, mws ...middleware.Middleware) *execFixture {
	t.Helper()
	st := memory.New()
	reg := job.NewRegistry()
	events := &eventExtension{}
	extReg := ext.NewRegistry(slog.Default())
	extReg.Register(events)

	return &execFixture{
		store:    st,
		registry: reg,
		events:   events,
		extReg:   extReg,
		exec: worker.NewExecutor(
			reg,
			extReg,
			st,
			faillog.NewService(st),
			backoff.NewConstant(time.Minute),
			slog.Default(),
			mws...,
		),
	}
}

func (f *execFixture) register(t *testing.T, name string, handler func(ctx context.Context) error) {
	t.Helper()
	job.RegisterDefinition(f.registry, job.NewDefinition(name,
		func(ctx context.Context, _ struct{}) error { return handler(ctx) },
	))
}

func (f *execFixture) enqueue(t *testing.T, name string, maxAttempts int) *job.Job {
	t.Helper()
	now := time.Now().UTC()
	j := &job.Job{
		ID:          id.NewJobID(),
		Name:        name,
		Queue:       voteflow.VoteQueue,
		Payload:     []byte(`{}`),
		State:       job.StatePending,
		MaxAttempts: maxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := f.store.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return j
}

func TestExecuteSuccess(t *testing.T) {
	f := newExecFixture(t)
	f.register(t, "noop", func(context.Context) error { return nil })
	j := f.enqueue(t, "noop", 3)

	if err := f.exec.Execute(context.Background(), j); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got, err := f.store.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.State != job.StateCompleted {
		t.Fatalf("state %q, want completed", got.State)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed job missing CompletedAt")
	}
	if events := f.events.seen(); len(events) != 1 || events[0] != "completed" {
		t.Fatalf("events %v, want [completed]", events)
	}
}

func TestExecuteUnknownHandler(t *testing.T) {
	f := newExecFixture(t)
	j := f.enqueue(t, "nobody.home", 3)

	err := f.exec.Execute(context.Background(), j)
	if err == nil || !strings.Contains(err.Error(), "no handler registered") {
		t.Fatalf("expected missing-handler error, got %v", err)
	}
}

func TestExecuteRejection(t *testing.T) {
	f := newExecFixture(t)
	f.register(t, "reject", func(context.Context) error {
		return voteflow.Rejectf("already_voted", "duplicate")
	})
	j := f.enqueue(t, "reject", 3)

	// Rejections are acknowledged: Execute itself succeeds.
	if err := f.exec.Execute(context.Background(), j); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got, err := f.store.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.State != job.StateRejected {
		t.Fatalf("state %q, want rejected", got.State)
	}
	if got.CompletedAt == nil {
		t.Fatal("rejected job missing CompletedAt")
	}
	if !strings.Contains(got.LastError, "duplicate") {
		t.Fatalf("last error %q missing cause", got.LastError)
	}

	// No retry, no failure log entry.
	count, err := f.store.CountFailures(context.Background())
	if err != nil {
		t.Fatalf("count failures: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejection wrote %d failure entries", count)
	}
	if events := f.events.seen(); len(events) != 1 || events[0] != "rejected" {
		t.Fatalf("events %v, want [rejected]", events)
	}
}

func TestExecuteTransientRetries(t *testing.T) {
	f := newExecFixture(t)
	cause := errors.New("store unavailable")
	f.register(t, "flaky", func(context.Context) error { return cause })
	j := f.enqueue(t, "flaky", 3)

	before := time.Now().UTC()
	err := f.exec.Execute(context.Background(), j)
	if err == nil {
		t.Fatal("expected transient error to surface")
	}

	got, getErr := f.store.GetJob(context.Background(), j.ID)
	if getErr != nil {
		t.Fatalf("get job: %v", getErr)
	}
	if got.State != job.StateRetrying {
		t.Fatalf("state %q, want retrying", got.State)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts %d, want 1", got.Attempts)
	}
	// Constant strategy: next run is one minute out.
	if wait := got.RunAt.Sub(before); wait < 50*time.Second || wait > 70*time.Second {
		t.Fatalf("retry scheduled %v out, want ~1m", wait)
	}
	if events := f.events.seen(); len(events) != 1 || events[0] != "retrying" {
		t.Fatalf("events %v, want [retrying]", events)
	}
}

func TestExecuteExhaustedAttempts(t *testing.T) {
	f := newExecFixture(t)
	cause := errors.New("store unavailable")
	f.register(t, "doomed", func(context.Context) error { return cause })
	j := f.enqueue(t, "doomed", 3)
	j.Attempts = 2 // Two attempts already burned; this one is the last.

	err := f.exec.Execute(context.Background(), j)
	if !errors.Is(err, cause) {
		t.Fatalf("expected final handler error, got %v", err)
	}

	got, getErr := f.store.GetJob(context.Background(), j.ID)
	if getErr != nil {
		t.Fatalf("get job: %v", getErr)
	}
	if got.State != job.StateFailed {
		t.Fatalf("state %q, want failed", got.State)
	}
	if got.Attempts != 3 {
		t.Fatalf("attempts %d, want 3", got.Attempts)
	}

	entries, listErr := f.store.ListFailures(context.Background(), faillog.ListOpts{Limit: 10})
	if listErr != nil {
		t.Fatalf("list failures: %v", listErr)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 failure entry, got %d", len(entries))
	}
	e := entries[0]
	if e.JobID != j.ID || e.JobName != "doomed" || e.Attempts != 3 {
		t.Fatalf("failure entry mismatch: %+v", e)
	}
	if !strings.Contains(e.Error, "store unavailable") {
		t.Fatalf("failure entry error %q missing cause", e.Error)
	}
	if events := f.events.seen(); len(events) != 1 || events[0] != "failed" {
		t.Fatalf("events %v, want [failed]", events)
	}
}

func TestExecuteMiddlewareOrder(t *testing.T) {
	var order []string
	outer := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		order = append(order, "outer-in")
		err := next(ctx)
		order = append(order, "outer-out")
		return err
	}
	inner := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		order = append(order, "inner-in")
		err := next(ctx)
		order = append(order, "inner-out")
		return err
	}

	f := newExecFixture(t, outer, inner)
	f.register(t, "noop", func(context.Context) error {
		order = append(order, "handler")
		return nil
	})
	j := f.enqueue(t, "noop", 3)

	if err := f.exec.Execute(context.Background(), j); err != nil {
		t.Fatalf("execute: %v", err)
	}

	want := []string{"outer-in", "inner-in", "handler", "inner-out", "outer-out"}
	if len(order) != len(want) {
		t.Fatalf("order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order %v, want %v", order, want)
		}
	}
}

func TestExecuteMiddlewareCanShortCircuit(t *testing.T) {
	blocked := errors.New("blocked by middleware")
	gate := func(context.Context, *job.Job, middleware.Handler) error {
		return blocked
	}

	f := newExecFixture(t, gate)
	ran := false
	f.register(t, "gated", func(context.Context) error {
		ran = true
		return nil
	})
	j := f.enqueue(t, "gated", 3)

	err := f.exec.Execute(context.Background(), j)
	if err == nil {
		t.Fatal("expected error from short-circuit")
	}
	if ran {
		t.Fatal("handler ran despite short-circuit")
	}

	// A middleware error is transient like any other handler error.
	got, getErr := f.store.GetJob(context.Background(), j.ID)
	if getErr != nil {
		t.Fatalf("get job: %v", getErr)
	}
	if got.State != job.StateRetrying {
		t.Fatalf("state %q, want retrying", got.State)
	}
}
