package worker_test

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/job"
	"github.com/voteflow/voteflow/worker"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestPoolProcessesJobs(t *testing.T) {
	f := newExecFixture(t)
	var processed atomic.Int64
	f.register(t, "count", func(context.Context) error {
		processed.Add(1)
		return nil
	})

	const n = 10
	for range n {
		f.enqueue(t, "count", 3)
	}

	pool := worker.NewPool(f.store, f.exec, f.extReg, slog.Default(),
		worker.WithPoolConcurrency(3),
		worker.WithPollInterval(10*time.Millisecond),
	)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer pool.Stop(context.Background()) //nolint:errcheck

	waitFor(t, 5*time.Second, func() bool { return processed.Load() == n })

	waitFor(t, 5*time.Second, func() bool {
		count, err := f.store.CountJobs(context.Background(), job.CountOpts{State: job.StateCompleted})
		return err == nil && count == n
	})
}

func TestPoolStopWaitsForWorkers(t *testing.T) {
	f := newExecFixture(t)
	var started, finished atomic.Int64
	release := make(chan struct{})
	f.register(t, "slow", func(context.Context) error {
		started.Add(1)
		<-release
		finished.Add(1)
		return nil
	})
	f.enqueue(t, "slow", 3)

	pool := worker.NewPool(f.store, f.exec, f.extReg, slog.Default(),
		worker.WithPoolConcurrency(1),
		worker.WithPollInterval(10*time.Millisecond),
	)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool { return started.Load() == 1 })

	stopDone := make(chan error, 1)
	go func() { stopDone <- pool.Stop(context.Background()) }()

	// Stop must block while the job is in flight.
	select {
	case <-stopDone:
		t.Fatal("Stop returned before the active job finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-stopDone; err != nil {
		t.Fatalf("stop: %v", err)
	}
	if finished.Load() != 1 {
		t.Fatal("active job did not finish before shutdown completed")
	}
}

func TestPoolStopCancelsOnDeadline(t *testing.T) {
	f := newExecFixture(t)
	var cancelled atomic.Bool
	f.register(t, "hang", func(ctx context.Context) error {
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})
	f.enqueue(t, "hang", 3)

	pool := worker.NewPool(f.store, f.exec, f.extReg, slog.Default(),
		worker.WithPoolConcurrency(1),
		worker.WithPollInterval(10*time.Millisecond),
	)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		count, err := f.store.CountJobs(context.Background(), job.CountOpts{State: job.StateRunning})
		return err == nil && count == 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !cancelled.Load() {
		t.Fatal("hung job was not cancelled at the shutdown deadline")
	}
}

// denyingManager refuses every job and counts the attempts.
type denyingManager struct {
	mu       sync.Mutex
	acquires int
	releases int
}

func (m *denyingManager) Acquire(_, _ string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquires++
	return false
}

func (m *denyingManager) Release(_, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
}

func (m *denyingManager) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquires, m.releases
}

func TestPoolRateLimitedJobReturnsToPending(t *testing.T) {
	f := newExecFixture(t)
	var processed atomic.Int64
	f.register(t, "limited", func(context.Context) error {
		processed.Add(1)
		return nil
	})
	f.enqueue(t, "limited", 3)

	mgr := &denyingManager{}
	pool := worker.NewPool(f.store, f.exec, f.extReg, slog.Default(),
		worker.WithPoolConcurrency(1),
		worker.WithPollInterval(10*time.Millisecond),
		worker.WithQueueManager(mgr),
	)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer pool.Stop(context.Background()) //nolint:errcheck

	waitFor(t, 5*time.Second, func() bool {
		acquires, _ := mgr.counts()
		return acquires >= 2
	})

	if processed.Load() != 0 {
		t.Fatal("rate-limited job was executed")
	}
	// The denied job never acquired a slot, so nothing is released.
	_, releases := mgr.counts()
	if releases != 0 {
		t.Fatalf("denied job released %d slots", releases)
	}
}

func TestPoolStartTwiceIsIdempotent(t *testing.T) {
	f := newExecFixture(t)
	pool := worker.NewPool(f.store, f.exec, f.extReg, slog.Default(),
		worker.WithPollInterval(10*time.Millisecond),
	)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if err := pool.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// Stop after stop is a no-op.
	if err := pool.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestPoolQueueFilter(t *testing.T) {
	f := newExecFixture(t)
	var processed atomic.Int64
	f.register(t, "count", func(context.Context) error {
		processed.Add(1)
		return nil
	})

	// One job on the polled queue, one on a queue the pool ignores.
	f.enqueue(t, "count", 3)
	other := f.enqueue(t, "count", 3)
	other.Queue = "other"
	if err := f.store.UpdateJob(context.Background(), other); err != nil {
		t.Fatalf("move job to other queue: %v", err)
	}

	pool := worker.NewPool(f.store, f.exec, f.extReg, slog.Default(),
		worker.WithPoolConcurrency(1),
		worker.WithPollInterval(10*time.Millisecond),
		worker.WithPoolQueues([]string{voteflow.VoteQueue}),
	)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer pool.Stop(context.Background()) //nolint:errcheck

	waitFor(t, 5*time.Second, func() bool { return processed.Load() == 1 })
	time.Sleep(50 * time.Millisecond)
	if processed.Load() != 1 {
		t.Fatalf("pool processed %d jobs, want 1", processed.Load())
	}

	got, err := f.store.GetJob(context.Background(), other.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.State != job.StatePending {
		t.Fatalf("other-queue job state %q, want pending", got.State)
	}
}
