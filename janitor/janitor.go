// Package janitor runs scheduled maintenance sweeps over the pipeline's
// stores: purging settled jobs past their retention window and trimming
// old failure log entries. Schedules are cron expressions (including
// descriptors like "@every 1h").
package janitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/voteflow/voteflow/faillog"
	"github.com/voteflow/voteflow/job"
)

// Emitter emits sweep lifecycle events.
// ext.Registry satisfies this interface via EmitSweepCompleted.
type Emitter interface {
	EmitSweepCompleted(ctx context.Context, task string, removed int64)
}

// SweepFunc performs one maintenance sweep and reports how many rows
// it removed.
type SweepFunc func(ctx context.Context) (int64, error)

// Task pairs a named sweep with its cron schedule.
type Task struct {
	// Name identifies the task in logs and metrics.
	Name string

	// Schedule is a cron expression (e.g., "0 3 * * *" or "@every 1h").
	Schedule string

	// Sweep is the maintenance function to run on each fire.
	Sweep SweepFunc
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// taskState tracks a task with its parsed schedule and next fire time.
type taskState struct {
	task  Task
	sched cronlib.Schedule
	next  time.Time
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithTickInterval sets how often the janitor checks for due tasks.
func WithTickInterval(d time.Duration) Option {
	return func(j *Janitor) { j.tickInterval = d }
}

// Janitor fires maintenance tasks on a tick loop.
type Janitor struct {
	emitter Emitter
	logger  *slog.Logger

	tickInterval time.Duration

	mu    sync.Mutex
	tasks []*taskState

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Janitor. Tasks are added with AddTask before Start.
func New(emitter Emitter, logger *slog.Logger, opts ...Option) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Janitor{
		emitter:      emitter,
		logger:       logger,
		tickInterval: time.Minute,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// AddTask registers a maintenance task. Returns an error if the schedule
// does not parse.
func (j *Janitor) AddTask(t Task) error {
	sched, err := ParseSchedule(t.Schedule)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.tasks = append(j.tasks, &taskState{
		task:  t,
		sched: sched,
		next:  sched.Next(time.Now().UTC()),
	})
	j.mu.Unlock()
	return nil
}

// Start launches the tick goroutine. It returns immediately.
func (j *Janitor) Start(_ context.Context) error {
	j.wg.Add(1)
	go j.tickLoop()
	j.logger.Info("janitor started",
		slog.Int("tasks", len(j.tasks)),
		slog.Duration("tick_interval", j.tickInterval),
	)
	return nil
}

// Stop signals the janitor to stop and waits for the tick loop to finish.
func (j *Janitor) Stop(_ context.Context) error {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Info("janitor stopped")
	return nil
}

// RunAll fires every task immediately, regardless of schedule. Useful
// for tests and operational one-shots.
func (j *Janitor) RunAll(ctx context.Context) {
	j.mu.Lock()
	states := make([]*taskState, len(j.tasks))
	copy(states, j.tasks)
	j.mu.Unlock()

	for _, st := range states {
		j.fire(ctx, st, time.Now().UTC())
	}
}

func (j *Janitor) tickLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.tick()
		}
	}
}

func (j *Janitor) tick() {
	now := time.Now().UTC()

	j.mu.Lock()
	due := make([]*taskState, 0, len(j.tasks))
	for _, st := range j.tasks {
		if !st.next.After(now) {
			due = append(due, st)
		}
	}
	j.mu.Unlock()

	for _, st := range due {
		j.fire(context.Background(), st, now)
	}
}

func (j *Janitor) fire(ctx context.Context, st *taskState, now time.Time) {
	removed, err := st.task.Sweep(ctx)

	j.mu.Lock()
	st.next = st.sched.Next(now)
	j.mu.Unlock()

	if err != nil {
		j.logger.Error("sweep error",
			slog.String("task", st.task.Name),
			slog.String("error", err.Error()),
		)
		return
	}

	if j.emitter != nil {
		j.emitter.EmitSweepCompleted(ctx, st.task.Name, removed)
	}

	j.logger.Info("sweep completed",
		slog.String("task", st.task.Name),
		slog.Int64("removed", removed),
	)
}

// ── Standard tasks ──────────────────────────────────

// PurgeJobsTask removes settled jobs (completed, rejected, failed) older
// than the retention window.
func PurgeJobsTask(store job.Store, schedule string, retention time.Duration) Task {
	return Task{
		Name:     "purge-jobs",
		Schedule: schedule,
		Sweep: func(ctx context.Context) (int64, error) {
			return store.PurgeJobs(ctx, time.Now().UTC().Add(-retention))
		},
	}
}

// PurgeFailuresTask removes failure log entries older than the retention
// window.
func PurgeFailuresTask(store faillog.Store, schedule string, retention time.Duration) Task {
	return Task{
		Name:     "purge-failures",
		Schedule: schedule,
		Sweep: func(ctx context.Context) (int64, error) {
			return store.PurgeFailures(ctx, time.Now().UTC().Add(-retention))
		},
	}
}
