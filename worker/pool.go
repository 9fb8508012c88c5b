package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/ext"
	"github.com/voteflow/voteflow/id"
	"github.com/voteflow/voteflow/job"
)

// QueueManager gates job execution per queue and per event. The pool asks
// Acquire before running a dequeued job; a refusal sends the job back to
// pending. Release is called only after an acquired job finishes.
type QueueManager interface {
	Acquire(queue, eventID string) bool
	Release(queue, eventID string)
}

// leaseSet tracks the jobs currently held by this pool, keyed by job id,
// with the cancel func that aborts the running handler.
type leaseSet struct {
	mu     sync.Mutex
	cancel map[id.JobID]context.CancelFunc
}

func newLeaseSet() *leaseSet {
	return &leaseSet{cancel: make(map[id.JobID]context.CancelFunc)}
}

func (l *leaseSet) add(jobID id.JobID, cancel context.CancelFunc) {
	l.mu.Lock()
	l.cancel[jobID] = cancel
	l.mu.Unlock()
}

func (l *leaseSet) remove(jobID id.JobID) {
	l.mu.Lock()
	delete(l.cancel, jobID)
	l.mu.Unlock()
}

func (l *leaseSet) ids() []id.JobID {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]id.JobID, 0, len(l.cancel))
	for jobID := range l.cancel {
		out = append(out, jobID)
	}
	return out
}

func (l *leaseSet) cancelAll() []id.JobID {
	l.mu.Lock()
	defer l.mu.Unlock()
	cancelled := make([]id.JobID, 0, len(l.cancel))
	for jobID, cancel := range l.cancel {
		cancel()
		cancelled = append(cancelled, jobID)
	}
	return cancelled
}

// Pool runs a fixed number of worker goroutines that lease jobs from the
// store and push them through the Executor. It optionally maintains
// heartbeats for its leases and reaps leases abandoned by dead workers.
type Pool struct {
	store      job.Store
	executor   *Executor
	extensions *ext.Registry
	limits     QueueManager
	logger     *slog.Logger

	concurrency  int
	queues       []string
	pollInterval time.Duration
	workerID     id.WorkerID

	heartbeatInterval time.Duration
	staleJobThreshold time.Duration

	leases *leaseSet

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPoolQueues sets which queues the pool leases from.
func WithPoolQueues(queues []string) PoolOption {
	return func(p *Pool) { p.queues = queues }
}

// WithPollInterval sets the idle wait between dequeue attempts.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithHeartbeatInterval enables lease heartbeats at the given cadence.
// Zero disables them.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithStaleJobThreshold enables reaping of running jobs whose heartbeat
// is older than d. Zero disables reaping.
func WithStaleJobThreshold(d time.Duration) PoolOption {
	return func(p *Pool) { p.staleJobThreshold = d }
}

// WithQueueManager installs per-queue/per-event limits.
func WithQueueManager(m QueueManager) PoolOption {
	return func(p *Pool) { p.limits = m }
}

// NewPool creates a worker pool. Defaults: 5 workers on the vote queue,
// polling every second.
func NewPool(
	store job.Store,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		store:        store,
		executor:     executor,
		extensions:   extensions,
		logger:       logger,
		concurrency:  5,
		queues:       []string{voteflow.VoteQueue},
		pollInterval: time.Second,
		workerID:     id.NewWorkerID(),
		leases:       newLeaseSet(),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns this pool's identity, as recorded on leased jobs.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the workers and returns immediately. Calling Start on a
// running pool is a no-op.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Any("queues", p.queues),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.workLoop()
		}()
	}
	if p.heartbeatInterval > 0 {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.tick(p.heartbeatInterval, p.renewLeases)
		}()
	}
	if p.staleJobThreshold > 0 {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.tick(p.staleJobThreshold, p.reclaimStale)
		}()
	}
	return nil
}

// Stop tells the workers to finish their current job and exit, then waits.
// When ctx expires first, in-flight handlers are cancelled and Stop waits
// for them to unwind.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))
	close(p.stopCh)

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		p.logger.Info("worker pool drained")
	case <-ctx.Done():
		for _, jobID := range p.leases.cancelAll() {
			p.logger.Warn("shutdown deadline passed, cancelling job",
				slog.String("job_id", jobID.String()))
		}
		p.wg.Wait()
	}
	return nil
}

// workLoop leases and runs one job at a time until the pool stops.
func (p *Pool) workLoop() {
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		leased, err := p.store.DequeueJobs(context.Background(), p.queues, 1)
		if err != nil {
			p.logger.Error("dequeue error", slog.String("error", err.Error()))
			p.idle()
			continue
		}
		if len(leased) == 0 {
			p.idle()
			continue
		}
		p.runOne(leased[0])
	}
}

// runOne executes a single leased job, honoring queue limits.
func (p *Pool) runOne(j *job.Job) {
	if p.limits != nil && !p.limits.Acquire(j.Queue, j.ScopeEventID) {
		p.requeueThrottled(j)
		p.idle()
		return
	}
	if p.limits != nil {
		defer p.limits.Release(j.Queue, j.ScopeEventID)
	}

	p.extensions.EmitJobStarted(context.Background(), j)

	ctx, cancel := context.WithCancel(context.Background())
	p.leases.add(j.ID, cancel)
	defer func() {
		p.leases.remove(j.ID)
		cancel()
	}()

	if err := p.executor.Execute(ctx, j); err != nil {
		p.logger.Debug("job execution failed",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
			slog.String("error", err.Error()),
		)
	}
}

// requeueThrottled hands a rate-limited job back to the queue for a
// later attempt.
func (p *Pool) requeueThrottled(j *job.Job) {
	j.State = job.StatePending
	j.RunAt = time.Now().Add(p.pollInterval)
	if err := p.store.UpdateJob(context.Background(), j); err != nil {
		p.logger.Error("failed to defer throttled job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// tick runs fn on every interval until the pool stops.
func (p *Pool) tick(interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			fn()
		}
	}
}

// renewLeases heartbeats every job this pool currently holds.
func (p *Pool) renewLeases() {
	for _, jobID := range p.leases.ids() {
		if err := p.store.HeartbeatJob(context.Background(), jobID, p.workerID); err != nil {
			p.logger.Warn("heartbeat failed",
				slog.String("job_id", jobID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// reclaimStale returns jobs abandoned by crashed workers to pending.
func (p *Pool) reclaimStale() {
	stale, err := p.store.ReapStaleJobs(context.Background(), p.staleJobThreshold)
	if err != nil {
		p.logger.Error("stale job scan failed", slog.String("error", err.Error()))
		return
	}
	for _, j := range stale {
		j.State = job.StatePending
		j.RunAt = time.Now().UTC()
		j.WorkerID = id.WorkerID{}
		j.HeartbeatAt = nil
		j.StartedAt = nil
		if err := p.store.UpdateJob(context.Background(), j); err != nil {
			p.logger.Error("failed to reset stale job",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		p.logger.Info("reclaimed stale job",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
		)
	}
}

// idle waits one poll interval or until the pool stops.
func (p *Pool) idle() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}
