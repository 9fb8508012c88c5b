// Package engine wires all VoteFlow subsystems together. It creates the
// extension registry, job registry, middleware chain, worker pool, vote
// processor, and submission service, and provides Register/Enqueue
// operations.
//
// This package exists to break the import cycle: the root voteflow
// package defines the rejection types and configuration (imported by
// job, vote, worker, etc.) and so cannot import those packages back. The
// engine package sits above all subsystem packages and below the
// application layer.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/backoff"
	"github.com/voteflow/voteflow/ext"
	"github.com/voteflow/voteflow/faillog"
	"github.com/voteflow/voteflow/id"
	"github.com/voteflow/voteflow/janitor"
	"github.com/voteflow/voteflow/job"
	mw "github.com/voteflow/voteflow/middleware"
	"github.com/voteflow/voteflow/observability"
	"github.com/voteflow/voteflow/queue"
	"github.com/voteflow/voteflow/vote"
	"github.com/voteflow/voteflow/worker"
)

// Engine wraps a Pipeline with typed subsystem access.
// Use Build() to create one from a Pipeline.
type Engine struct {
	p          *voteflow.Pipeline
	extensions *ext.Registry
	registry   *job.Registry
	jobStore   job.Store
	failures   *faillog.Service
	bo         backoff.Strategy
	pool       *worker.Pool
	mws        []mw.Middleware
	logger     *slog.Logger

	// Vote subsystem.
	processor *vote.Processor
	votes     *vote.Service
	notifier  vote.Notifier
	flagTTL   time.Duration

	// Queue subsystem.
	queueConfigs []queue.Config
	queueManager *queue.Manager

	// Janitor subsystem.
	janitor      *janitor.Janitor
	janitorTasks []janitor.Task

	// Optional OTel providers; the global ones apply when nil.
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option customizes an Engine during assembly.
type Option func(*Engine)

// WithExtension hooks an extension into the engine's lifecycle events.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware appends middleware after the built-in chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff overrides the retry delay strategy.
// If not set, backoff.DefaultStrategy() (exponential, 5s base) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithQueueConfig installs per-queue rate and concurrency limits.
// Queues without an entry run unthrottled.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) {
		eng.queueConfigs = append(eng.queueConfigs, configs...)
	}
}

// WithNotifier sets the tally-change notifier the vote processor uses
// after each commit. Typically a *notify.Broker; it is also registered
// as an extension when it implements ext.Extension.
func WithNotifier(n vote.Notifier) Option {
	return func(eng *Engine) {
		eng.notifier = n
	}
}

// WithFlagTTL overrides the idempotency flag horizon for the vote
// processor.
func WithFlagTTL(d time.Duration) Option {
	return func(eng *Engine) {
		eng.flagTTL = d
	}
}

// WithJanitorTasks registers maintenance sweeps the janitor fires on
// their cron schedules.
func WithJanitorTasks(tasks ...janitor.Task) Option {
	return func(eng *Engine) {
		eng.janitorTasks = append(eng.janitorTasks, tasks...)
	}
}

// WithTracerProvider routes the tracing middleware through tp rather
// than the process-global otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider routes the metrics middleware and the
// observability extension through mp rather than the process-global
// otel.GetMeterProvider().
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Pipeline.
// The Pipeline's store must implement the job, faillog, and vote store
// interfaces; the idempotency flag store is optional.
func Build(p *voteflow.Pipeline, opts ...Option) (*Engine, error) {
	logger := p.Logger()
	store := p.Store()

	if store == nil {
		return nil, voteflow.ErrNoStore
	}

	// The store must carry every required subsystem interface.
	js, err := storeAs[job.Store](store, "job.Store")
	if err != nil {
		return nil, err
	}
	fs, err := storeAs[faillog.Store](store, "faillog.Store")
	if err != nil {
		return nil, err
	}
	ps, err := storeAs[vote.PollStore](store, "vote.PollStore")
	if err != nil {
		return nil, err
	}
	bs, err := storeAs[vote.BalanceStore](store, "vote.BalanceStore")
	if err != nil {
		return nil, err
	}
	ls, err := storeAs[vote.Ledger](store, "vote.Ledger")
	if err != nil {
		return nil, err
	}
	cs, err := storeAs[vote.Committer](store, "vote.Committer")
	if err != nil {
		return nil, err
	}

	// Idempotency flags are an optimization: a store without them still
	// processes votes correctly.
	flags, _ := store.(vote.FlagStore)

	eng := &Engine{
		p:          p,
		extensions: ext.NewRegistry(logger),
		registry:   job.NewRegistry(),
		jobStore:   js,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	// Fall back to the standard retry curve.
	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}

	// Create the failure log service.
	eng.failures = faillog.NewService(fs)

	// Register the notifier's lifecycle hooks when it is an extension
	// (the notify broker is both).
	if e, ok := eng.notifier.(ext.Extension); ok {
		eng.extensions.Register(e)
	}

	tracingMw, metricsMw := eng.telemetryMiddleware()
	eng.extensions.Register(eng.metricsExtension())

	// Build default middleware stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	// Create executor and pool.
	config := p.Config()
	executor := worker.NewExecutor(eng.registry, eng.extensions, eng.jobStore, eng.failures, eng.bo, logger, allMws...)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(config.Concurrency),
		worker.WithPoolQueues(config.Queues),
		worker.WithPollInterval(config.PollInterval),
		worker.WithHeartbeatInterval(config.HeartbeatInterval),
		worker.WithStaleJobThreshold(config.StaleJobThreshold),
	}

	// A queue manager only exists when limits were configured.
	if len(eng.queueConfigs) > 0 {
		eng.queueManager = queue.NewManager(eng.queueConfigs...)
		poolOpts = append(poolOpts, worker.WithQueueManager(eng.queueManager))
	}

	eng.pool = worker.NewPool(
		eng.jobStore,
		executor,
		eng.extensions,
		logger,
		poolOpts...,
	)

	// Wire back into the Pipeline.
	p.SetPool(eng.pool)
	p.SetExtensions(eng.extensions)

	// Create the vote processor and register the job handler.
	procOpts := []vote.ProcessorOption{
		vote.WithCommitHook(eng.extensions.EmitVoteCommitted),
	}
	if flags != nil {
		procOpts = append(procOpts, vote.WithFlags(flags))
	}
	if eng.notifier != nil {
		procOpts = append(procOpts, vote.WithNotifier(eng.notifier))
	}
	if eng.flagTTL > 0 {
		procOpts = append(procOpts, vote.WithFlagTTL(eng.flagTTL))
	}
	eng.processor = vote.NewProcessor(ps, bs, ls, cs, logger, procOpts...)

	Register(eng, job.NewDefinition(vote.JobName,
		func(ctx context.Context, intent vote.Intent) error {
			return eng.processor.Process(ctx, intent)
		},
	))

	// Create the submission service on top of the engine's enqueue path.
	eng.votes = vote.NewService(eng, ps, bs, logger)

	// Create the janitor if tasks were registered.
	if len(eng.janitorTasks) > 0 {
		eng.janitor = janitor.New(eng.extensions, logger)
		for _, t := range eng.janitorTasks {
			if err := eng.janitor.AddTask(t); err != nil {
				return nil, fmt.Errorf("voteflow: janitor task %q: %w", t.Name, err)
			}
		}
	}

	return eng, nil
}

// storeAs asserts the pipeline store into one subsystem interface.
func storeAs[T any](store voteflow.Storer, what string) (T, error) {
	t, ok := any(store).(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("voteflow: store does not implement %s", what)
	}
	return t, nil
}

// telemetryMiddleware builds the tracing and metrics middleware from the
// engine's providers, falling back to the OTel globals.
func (eng *Engine) telemetryMiddleware() (tracing, metrics mw.Middleware) {
	tracing = mw.Tracing()
	if eng.tracerProvider != nil {
		tracing = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/voteflow/voteflow"))
	}
	metrics = mw.Metrics()
	if eng.meterProvider != nil {
		metrics = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/voteflow/voteflow"))
	}
	return tracing, metrics
}

// metricsExtension builds the lifecycle-event metrics extension from the
// engine's meter provider, falling back to the OTel global.
func (eng *Engine) metricsExtension() *observability.MetricsExtension {
	if eng.meterProvider != nil {
		return observability.NewMetricsExtensionWithMeter(
			eng.meterProvider.Meter("github.com/voteflow/voteflow/observability"))
	}
	return observability.NewMetricsExtension()
}

// Register binds a typed job definition to the engine's registry.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// Enqueue persists a new job for asynchronous processing.
func Enqueue[T any](ctx context.Context, eng *Engine, name string, payload T, opts ...job.Option) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job %q: %w", name, err)
	}

	return eng.EnqueueRaw(ctx, name, data, opts...)
}

// EnqueueRaw enqueues a job with a pre-serialized payload. When the job
// carries a dedup key and another job under the same key is still active,
// the store reports voteflow.ErrDuplicateJob and nothing is persisted.
func (eng *Engine) EnqueueRaw(ctx context.Context, name string, payload []byte, opts ...job.Option) (*job.Job, error) {
	now := time.Now().UTC()

	// Apply functional options.
	jobOpts := job.DefaultOptions()
	for _, opt := range opts {
		opt(&jobOpts)
	}

	j := &job.Job{
		ID:           id.NewJobID(),
		Key:          jobOpts.Key,
		Name:         name,
		Payload:      payload,
		State:        job.StatePending,
		Queue:        jobOpts.Queue,
		Priority:     jobOpts.Priority,
		MaxAttempts:  jobOpts.MaxAttempts,
		Timeout:      jobOpts.Timeout,
		ScopeEventID: jobOpts.ScopeEventID,
		RunAt:        now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if !jobOpts.RunAt.IsZero() {
		j.RunAt = jobOpts.RunAt
	}

	if err := eng.jobStore.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}

	eng.extensions.EmitJobEnqueued(ctx, j)
	return j, nil
}

// Start begins job processing by starting the janitor and the worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	if eng.janitor != nil {
		if err := eng.janitor.Start(ctx); err != nil {
			return fmt.Errorf("start janitor: %w", err)
		}
	}
	return eng.p.Start(ctx)
}

// Stop gracefully shuts down the engine: the janitor stops firing, the
// pool stops leasing and drains in-flight jobs, extensions get the
// shutdown hook, and the store closes.
func (eng *Engine) Stop(ctx context.Context) error {
	if eng.janitor != nil {
		if err := eng.janitor.Stop(ctx); err != nil {
			eng.logger.Error("janitor stop error", slog.String("error", err.Error()))
		}
	}
	return eng.p.Stop(ctx)
}

// Extensions exposes the hook registry, mainly for tests.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry exposes the job definition registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Pipeline returns the underlying Pipeline.
func (eng *Engine) Pipeline() *voteflow.Pipeline { return eng.p }

// Failures returns the engine's failure log service for inspection.
func (eng *Engine) Failures() *faillog.Service { return eng.failures }

// Votes returns the vote submission service.
func (eng *Engine) Votes() *vote.Service { return eng.votes }

// Processor returns the vote processor.
func (eng *Engine) Processor() *vote.Processor { return eng.processor }

// Janitor returns the janitor, or nil if no tasks were registered.
func (eng *Engine) Janitor() *janitor.Janitor { return eng.janitor }

// QueueManager returns the queue manager, or nil if no queue configs
// were provided.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }
