// Package worker drives job processing: an Executor settles a single
// job's outcome after running its handler through middleware, and a
// Pool keeps a fixed set of goroutines polling queues for ready jobs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/backoff"
	"github.com/voteflow/voteflow/ext"
	"github.com/voteflow/voteflow/faillog"
	"github.com/voteflow/voteflow/job"
	"github.com/voteflow/voteflow/middleware"
)

// Executor settles the outcome of one job run: it invokes the handler
// through the middleware chain, then writes the resulting state back to
// the store, schedules retries, records exhausted failures, and fires
// lifecycle hooks.
type Executor struct {
	registry   *job.Registry
	extensions *ext.Registry
	store      job.Store
	failures   *faillog.Service
	backoff    backoff.Strategy
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor wires an Executor from its collaborators.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	store job.Store,
	failures *faillog.Service,
	bo backoff.Strategy,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry:   registry,
		extensions: extensions,
		store:      store,
		failures:   failures,
		backoff:    bo,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute processes j and settles it according to the outcome.
// On success: marks completed, emits JobCompleted.
// On rejection: marks rejected and acknowledges, emits JobRejected. Rejected
// jobs never retry and never reach the failure log.
// On transient failure with attempts remaining: marks retrying with backoff,
// emits JobRetrying.
// On transient failure with attempts exhausted: marks failed, records a
// failure log entry, emits JobFailed.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	handler, ok := e.registry.Get(j.Name)
	if !ok {
		return fmt.Errorf("no handler registered for job %q", j.Name)
	}

	start := time.Now()

	terminal := func(ctx context.Context) error {
		return handler(ctx, j.Payload)
	}
	err := e.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	now := time.Now().UTC()
	j.UpdatedAt = now

	if err != nil {
		if voteflow.IsRejection(err) {
			return e.handleRejection(ctx, j, err, now)
		}
		return e.handleFailure(ctx, j, err, now)
	}

	return e.handleSuccess(ctx, j, now, elapsed)
}

// handleSuccess records completion and notifies extensions.
func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, now time.Time, elapsed time.Duration) error {
	j.State = job.StateCompleted
	j.CompletedAt = &now

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("could not persist completed job",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

// handleRejection acknowledges a business-level terminal outcome. The job
// is settled in place: no retry, no failure log entry.
func (e *Executor) handleRejection(ctx context.Context, j *job.Job, rejectErr error, now time.Time) error {
	j.State = job.StateRejected
	j.LastError = rejectErr.Error()
	j.CompletedAt = &now

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("failed to update job as rejected",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.extensions.EmitJobRejected(ctx, j, rejectErr)

	attrs := []any{
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.String("error", rejectErr.Error()),
	}
	if r, ok := voteflow.AsRejection(rejectErr); ok {
		attrs = append(attrs, slog.String("reason", string(r.Reason)))
	}
	e.logger.Info("job rejected", attrs...)

	return nil
}

// handleFailure increments the attempt counter and either retries or settles
// the job into the failure log.
func (e *Executor) handleFailure(ctx context.Context, j *job.Job, handlerErr error, now time.Time) error {
	j.Attempts++
	j.LastError = handlerErr.Error()

	if j.Attempts < j.MaxAttempts {
		return e.scheduleRetry(ctx, j, handlerErr, now)
	}

	return e.recordFailure(ctx, j, handlerErr, now)
}

// scheduleRetry moves the job to StateRetrying and pushes RunAt out by
// the strategy's delay for the current attempt.
func (e *Executor) scheduleRetry(ctx context.Context, j *job.Job, handlerErr error, now time.Time) error {
	delay := e.backoff.Delay(j.Attempts)
	nextRunAt := now.Add(delay)
	j.RunAt = nextRunAt
	j.State = job.StateRetrying

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("could not persist retry schedule",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.extensions.EmitJobRetrying(ctx, j, j.Attempts, nextRunAt)

	e.logger.Info("retry scheduled",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.Int("attempt", j.Attempts),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.Duration("delay", delay),
	)

	return fmt.Errorf("job %s attempt %d/%d: %w", j.Name, j.Attempts, j.MaxAttempts, handlerErr)
}

// recordFailure marks the job as failed, writes a failure log entry, and
// emits events.
func (e *Executor) recordFailure(ctx context.Context, j *job.Job, handlerErr error, now time.Time) error {
	j.State = job.StateFailed
	j.CompletedAt = &now

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("could not persist failed job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	if e.failures != nil {
		if logErr := e.failures.Push(ctx, j, handlerErr); logErr != nil {
			e.logger.Error("failed to record failure log entry",
				slog.String("job_id", j.ID.String()),
				slog.String("error", logErr.Error()),
			)
		}
	}

	e.extensions.EmitJobFailed(ctx, j, handlerErr)

	e.logger.Warn("job failed after exhausting attempts",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.Int("attempts", j.Attempts),
		slog.String("error", handlerErr.Error()),
	)

	return handlerErr
}
