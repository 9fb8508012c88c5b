package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/voteflow/voteflow/job"
	"github.com/voteflow/voteflow/vote"
)

// registration captures which hooks one extension implements. The type
// assertions happen once, at Register time; a nil field means the
// extension does not care about that event.
type registration struct {
	name string

	enqueued  JobEnqueued
	started   JobStarted
	completed JobCompleted
	rejected  JobRejected
	retrying  JobRetrying
	failed    JobFailed
	vote      VoteCommitted
	sweep     SweepCompleted
	shutdown  Shutdown
}

// Registry fans lifecycle events out to registered extensions, in
// registration order. Hook errors are logged and swallowed so a broken
// extension cannot stall vote processing.
type Registry struct {
	extensions []Extension
	regs       []registration
	logger     *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension. Which events reach it is determined here by
// interface assertion, not per emit.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)

	reg := registration{name: e.Name()}
	reg.enqueued, _ = e.(JobEnqueued)
	reg.started, _ = e.(JobStarted)
	reg.completed, _ = e.(JobCompleted)
	reg.rejected, _ = e.(JobRejected)
	reg.retrying, _ = e.(JobRetrying)
	reg.failed, _ = e.(JobFailed)
	reg.vote, _ = e.(VoteCommitted)
	reg.sweep, _ = e.(SweepCompleted)
	reg.shutdown, _ = e.(Shutdown)
	r.regs = append(r.regs, reg)
}

// Extensions returns the registered extensions in order.
func (r *Registry) Extensions() []Extension { return r.extensions }

func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	for _, reg := range r.regs {
		if reg.enqueued == nil {
			continue
		}
		r.report(reg.name, "OnJobEnqueued", reg.enqueued.OnJobEnqueued(ctx, j))
	}
}

func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, reg := range r.regs {
		if reg.started == nil {
			continue
		}
		r.report(reg.name, "OnJobStarted", reg.started.OnJobStarted(ctx, j))
	}
}

func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, reg := range r.regs {
		if reg.completed == nil {
			continue
		}
		r.report(reg.name, "OnJobCompleted", reg.completed.OnJobCompleted(ctx, j, elapsed))
	}
}

func (r *Registry) EmitJobRejected(ctx context.Context, j *job.Job, jobErr error) {
	for _, reg := range r.regs {
		if reg.rejected == nil {
			continue
		}
		r.report(reg.name, "OnJobRejected", reg.rejected.OnJobRejected(ctx, j, jobErr))
	}
}

func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) {
	for _, reg := range r.regs {
		if reg.retrying == nil {
			continue
		}
		r.report(reg.name, "OnJobRetrying", reg.retrying.OnJobRetrying(ctx, j, attempt, nextRunAt))
	}
}

func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	for _, reg := range r.regs {
		if reg.failed == nil {
			continue
		}
		r.report(reg.name, "OnJobFailed", reg.failed.OnJobFailed(ctx, j, jobErr))
	}
}

func (r *Registry) EmitVoteCommitted(ctx context.Context, v *vote.Vote) {
	for _, reg := range r.regs {
		if reg.vote == nil {
			continue
		}
		r.report(reg.name, "OnVoteCommitted", reg.vote.OnVoteCommitted(ctx, v))
	}
}

func (r *Registry) EmitSweepCompleted(ctx context.Context, task string, removed int64) {
	for _, reg := range r.regs {
		if reg.sweep == nil {
			continue
		}
		r.report(reg.name, "OnSweepCompleted", reg.sweep.OnSweepCompleted(ctx, task, removed))
	}
}

func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, reg := range r.regs {
		if reg.shutdown == nil {
			continue
		}
		r.report(reg.name, "OnShutdown", reg.shutdown.OnShutdown(ctx))
	}
}

// report logs a hook error, if any. Hooks observe the pipeline; their
// failures never feed back into it.
func (r *Registry) report(extName, hook string, err error) {
	if err == nil {
		return
	}
	r.logger.Warn("extension hook error",
		slog.String("extension", extName),
		slog.String("hook", hook),
		slog.String("error", err.Error()),
	)
}
