package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/job"
)

// Logging returns middleware that records the lifecycle of each job.
// Business rejections are logged at Info, not Error: they are expected
// outcomes of the vote protocol, not faults.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		l := logger.With(
			slog.String("job_name", j.Name),
			slog.String("job_id", j.ID.String()),
		)
		l.Info("job started", slog.String("queue", j.Queue))

		start := time.Now()
		err := next(ctx)
		l = l.With(slog.Duration("elapsed", time.Since(start)))

		switch {
		case err == nil:
			l.Info("job completed")
		case voteflow.IsRejection(err):
			l.Info("job rejected", slog.String("reason", err.Error()))
		default:
			l.Error("job failed", slog.String("error", err.Error()))
		}

		return err
	}
}
