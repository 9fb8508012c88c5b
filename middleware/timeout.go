package middleware

import (
	"context"
	"log/slog"

	"github.com/voteflow/voteflow/job"
)

// Timeout applies the job's own Timeout as a context deadline. Jobs with a
// zero Timeout run unbounded. Handlers are expected to watch ctx and
// surface context.DeadlineExceeded, which then follows the transient-error
// retry path.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.Timeout <= 0 {
			return next(ctx)
		}
		logger.Debug("applying job deadline",
			slog.String("job_id", j.ID.String()),
			slog.Duration("timeout", j.Timeout),
		)
		ctx, cancel := context.WithTimeout(ctx, j.Timeout)
		defer cancel()
		return next(ctx)
	}
}
