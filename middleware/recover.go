package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/voteflow/voteflow/job"
)

// Recover turns a handler panic into an ordinary error so the job lands in
// retry accounting instead of killing the worker. The panic value and
// stack are logged at Error.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error("job handler panicked",
				slog.String("job_name", j.Name),
				slog.String("job_id", j.ID.String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic in job %s: %v", j.Name, r)
		}()
		return next(ctx)
	}
}
