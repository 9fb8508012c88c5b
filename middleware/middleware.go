// Package middleware provides composable wrappers around job execution:
// panic recovery, logging, deadlines, tracing, and metrics.
package middleware

import (
	"context"

	"github.com/voteflow/voteflow/job"
)

// Handler is the innermost function of a chain, the job logic itself.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler. It decides whether and when to call next;
// not calling it short-circuits the chain.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain folds mws into one Middleware. The first element becomes the
// outermost wrapper, so Chain(logging, recover, timeout) runs as
// logging → recover → timeout → handler.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		return run(ctx, j, mws, next)
	}
}

// run invokes the head of mws with the rest of the chain as its next.
func run(ctx context.Context, j *job.Job, mws []Middleware, terminal Handler) error {
	if len(mws) == 0 {
		return terminal(ctx)
	}
	return mws[0](ctx, j, func(ctx context.Context) error {
		return run(ctx, j, mws[1:], terminal)
	})
}
