// Package middleware wraps job execution with cross-cutting behavior.
//
// A [Middleware] receives the job and the next handler in the chain and
// decides whether to call it. [Chain] composes a slice into one
// middleware, first element outermost:
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// The built-ins are [Recover], [Logging], [Timeout], [Tracing], and
// [Metrics]. Each one treats a voteflow.Rejection as a normal protocol
// outcome rather than a fault: rejections log at Info, count under their
// own metric status, and leave spans unmarked by errors.
//
// A custom middleware is just a function:
//
//	func attempts() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	        if j.Attempts > 0 {
//	            // a retry, not the first run
//	        }
//	        return next(ctx)
//	    }
//	}
//
// Returning without calling next short-circuits the chain; the executor
// treats the returned error like any handler error.
package middleware
