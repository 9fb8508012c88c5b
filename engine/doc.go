// Package engine assembles the pipeline: it builds the processor, the
// submission service, the worker pool, the middleware stack, and the
// janitor from a configured voteflow.Pipeline, and is the API
// applications register and enqueue work through.
//
// It is a separate package because the root voteflow package sits below
// every subsystem (they import its error and config types) and so cannot
// reach back up to wire them together.
//
// # Building an Engine
//
//	p, err := voteflow.New(
//	    voteflow.WithStore(pgStore),
//	    voteflow.WithConcurrency(5),
//	)
//
//	eng, err := engine.Build(p,
//	    engine.WithNotifier(broker),
//	    engine.WithMiddleware(myMiddleware),
//	    engine.WithBackoff(backoff.DefaultStrategy()),
//	    engine.WithQueueConfig(queue.Config{Name: "votes", RateLimit: 100}),
//	    engine.WithJanitorTasks(
//	        janitor.PurgeJobsTask(pgStore, "@every 1h", 24*time.Hour),
//	    ),
//	)
//
// Build registers the vote-processing job handler automatically; extra
// job types can be added with [Register].
//
// # Submitting Votes
//
//	j, err := eng.Votes().Submit(ctx, pollID, optionID, participant, points)
//
// Submit validates synchronously and enqueues; the commit happens on a
// worker. A nil job with a nil error means the submission coalesced with
// one already in flight.
//
// # Options
//
//   - [WithExtension] registers a lifecycle extension
//   - [WithMiddleware] appends to the execution chain
//   - [WithBackoff] swaps the retry schedule
//   - [WithQueueConfig] bounds queues and events
//   - [WithNotifier] sets the tally-change notifier
//   - [WithJanitorTasks] schedules maintenance sweeps
//   - [WithTracerProvider] / [WithMeterProvider] pin OpenTelemetry
//     providers instead of the globals
package engine
