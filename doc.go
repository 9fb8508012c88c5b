// Package voteflow provides the asynchronous vote-processing pipeline for a
// polling platform. Votes submitted over HTTP are not applied synchronously:
// they are enqueued as durable jobs, deduplicated by a key derived from the
// poll and participant, picked up by a bounded worker pool, validated against
// a mutable points balance, and committed transactionally. Committed tallies
// are announced to live viewers through the notify broker; jobs that exhaust
// their retry budget are recorded in the failure log.
//
// voteflow is designed as a library, not a service. Import it, construct a
// Pipeline with a store backend, wire the subsystems through the engine
// package, and start processing:
//
//	s := memory.New()
//	p, _ := voteflow.New(
//		voteflow.WithStore(s),
//		voteflow.WithConcurrency(5),
//	)
//	eng, _ := engine.Build(p)
//	_ = eng.Start(ctx)
//	defer eng.Stop(ctx)
//
// Subsystem packages:
//
//   - job: durable job entity, dedup-keyed store contract, typed registry
//   - worker: rejection-aware executor and the bounded worker pool
//   - vote: domain types, the validation/commit protocol, vote submission
//   - faillog: durable record of jobs that exhausted their retries
//   - backoff: retry delay strategies
//   - queue: per-queue and per-event concurrency and rate limits
//   - notify: in-process tally broker and WebSocket fanout
//   - janitor: scheduled maintenance (faillog purge, stale-job reaping)
//   - store/...: memory, PostgreSQL (bun), and Redis backends
package voteflow
