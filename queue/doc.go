// Package queue throttles job execution per queue and per event with
// token-bucket rate limits and concurrency caps.
//
// Queues are named channels that group related jobs. Jobs carry a Queue
// field that determines which queue they belong to. The pipeline polls the
// queues listed in [voteflow.Config.Queues] (default: ["votes"]).
//
// # Per-Queue Configuration
//
// A [Config] bounds one queue:
//
//	queue.Config{
//	    Name:           "votes",
//	    MaxConcurrency: 5,      // max 5 concurrent vote jobs
//	    RateLimit:      100,    // max 100 jobs/s dequeued from this queue
//	    RateBurst:      200,    // allow bursts up to 200
//	}
//
// Hand configs to the engine at build time:
//
//	eng, err := engine.Build(p, engine.WithQueueConfig(
//	    queue.Config{Name: "votes", MaxConcurrency: 5},
//	    queue.Config{Name: "maintenance", RateLimit: 1},
//	))
//
// # Manager
//
// The worker pool asks [Manager] before running each leased job:
//
//	m := queue.NewManager(configs...)
//	if m.Acquire(queueName, eventID) {
//	    defer m.Release(queueName, eventID)
//	    // run the job
//	}
//
// Rate limits ride on golang.org/x/time/rate; concurrency caps on active
// counts. A queue the Manager was never configured with passes freely,
// bounded only by the pool's own concurrency.
package queue
