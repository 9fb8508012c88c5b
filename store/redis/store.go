// Package redis implements the job queue, failure log, and idempotency
// flags on Redis for high-throughput deployments. Jobs are stored as
// Hashes with a Sorted Set per queue ordered by due time, and flags use
// plain SET with expiry so the TTL is enforced server-side.
//
// This backend is partial on purpose: the poll catalog, balances, and the
// vote ledger need transactional commits and live in the bun (Postgres)
// backend. The engine type-asserts the store per subsystem, so a Redis
// store can carry the queue and flags next to a SQL store carrying the
// ledger.
//
// Usage:
//
//	st := redisstore.New(redis.NewClient(&redis.Options{Addr: addr}))
//	if err := st.Ping(ctx); err != nil {
//	    return err
//	}
package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/voteflow/voteflow/faillog"
	"github.com/voteflow/voteflow/job"
	"github.com/voteflow/voteflow/vote"
)

// Subsystems this backend carries.
var (
	_ job.Store      = (*Store)(nil)
	_ faillog.Store  = (*Store)(nil)
	_ vote.FlagStore = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Store implements the queue, failure log, and flag subsystems backed by
// Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
}

// New wraps a connected Redis client. The client's lifecycle stays with
// the caller.
func New(client redis.Cmdable, opts ...Option) *Store {
	st := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(st)
	}
	return st
}

// Client exposes the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Migrate does nothing; Redis needs no schema.
func (s *Store) Migrate(context.Context) error { return nil }

// Ping round-trips to the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close does nothing; the client belongs to the caller.
func (s *Store) Close() error { return nil }
