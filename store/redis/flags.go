package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/voteflow/voteflow/id"
	"github.com/voteflow/voteflow/vote"
)

// MarkVoted sets the idempotency flag with the given horizon. The TTL is
// enforced by Redis itself via SET EX, so expired flags vanish without a
// sweep.
func (s *Store) MarkVoted(ctx context.Context, pollID id.PollID, p vote.Participant, ttl time.Duration) error {
	key := flagKey(pollID.String(), string(p.Kind), p.ID.String())
	if err := s.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("voteflow/redis: mark voted: %w", err)
	}
	return nil
}

// HasVoted reports whether a live flag exists.
func (s *Store) HasVoted(ctx context.Context, pollID id.PollID, p vote.Participant) (bool, error) {
	key := flagKey(pollID.String(), string(p.Kind), p.ID.String())
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("voteflow/redis: has voted: %w", err)
	}
	return n > 0, nil
}
