package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/faillog"
	"github.com/voteflow/voteflow/id"
)

// PushFailure appends a failed job entry. The index sorted set is scored
// by failed_at so listing newest-first and purging by age are range ops.
func (s *Store) PushFailure(ctx context.Context, entry *faillog.Entry) error {
	eID := entry.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, failureKey(eID), failureToMap(entry))
	pipe.ZAdd(ctx, failureIndexKey, goredis.Z{
		Score:  float64(entry.FailedAt.UnixMilli()),
		Member: eID,
	})
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("voteflow/redis: push failure: %w", err)
	}
	return nil
}

// ListFailures returns entries matching the given options, newest first.
func (s *Store) ListFailures(ctx context.Context, opts faillog.ListOpts) ([]*faillog.Entry, error) {
	ids, err := s.client.ZRevRange(ctx, failureIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("voteflow/redis: list failures zrevrange: %w", err)
	}

	entries := make([]*faillog.Entry, 0, len(ids))
	for _, eID := range ids {
		e, getErr := s.fetchFailure(ctx, eID)
		if getErr != nil {
			continue // skip missing
		}
		if opts.Queue != "" && e.Queue != opts.Queue {
			continue
		}
		entries = append(entries, e)
	}

	if opts.Offset > 0 && opts.Offset < len(entries) {
		entries = entries[opts.Offset:]
	} else if opts.Offset >= len(entries) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	return entries, nil
}

// GetFailure retrieves an entry by ID.
func (s *Store) GetFailure(ctx context.Context, entryID id.FailureID) (*faillog.Entry, error) {
	return s.fetchFailure(ctx, entryID.String())
}

// PurgeFailures removes entries with FailedAt before the given time.
func (s *Store) PurgeFailures(ctx context.Context, before time.Time) (int64, error) {
	max := strconv.FormatInt(before.UnixMilli()-1, 10)
	ids, err := s.client.ZRangeByScore(ctx, failureIndexKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("voteflow/redis: purge failures range: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, eID := range ids {
		pipe.Del(ctx, failureKey(eID))
		pipe.ZRem(ctx, failureIndexKey, eID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("voteflow/redis: purge failures: %w", err)
	}
	return int64(len(ids)), nil
}

// CountFailures returns the total number of entries.
func (s *Store) CountFailures(ctx context.Context) (int64, error) {
	count, err := s.client.ZCard(ctx, failureIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("voteflow/redis: count failures: %w", err)
	}
	return count, nil
}

// ── helpers ──

func failureToMap(e *faillog.Entry) map[string]interface{} {
	return map[string]interface{}{
		"id":           e.ID.String(),
		"job_id":       e.JobID.String(),
		"job_name":     e.JobName,
		"queue":        e.Queue,
		"payload":      string(e.Payload),
		"error":        e.Error,
		"attempts":     strconv.Itoa(e.Attempts),
		"max_attempts": strconv.Itoa(e.MaxAttempts),
		"failed_at":    e.FailedAt.Format(time.RFC3339Nano),
		"created_at":   e.CreatedAt.Format(time.RFC3339Nano),
	}
}

func (s *Store) fetchFailure(ctx context.Context, eID string) (*faillog.Entry, error) {
	vals, err := s.client.HGetAll(ctx, failureKey(eID)).Result()
	if err != nil {
		return nil, fmt.Errorf("voteflow/redis: get failure: %w", err)
	}
	if len(vals) == 0 {
		return nil, voteflow.ErrFailureNotFound
	}
	return mapToFailure(vals)
}

func mapToFailure(m map[string]string) (*faillog.Entry, error) {
	eID, err := id.ParseFailureID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("voteflow/redis: parse failure id: %w", err)
	}

	jobID, err := id.ParseJobID(m["job_id"])
	if err != nil {
		return nil, fmt.Errorf("voteflow/redis: parse job id: %w", err)
	}

	attempts, _ := strconv.Atoi(m["attempts"])        //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"]) //nolint:errcheck // best-effort parse from trusted Redis data

	failedAt, _ := time.Parse(time.RFC3339Nano, m["failed_at"])   //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	return &faillog.Entry{
		ID:          eID,
		JobID:       jobID,
		JobName:     m["job_name"],
		Queue:       m["queue"],
		Payload:     []byte(m["payload"]),
		Error:       m["error"],
		Attempts:    attempts,
		MaxAttempts: maxAttempts,
		FailedAt:    failedAt,
		CreatedAt:   createdAt,
	}, nil
}
