package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/id"
	"github.com/voteflow/voteflow/job"
)

// EnqueueJob stores the job as a Hash and adds it to the queue's Sorted
// Set. When the job carries a dedup key, HSETNX on the active-key index
// decides whether another active job already holds it.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("voteflow/redis: enqueue check exists: %w", err)
	}
	if exists > 0 {
		return voteflow.ErrDuplicateJob
	}

	if j.Key != "" {
		claimed, claimErr := s.client.HSetNX(ctx, activeKeysKey, j.Key, jID).Result()
		if claimErr != nil {
			return fmt.Errorf("voteflow/redis: enqueue claim key: %w", claimErr)
		}
		if !claimed {
			return voteflow.ErrDuplicateJob
		}
	}

	fields := jobToMap(j)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, jobIDsKey, jID)
	if j.Key != "" {
		pipe.Set(ctx, latestKeyKey(j.Key), jID, 0)
	}
	pipe.ZAdd(ctx, queueKey(j.Queue), goredis.Z{Score: jobScore(j.Priority, j.RunAt), Member: jID})

	_, err = pipe.Exec(ctx)
	if err != nil {
		// Release the claim: no job landed behind it, and a leaked
		// entry would coalesce every future submission for this key.
		if j.Key != "" {
			s.client.HDel(context.WithoutCancel(ctx), activeKeysKey, j.Key)
		}
		return fmt.Errorf("voteflow/redis: enqueue job: %w", err)
	}
	return nil
}

// DequeueJobs atomically claims up to limit due jobs from the given
// queues. Only members whose score (due time) has passed are considered;
// a member removed by ZRem is claimed by this caller.
func (s *Store) DequeueJobs(ctx context.Context, queues []string, limit int) ([]*job.Job, error) {
	now := time.Now().UTC()
	var jobs []*job.Job

	for _, q := range queues {
		if limit > 0 && len(jobs) >= limit {
			break
		}
		remaining := limit - len(jobs)
		qk := queueKey(q)

		ids, err := s.client.ZRangeByScore(ctx, qk, &goredis.ZRangeBy{
			Min:   "-inf",
			Max:   dueScore(now),
			Count: int64(remaining),
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("voteflow/redis: dequeue zrangebyscore: %w", err)
		}

		for _, jID := range ids {
			// ZRem is the claim: a concurrent worker that lost the race
			// removes zero members and skips the job.
			removed, remErr := s.client.ZRem(ctx, qk, jID).Result()
			if remErr != nil {
				return nil, fmt.Errorf("voteflow/redis: dequeue zrem: %w", remErr)
			}
			if removed == 0 {
				continue
			}

			key := jobKey(jID)
			_, setErr := s.client.HSet(ctx, key,
				"state", string(job.StateRunning),
				"started_at", now.Format(time.RFC3339Nano),
				"updated_at", now.Format(time.RFC3339Nano),
			).Result()
			if setErr != nil {
				return nil, fmt.Errorf("voteflow/redis: dequeue update: %w", setErr)
			}

			j, getErr := s.fetchJob(ctx, key)
			if getErr != nil {
				return nil, getErr
			}
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

// GetJob loads one job hash.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.fetchJob(ctx, jobKey(jobID.String()))
}

// GetJobByKey retrieves the most recent job with the given dedup key.
func (s *Store) GetJobByKey(ctx context.Context, key string) (*job.Job, error) {
	jID, err := s.client.Get(ctx, latestKeyKey(key)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, voteflow.ErrJobNotFound
		}
		return nil, fmt.Errorf("voteflow/redis: get job by key: %w", err)
	}
	return s.fetchJob(ctx, jobKey(jID))
}

// UpdateJob persists changes to an existing job. Scheduling state moves
// with it: pending/retrying jobs are (re)added to the queue sorted set,
// settled jobs are removed and release their dedup key.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("voteflow/redis: update job exists: %w", err)
	}
	if exists == 0 {
		return voteflow.ErrJobNotFound
	}

	fields := jobToMap(j)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	switch {
	case j.State == job.StatePending || j.State == job.StateRetrying:
		pipe.ZAdd(ctx, queueKey(j.Queue), goredis.Z{Score: jobScore(j.Priority, j.RunAt), Member: jID})
	case j.State == job.StateRunning:
		pipe.ZRem(ctx, queueKey(j.Queue), jID)
	default:
		pipe.ZRem(ctx, queueKey(j.Queue), jID)
		if j.Key != "" {
			pipe.HDel(ctx, activeKeysKey, j.Key)
		}
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("voteflow/redis: update job: %w", err)
	}
	return nil
}

// DeleteJob drops the job hash and its index entries.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	key := jobKey(jID)

	j, err := s.fetchJob(ctx, key)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, jobIDsKey, jID)
	pipe.ZRem(ctx, queueKey(j.Queue), jID)
	if j.Key != "" && j.State.Active() {
		pipe.HDel(ctx, activeKeysKey, j.Key)
	}
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("voteflow/redis: delete job: %w", err)
	}
	return nil
}

// ListJobsByState filters the job set client-side; Redis keeps no
// per-state index.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("voteflow/redis: list jobs smembers: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.fetchJob(ctx, jobKey(jID))
		if getErr != nil {
			continue // skip missing
		}
		if j.State != state {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		jobs = append(jobs, j)
	}

	if opts.Offset > 0 && opts.Offset < len(jobs) {
		jobs = jobs[opts.Offset:]
	} else if opts.Offset >= len(jobs) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// HeartbeatJob refreshes the liveness timestamp on a leased job.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	key := jobKey(jobID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("voteflow/redis: heartbeat exists: %w", err)
	}
	if exists == 0 {
		return voteflow.ErrJobNotFound
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.client.HSet(ctx, key,
		"heartbeat_at", now,
		"worker_id", workerID.String(),
		"updated_at", now,
	).Result()
	if err != nil {
		return fmt.Errorf("voteflow/redis: heartbeat job: %w", err)
	}
	return nil
}

// ReapStaleJobs scans for running jobs whose heartbeat went quiet for
// longer than threshold.
func (s *Store) ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("voteflow/redis: reap smembers: %w", err)
	}

	var stale []*job.Job
	for _, jID := range ids {
		j, getErr := s.fetchJob(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if j.State != job.StateRunning {
			continue
		}
		if j.HeartbeatAt != nil && j.HeartbeatAt.Before(cutoff) {
			stale = append(stale, j)
		}
	}
	return stale, nil
}

// PurgeJobs removes settled jobs whose CompletedAt is before the given time.
func (s *Store) PurgeJobs(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("voteflow/redis: purge smembers: %w", err)
	}

	var removed int64
	for _, jID := range ids {
		j, getErr := s.fetchJob(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if j.State.Active() {
			continue
		}
		if j.CompletedAt == nil || !j.CompletedAt.Before(before) {
			continue
		}
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, jobKey(jID))
		pipe.SRem(ctx, jobIDsKey, jID)
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			return removed, fmt.Errorf("voteflow/redis: purge job %s: %w", jID, pErr)
		}
		removed++
	}
	return removed, nil
}

// CountJobs counts jobs matching the filter, scanning client-side.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("voteflow/redis: count smembers: %w", err)
	}

	var count int64
	for _, jID := range ids {
		j, getErr := s.fetchJob(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		count++
	}
	return count, nil
}

// ── helpers ──

// jobScore orders the queue sorted set by due time, with priority as a
// sub-millisecond tiebreak so higher priority sorts first among jobs due
// at the same instant.
func jobScore(priority int, runAt time.Time) float64 {
	return float64(runAt.UnixMilli()) - float64(priority)/1e6
}

// dueScore formats the inclusive upper bound for due jobs.
func dueScore(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

func jobToMap(j *job.Job) map[string]interface{} {
	m := map[string]interface{}{
		"id":           j.ID.String(),
		"key":          j.Key,
		"name":         j.Name,
		"queue":        j.Queue,
		"payload":      string(j.Payload),
		"state":        string(j.State),
		"priority":     strconv.Itoa(j.Priority),
		"max_attempts": strconv.Itoa(j.MaxAttempts),
		"attempts":     strconv.Itoa(j.Attempts),
		"last_error":   j.LastError,
		"scope_event":  j.ScopeEventID,
		"worker_id":    j.WorkerID.String(),
		"run_at":       j.RunAt.Format(time.RFC3339Nano),
		"timeout":      strconv.FormatInt(int64(j.Timeout), 10),
		"created_at":   j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.StartedAt != nil {
		m["started_at"] = j.StartedAt.Format(time.RFC3339Nano)
	}
	if j.CompletedAt != nil {
		m["completed_at"] = j.CompletedAt.Format(time.RFC3339Nano)
	}
	if j.HeartbeatAt != nil {
		m["heartbeat_at"] = j.HeartbeatAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) fetchJob(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("voteflow/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, voteflow.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("voteflow/redis: parse job id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])           //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"])    //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts"])           //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data

	runAt, _ := time.Parse(time.RFC3339Nano, m["run_at"])         //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		ID:           jID,
		Key:          m["key"],
		Name:         m["name"],
		Queue:        m["queue"],
		Payload:      []byte(m["payload"]),
		State:        job.State(m["state"]),
		Priority:     priority,
		MaxAttempts:  maxAttempts,
		Attempts:     attempts,
		LastError:    m["last_error"],
		ScopeEventID: m["scope_event"],
		RunAt:        runAt,
		Timeout:      time.Duration(timeout),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}

	if wid := m["worker_id"]; wid != "" {
		j.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.StartedAt = &t
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.CompletedAt = &t
	}
	if v := m["heartbeat_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.HeartbeatAt = &t
	}

	return j, nil
}
