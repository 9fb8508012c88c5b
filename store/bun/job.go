package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/id"
	"github.com/voteflow/voteflow/job"
)

// EnqueueJob persists a new job in pending state. Active-key dedup is
// enforced by a partial unique index on (key) for active states: a
// unique_violation maps to voteflow.ErrDuplicateJob.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return voteflow.ErrDuplicateJob
		}
		return fmt.Errorf("voteflow/bun: enqueue job: %w", err)
	}
	return nil
}

// DequeueJobs claims up to limit due jobs from the queues and flips them
// to running in one statement. SKIP LOCKED keeps concurrent workers from
// fighting over the same rows.
func (s *Store) DequeueJobs(ctx context.Context, queues []string, limit int) ([]*job.Job, error) {
	var models []jobModel
	_, err := s.db.NewRaw(`
		WITH dequeued AS (
			UPDATE voteflow_jobs
			SET state = 'running', started_at = NOW(), updated_at = NOW()
			WHERE id IN (
				SELECT id FROM voteflow_jobs
				WHERE state IN ('pending', 'retrying')
				  AND queue = ANY(?0)
				  AND run_at <= NOW()
				ORDER BY priority DESC, run_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT ?1
			)
			RETURNING *
		)
		SELECT * FROM dequeued ORDER BY priority DESC, run_at ASC`,
		pgdialect.Array(queues), limit,
	).Exec(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("voteflow/bun: dequeue jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("voteflow/bun: dequeue convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// GetJob loads one job.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, voteflow.ErrJobNotFound
		}
		return nil, fmt.Errorf("voteflow/bun: get job: %w", err)
	}
	return fromJobModel(m)
}

// GetJobByKey loads the newest job carrying the dedup key.
func (s *Store) GetJobByKey(ctx context.Context, key string) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("key = ?", key).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, voteflow.ErrJobNotFound
		}
		return nil, fmt.Errorf("voteflow/bun: get job by key: %w", err)
	}
	return fromJobModel(m)
}

// UpdateJob writes the job back, refreshing updated_at.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("voteflow/bun: update job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return voteflow.ErrJobNotFound
	}
	return nil
}

// DeleteJob drops one job row.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.db.NewDelete().
		TableExpr("voteflow_jobs").
		Where("id = ?", jobID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("voteflow/bun: delete job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return voteflow.ErrJobNotFound
	}
	return nil
}

// ListJobsByState pages through jobs in one state, oldest first.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models).
		Where("state = ?", string(state))

	if opts.Queue != "" {
		q = q.Where("queue = ?", opts.Queue)
	}

	q = q.Order("created_at ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("voteflow/bun: list jobs by state: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("voteflow/bun: list jobs convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// HeartbeatJob refreshes the liveness timestamp on a leased job.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, _ id.WorkerID) error {
	res, err := s.db.NewUpdate().
		TableExpr("voteflow_jobs").
		Set("heartbeat_at = NOW()").
		Set("updated_at = NOW()").
		Where("id = ?", jobID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("voteflow/bun: heartbeat job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return voteflow.ErrJobNotFound
	}
	return nil
}

// ReapStaleJobs finds running jobs whose heartbeat went quiet for longer
// than threshold.
func (s *Store) ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	var models []jobModel
	err := s.db.NewSelect().Model(&models).
		Where("state = 'running'").
		Where("heartbeat_at IS NOT NULL").
		Where("heartbeat_at < NOW() - ?::interval", threshold.String()).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("voteflow/bun: reap stale jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("voteflow/bun: reap stale convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// PurgeJobs removes settled jobs whose CompletedAt is before the given time.
func (s *Store) PurgeJobs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		TableExpr("voteflow_jobs").
		Where("state IN ('completed', 'rejected', 'failed')").
		Where("completed_at IS NOT NULL").
		Where("completed_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("voteflow/bun: purge jobs: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}

// CountJobs counts jobs matching the filter.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	q := s.db.NewSelect().TableExpr("voteflow_jobs")

	if opts.Queue != "" {
		q = q.Where("queue = ?", opts.Queue)
	}
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("voteflow/bun: count jobs: %w", err)
	}
	return int64(count), nil
}
