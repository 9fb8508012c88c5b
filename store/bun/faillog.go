package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/faillog"
	"github.com/voteflow/voteflow/id"
)

// PushFailure appends a failed job entry.
func (s *Store) PushFailure(ctx context.Context, entry *faillog.Entry) error {
	m := toFailureModel(entry)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("voteflow/bun: push failure: %w", err)
	}
	return nil
}

// ListFailures returns entries matching the given options, newest first.
func (s *Store) ListFailures(ctx context.Context, opts faillog.ListOpts) ([]*faillog.Entry, error) {
	var models []failureModel
	q := s.db.NewSelect().Model(&models)

	if opts.Queue != "" {
		q = q.Where("queue = ?", opts.Queue)
	}

	q = q.Order("failed_at DESC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("voteflow/bun: list failures: %w", err)
	}

	entries := make([]*faillog.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromFailureModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("voteflow/bun: list failures convert: %w", convErr)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetFailure retrieves an entry by ID.
func (s *Store) GetFailure(ctx context.Context, entryID id.FailureID) (*faillog.Entry, error) {
	m := new(failureModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", entryID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, voteflow.ErrFailureNotFound
		}
		return nil, fmt.Errorf("voteflow/bun: get failure: %w", err)
	}
	return fromFailureModel(m)
}

// PurgeFailures removes entries with FailedAt before the given time.
func (s *Store) PurgeFailures(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		TableExpr("voteflow_failures").
		Where("failed_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("voteflow/bun: purge failures: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}

// CountFailures returns the total number of entries.
func (s *Store) CountFailures(ctx context.Context) (int64, error) {
	count, err := s.db.NewSelect().TableExpr("voteflow_failures").Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("voteflow/bun: count failures: %w", err)
	}
	return int64(count), nil
}
