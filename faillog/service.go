package faillog

import (
	"context"
	"time"

	"github.com/voteflow/voteflow/id"
	"github.com/voteflow/voteflow/job"
)

// Service provides high-level failure log operations over a Store.
type Service struct {
	store Store
}

// NewService creates a failure log service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Push builds an Entry from a terminally failed job and persists it.
// The error string is captured from the final handler error.
func (s *Service) Push(ctx context.Context, j *job.Job, jobErr error) error {
	now := time.Now().UTC()
	entry := &Entry{
		ID:          id.NewFailureID(),
		JobID:       j.ID,
		JobName:     j.Name,
		Queue:       j.Queue,
		Payload:     j.Payload,
		Error:       jobErr.Error(),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		FailedAt:    now,
		CreatedAt:   now,
	}
	return s.store.PushFailure(ctx, entry)
}

// Store returns the underlying failure log store for direct access to
// List, Get, Purge, and Count operations.
func (s *Service) Store() Store {
	return s.store
}
