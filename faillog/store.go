package faillog

import (
	"context"
	"time"

	"github.com/voteflow/voteflow/id"
)

// ListOpts controls pagination and filtering for failure log list queries.
type ListOpts struct {
	// Limit is the maximum number of entries to return. Zero means no limit.
	Limit int
	// Offset is the number of entries to skip.
	Offset int
	// Queue filters by queue name. Empty means all queues.
	Queue string
}

// Store defines the persistence contract for the failure log.
type Store interface {
	// PushFailure appends a failed job entry.
	PushFailure(ctx context.Context, entry *Entry) error

	// ListFailures returns entries matching the given options, newest first.
	ListFailures(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetFailure retrieves an entry by ID.
	GetFailure(ctx context.Context, entryID id.FailureID) (*Entry, error)

	// PurgeFailures removes entries with FailedAt before the given time.
	// Returns the number of entries removed.
	PurgeFailures(ctx context.Context, before time.Time) (int64, error)

	// CountFailures returns the total number of entries.
	CountFailures(ctx context.Context) (int64, error)
}
