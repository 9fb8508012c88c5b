// Package notify provides a real-time event broker for vote pipeline
// lifecycle events. It bridges the ext.Extension system to connected
// clients via topic-based pub/sub, and implements vote.Notifier so the
// processor can announce tally changes after each commit.
package notify

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Vote events.
	EventVoteUpdate    EventType = "vote.update"
	EventVoteCommitted EventType = "vote.committed"

	// Job events.
	EventJobEnqueued  EventType = "job.enqueued"
	EventJobStarted   EventType = "job.started"
	EventJobCompleted EventType = "job.completed"
	EventJobRejected  EventType = "job.rejected"
	EventJobRetrying  EventType = "job.retrying"
	EventJobFailed    EventType = "job.failed"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// VoteUpdateData is the payload for vote.update events. Clients watching
// a poll re-render its tally when one arrives.
type VoteUpdateData struct {
	PollID   string `json:"poll_id"`
	OptionID string `json:"option_id"`
}

// VoteCommittedData is the payload for vote.committed events.
type VoteCommittedData struct {
	VoteID          string `json:"vote_id"`
	PollID          string `json:"poll_id"`
	OptionID        string `json:"option_id"`
	ParticipantKind string `json:"participant_kind"`
	Points          int    `json:"points"`
}

// JobEventData is the payload for job lifecycle events.
type JobEventData struct {
	JobID        string `json:"job_id"`
	JobName      string `json:"job_name"`
	Queue        string `json:"queue"`
	ScopeEventID string `json:"scope_event_id,omitempty"`
	ElapsedMs    int64  `json:"elapsed_ms,omitempty"`
	Error        string `json:"error,omitempty"`
	Attempt      int    `json:"attempt,omitempty"`
	NextRunAt    string `json:"next_run_at,omitempty"`
}
