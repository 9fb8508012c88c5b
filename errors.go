package voteflow

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("voteflow: no store configured")
	ErrStoreClosed = errors.New("voteflow: store closed")

	// Not found errors.
	ErrJobNotFound         = errors.New("voteflow: job not found")
	ErrPollNotFound        = errors.New("voteflow: poll not found")
	ErrVoteNotFound        = errors.New("voteflow: vote not found")
	ErrBalanceNotFound     = errors.New("voteflow: balance not found")
	ErrFailureNotFound     = errors.New("voteflow: failure log entry not found")
	ErrParticipantNotFound = errors.New("voteflow: participant not found")

	// Conflict errors. ErrDuplicateJob signals dedup-key coalescing: a job
	// with the same key is already pending or in flight, so the new
	// submission is absorbed rather than enqueued twice.
	ErrDuplicateJob  = errors.New("voteflow: job with this key already active")
	ErrDuplicateVote = errors.New("voteflow: participant already voted on this poll")

	// Commit errors. ErrInsufficientPoints is returned by the conditional
	// balance decrement when the remaining balance is below the requested
	// amount; the surrounding transaction must roll back.
	ErrInsufficientPoints = errors.New("voteflow: insufficient points")

	// State errors.
	ErrInvalidState       = errors.New("voteflow: invalid state transition")
	ErrMaxAttemptsReached = errors.New("voteflow: max attempts reached")
)
