package voteflow

import (
	"errors"
	"fmt"
)

// RejectReason labels why a job was rejected at the business level.
// Subsystems define their own constants of this type.
type RejectReason string

// Rejection is a tagged, terminal handler error. It tells the executor
// that the job can never succeed: the job is acknowledged into the
// rejected state without retries and without a failure log entry.
// Every other handler error is treated as transient and crosses the
// retry boundary.
type Rejection struct {
	Reason RejectReason
	Err    error
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	if r.Err == nil {
		return fmt.Sprintf("rejected (%s)", r.Reason)
	}
	return fmt.Sprintf("rejected (%s): %v", r.Reason, r.Err)
}

// Unwrap exposes the wrapped cause to errors.Is / errors.As.
func (r *Rejection) Unwrap() error { return r.Err }

// Reject wraps err as a terminal rejection with the given reason.
func Reject(reason RejectReason, err error) error {
	return &Rejection{Reason: reason, Err: err}
}

// Rejectf creates a terminal rejection with a formatted message.
func Rejectf(reason RejectReason, format string, args ...any) error {
	return &Rejection{Reason: reason, Err: fmt.Errorf(format, args...)}
}

// AsRejection extracts a Rejection from err's chain, if present.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// IsRejection reports whether err carries a Rejection anywhere in its chain.
func IsRejection(err error) bool {
	_, ok := AsRejection(err)
	return ok
}
