package vote

import "github.com/voteflow/voteflow"

// Rejection reasons raised by the processor. All of them are expected
// outcomes, not faults: the job is acknowledged without retry and no
// failure log entry is written.
const (
	// ReasonPollNotFound: the poll does not exist (or was deleted). It
	// will never appear, so retrying cannot help.
	ReasonPollNotFound voteflow.RejectReason = "poll_not_found"

	// ReasonPollClosed: voting has ended on the poll.
	ReasonPollClosed voteflow.RejectReason = "poll_closed"

	// ReasonGuestOnPublicPoll: guests may not vote in public polls.
	ReasonGuestOnPublicPoll voteflow.RejectReason = "guest_on_public_poll"

	// ReasonAlreadyVoted: public polls are one vote per participant.
	ReasonAlreadyVoted voteflow.RejectReason = "already_voted"

	// ReasonNotEligible: the participant has no balance row for the
	// poll's event (not on the roster, or removed).
	ReasonNotEligible voteflow.RejectReason = "not_eligible"

	// ReasonInsufficientPoints: the remaining balance is below the
	// requested points.
	ReasonInsufficientPoints voteflow.RejectReason = "insufficient_points"
)
