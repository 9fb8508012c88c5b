package vote

import (
	"fmt"
	"time"

	"github.com/voteflow/voteflow/id"
)

// ParticipantKind distinguishes the two participant populations: registered
// whitelist members and anonymous guests. It is an explicit tag, not a
// boolean, so a participant reference is always a (kind, id) pair.
type ParticipantKind string

const (
	// KindRegistered is a whitelist member tied to a platform account.
	KindRegistered ParticipantKind = "registered"
	// KindGuest is an anonymous, event-scoped participant.
	KindGuest ParticipantKind = "guest"
)

// Valid reports whether k is one of the two known kinds.
func (k ParticipantKind) Valid() bool {
	return k == KindRegistered || k == KindGuest
}

// Participant identifies a voter: exactly one kind, one ID.
type Participant struct {
	Kind ParticipantKind  `json:"kind"`
	ID   id.ParticipantID `json:"id"`
}

// IsGuest reports whether the participant is anonymous.
func (p Participant) IsGuest() bool { return p.Kind == KindGuest }

// Poll is the subset of a poll this pipeline needs: its event scope,
// visibility, and whether voting has been closed. CRUD for polls lives
// outside this subsystem.
type Poll struct {
	ID       id.PollID  `json:"id"`
	EventID  id.EventID `json:"event_id"`
	IsPublic bool       `json:"is_public"`
	Closed   bool       `json:"closed"`
}

// Balance is a participant's remaining voting points within one event.
// It is mutated only by the transactional commit step, via the store's
// conditional decrement. Invariant: Points never goes negative.
type Balance struct {
	EventID     id.EventID  `json:"event_id"`
	Participant Participant `json:"participant"`
	Points      int         `json:"points"`
}

// Vote is one committed ledger row. Immutable once created. Exactly one of
// the participant kinds is set, carried by the Participant tag.
type Vote struct {
	ID          id.VoteID   `json:"id"`
	PollID      id.PollID   `json:"poll_id"`
	OptionID    id.OptionID `json:"option_id"`
	Participant Participant `json:"participant"`
	Points      int         `json:"points"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Intent is the job payload for one vote submission. It is built by the
// submission service after synchronous validation and consumed by the
// Processor; the queue may redeliver it, so processing must be idempotent.
type Intent struct {
	PollID       id.PollID   `json:"poll_id"`
	OptionID     id.OptionID `json:"option_id"`
	Participant  Participant `json:"participant"`
	Points       int         `json:"points"`
	PollIsPublic bool        `json:"poll_is_public"`
}

// JobName is the registered handler name for vote-intent jobs.
const JobName = "vote.process"

// JobKey derives the dedup key for a vote job. The key is a function of
// poll and participant only: a participant has at most one outstanding
// vote job per poll, and a second click before the first commits
// coalesces at enqueue time.
func JobKey(pollID id.PollID, participantID id.ParticipantID) string {
	return fmt.Sprintf("vote:%s:%s", pollID, participantID)
}
