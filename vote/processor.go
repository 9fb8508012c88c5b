package vote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/id"
)

// Processor executes the validation and commit protocol for one vote
// intent. Each call runs the gates in order; every gate that fails raises
// a voteflow.Rejection (terminal, acknowledged without retry). Only the
// commit step can produce a transient error that crosses the retry
// boundary.
//
// The transport is at-least-once, so Process must be safe to re-run:
// the gates re-validate naturally, the one-shot guard prevents a second
// ledger row on public polls, and the balance mutation is the store's
// conditional decrement rather than an unconditional subtract.
type Processor struct {
	polls    PollStore
	balances BalanceStore
	ledger   Ledger
	commit   Committer
	flags    FlagStore
	notifier Notifier
	onCommit func(context.Context, *Vote)
	logger   *slog.Logger

	flagTTL time.Duration
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithFlagTTL overrides the idempotency flag horizon.
func WithFlagTTL(d time.Duration) ProcessorOption {
	return func(p *Processor) { p.flagTTL = d }
}

// WithNotifier sets the tally-change notifier. Nil disables notification.
func WithNotifier(n Notifier) ProcessorOption {
	return func(p *Processor) { p.notifier = n }
}

// WithFlags sets the idempotency flag store. Nil disables flags; the
// protocol stays correct, only the duplicate short-circuit is lost.
func WithFlags(f FlagStore) ProcessorOption {
	return func(p *Processor) { p.flags = f }
}

// WithCommitHook sets a callback invoked after each durable commit, in
// the same best-effort phase as the notifier. The engine uses it to fan
// the commit out to lifecycle extensions.
func WithCommitHook(fn func(context.Context, *Vote)) ProcessorOption {
	return func(p *Processor) { p.onCommit = fn }
}

// NewProcessor creates a Processor over the given collaborators.
func NewProcessor(
	polls PollStore,
	balances BalanceStore,
	ledger Ledger,
	commit Committer,
	logger *slog.Logger,
	opts ...ProcessorOption,
) *Processor {
	p := &Processor{
		polls:    polls,
		balances: balances,
		ledger:   ledger,
		commit:   commit,
		logger:   logger,
		flagTTL:  FlagTTL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the protocol for one intent:
//
//  1. poll existence
//  2. guest-on-public-poll exclusion
//  3. one-shot guard for public polls (flag short-circuit, then ledger)
//  4. closed gate, balance presence and sufficiency (non-public only)
//  5. transactional commit: vote insert + conditional decrement
//  6. best-effort post-commit: idempotency flag, tally notification
//
// Rejections from steps 1-4 are terminal. Step 5 errors other than
// ErrInsufficientPoints are transient and returned unwrapped for the
// executor's retry accounting. Step 6 failures never affect the
// already-committed vote.
func (p *Processor) Process(ctx context.Context, intent Intent) error {
	poll, err := p.polls.GetPoll(ctx, intent.PollID)
	if err != nil {
		if errors.Is(err, voteflow.ErrPollNotFound) {
			return voteflow.Rejectf(ReasonPollNotFound, "poll %s not found", intent.PollID)
		}
		return fmt.Errorf("load poll %s: %w", intent.PollID, err)
	}

	if poll.IsPublic && intent.Participant.IsGuest() {
		return voteflow.Rejectf(ReasonGuestOnPublicPoll,
			"guest %s may not vote in public poll %s", intent.Participant.ID, intent.PollID)
	}

	if poll.IsPublic {
		if err := p.checkOneShot(ctx, poll, intent.Participant); err != nil {
			return err
		}
	} else {
		// The closed flag only fences point-metered polls; public polls
		// stay open for their one-shot votes, matching CanVote.
		if poll.Closed {
			return voteflow.Rejectf(ReasonPollClosed, "poll %s is closed", intent.PollID)
		}
		if err := p.checkBalance(ctx, poll, intent); err != nil {
			return err
		}
	}

	v := &Vote{
		ID:          id.NewVoteID(),
		PollID:      intent.PollID,
		OptionID:    intent.OptionID,
		Participant: intent.Participant,
		Points:      intent.Points,
		CreatedAt:   time.Now().UTC(),
	}

	var dec *Decrement
	if poll.IsPublic {
		// Public polls are one-vote-per-participant, not points-metered.
		v.Points = 1
	} else {
		dec = &Decrement{
			EventID:     poll.EventID,
			Participant: intent.Participant,
			Points:      intent.Points,
		}
	}

	if err := p.commit.CommitVote(ctx, v, dec); err != nil {
		if errors.Is(err, voteflow.ErrInsufficientPoints) {
			// The balance moved between the check and the commit. The
			// conditional decrement held the invariant; the request is
			// terminally short of points.
			return voteflow.Reject(ReasonInsufficientPoints, err)
		}
		if errors.Is(err, voteflow.ErrDuplicateVote) {
			return voteflow.Reject(ReasonAlreadyVoted, err)
		}
		return fmt.Errorf("commit vote on poll %s: %w", intent.PollID, err)
	}

	p.logger.Info("vote committed",
		slog.String("poll_id", intent.PollID.String()),
		slog.String("option_id", intent.OptionID.String()),
		slog.String("participant_id", intent.Participant.ID.String()),
		slog.String("participant_kind", string(intent.Participant.Kind)),
		slog.Int("points", v.Points),
	)

	p.afterCommit(ctx, v)
	return nil
}

// checkOneShot enforces one vote per participant on public polls. The
// idempotency flag short-circuits the common duplicate; the ledger query
// is the authoritative guard.
func (p *Processor) checkOneShot(ctx context.Context, poll *Poll, participant Participant) error {
	if p.flags != nil {
		voted, err := p.flags.HasVoted(ctx, poll.ID, participant)
		if err != nil {
			// Flag store trouble never blocks a vote; fall through to
			// the ledger.
			p.logger.Warn("idempotency flag lookup failed",
				slog.String("poll_id", poll.ID.String()),
				slog.String("error", err.Error()),
			)
		} else if voted {
			return voteflow.Rejectf(ReasonAlreadyVoted,
				"participant %s already voted on poll %s", participant.ID, poll.ID)
		}
	}

	_, err := p.ledger.FindVote(ctx, poll.ID, participant)
	switch {
	case err == nil:
		return voteflow.Rejectf(ReasonAlreadyVoted,
			"participant %s already voted on poll %s", participant.ID, poll.ID)
	case errors.Is(err, voteflow.ErrVoteNotFound):
		return nil
	default:
		return fmt.Errorf("one-shot lookup on poll %s: %w", poll.ID, err)
	}
}

// checkBalance verifies the participant holds a balance for the poll's
// event and that it covers the requested points. The authoritative check
// is the conditional decrement inside the commit; this gate exists to
// reject hopeless requests before opening a transaction.
func (p *Processor) checkBalance(ctx context.Context, poll *Poll, intent Intent) error {
	b, err := p.balances.GetBalance(ctx, poll.EventID, intent.Participant)
	if err != nil {
		if errors.Is(err, voteflow.ErrBalanceNotFound) {
			return voteflow.Rejectf(ReasonNotEligible,
				"participant %s has no balance for event %s", intent.Participant.ID, poll.EventID)
		}
		return fmt.Errorf("load balance for event %s: %w", poll.EventID, err)
	}
	if b.Points < intent.Points {
		return voteflow.Rejectf(ReasonInsufficientPoints,
			"participant %s has %d points, needs %d", intent.Participant.ID, b.Points, intent.Points)
	}
	return nil
}

// afterCommit runs the best-effort side effects. Failures here are logged
// and swallowed; the vote is already durable.
func (p *Processor) afterCommit(ctx context.Context, v *Vote) {
	if p.flags != nil {
		if err := p.flags.MarkVoted(ctx, v.PollID, v.Participant, p.flagTTL); err != nil {
			p.logger.Warn("idempotency flag write failed",
				slog.String("poll_id", v.PollID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	if p.notifier != nil {
		p.notifier.EmitVoteUpdate(v.PollID, v.OptionID)
	}
	if p.onCommit != nil {
		p.onCommit(ctx, v)
	}
}
