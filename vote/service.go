package vote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/id"
	"github.com/voteflow/voteflow/job"
)

// Enqueuer is the slice of the engine the submission service needs.
type Enqueuer interface {
	EnqueueRaw(ctx context.Context, name string, payload []byte, opts ...job.Option) (*job.Job, error)
}

// Service is the submission boundary. It performs the light synchronous
// validation, builds the intent, and enqueues the job — it never waits
// for the commit. Validation failures are returned synchronously and
// nothing is enqueued.
type Service struct {
	enqueuer Enqueuer
	polls    PollStore
	balances BalanceStore
	logger   *slog.Logger
}

// NewService creates the vote submission service.
func NewService(enqueuer Enqueuer, polls PollStore, balances BalanceStore, logger *slog.Logger) *Service {
	return &Service{
		enqueuer: enqueuer,
		polls:    polls,
		balances: balances,
		logger:   logger,
	}
}

// Submit validates the request, enqueues a vote-intent job keyed on
// (poll, participant), and returns the accepted job. A coalesced
// submission (a job under the same key is already in flight) is reported
// as accepted: the caller observes the same "processing in background"
// outcome either way.
func (s *Service) Submit(ctx context.Context, pollID id.PollID, optionID id.OptionID, participant Participant, points int) (*job.Job, error) {
	if pollID.IsNil() {
		return nil, fmt.Errorf("submit vote: %w", errors.New("missing poll id"))
	}
	if optionID.IsNil() {
		return nil, fmt.Errorf("submit vote: %w", errors.New("missing option id"))
	}
	if participant.ID.IsNil() || !participant.Kind.Valid() {
		return nil, fmt.Errorf("submit vote: %w", errors.New("missing participant"))
	}
	if points <= 0 {
		return nil, fmt.Errorf("submit vote: %w", errors.New("points must be positive"))
	}

	poll, err := s.polls.GetPoll(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("submit vote: %w", err)
	}

	intent := Intent{
		PollID:       pollID,
		OptionID:     optionID,
		Participant:  participant,
		Points:       points,
		PollIsPublic: poll.IsPublic,
	}

	payload, err := json.Marshal(intent)
	if err != nil {
		return nil, fmt.Errorf("submit vote: marshal intent: %w", err)
	}

	key := JobKey(pollID, participant.ID)
	j, err := s.enqueuer.EnqueueRaw(ctx, JobName, payload,
		job.WithQueue(voteflow.VoteQueue),
		job.WithKey(key),
		job.WithScopeEvent(poll.EventID.String()),
	)
	if err != nil {
		if errors.Is(err, voteflow.ErrDuplicateJob) {
			s.logger.Debug("vote submission coalesced",
				slog.String("job_key", key),
			)
			return nil, nil
		}
		return nil, fmt.Errorf("submit vote: enqueue: %w", err)
	}

	s.logger.Info("vote accepted for processing",
		slog.String("job_id", j.ID.String()),
		slog.String("job_key", key),
		slog.String("poll_id", pollID.String()),
		slog.Int("points", points),
	)
	return j, nil
}

// RemainingPoints reports how many points the participant can still spend
// on the poll. Public polls are a fixed single point; otherwise it is the
// event-scoped balance (zero when the participant has no balance row).
func (s *Service) RemainingPoints(ctx context.Context, pollID id.PollID, participant Participant) (int, error) {
	poll, err := s.polls.GetPoll(ctx, pollID)
	if err != nil {
		return 0, fmt.Errorf("remaining points: %w", err)
	}
	if poll.IsPublic {
		return 1, nil
	}

	b, err := s.balances.GetBalance(ctx, poll.EventID, participant)
	if err != nil {
		if errors.Is(err, voteflow.ErrBalanceNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("remaining points: %w", err)
	}
	return b.Points, nil
}

// CanVote reports whether the participant is eligible to vote on the
// poll: public polls admit any registered participant, non-public polls
// require an open poll and a balance row on the poll's event.
func (s *Service) CanVote(ctx context.Context, pollID id.PollID, participant Participant) (bool, error) {
	poll, err := s.polls.GetPoll(ctx, pollID)
	if err != nil {
		if errors.Is(err, voteflow.ErrPollNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("can vote: %w", err)
	}

	if poll.IsPublic {
		return !participant.IsGuest(), nil
	}
	if poll.Closed {
		return false, nil
	}

	_, err = s.balances.GetBalance(ctx, poll.EventID, participant)
	if err != nil {
		if errors.Is(err, voteflow.ErrBalanceNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("can vote: %w", err)
	}
	return true, nil
}
