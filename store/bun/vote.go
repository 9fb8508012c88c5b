package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/id"
	"github.com/voteflow/voteflow/vote"
)

// ── Poll store ────────────────────────────────────────────────────

// PutPoll creates or replaces a poll. Used by event setup and tests.
func (s *Store) PutPoll(ctx context.Context, p *vote.Poll) error {
	m := toPollModel(p)
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (id) DO UPDATE").
		Set("event_id = EXCLUDED.event_id").
		Set("is_public = EXCLUDED.is_public").
		Set("closed = EXCLUDED.closed").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("voteflow/bun: put poll: %w", err)
	}
	return nil
}

// GetPoll returns the poll or voteflow.ErrPollNotFound.
func (s *Store) GetPoll(ctx context.Context, pollID id.PollID) (*vote.Poll, error) {
	m := new(pollModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", pollID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, voteflow.ErrPollNotFound
		}
		return nil, fmt.Errorf("voteflow/bun: get poll: %w", err)
	}
	return fromPollModel(m)
}

// ── Balance store ─────────────────────────────────────────────────

// GetBalance returns the balance or voteflow.ErrBalanceNotFound.
func (s *Store) GetBalance(ctx context.Context, eventID id.EventID, p vote.Participant) (*vote.Balance, error) {
	m := new(balanceModel)
	err := s.db.NewSelect().Model(m).
		Where("event_id = ?", eventID.String()).
		Where("participant_kind = ?", string(p.Kind)).
		Where("participant_id = ?", p.ID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, voteflow.ErrBalanceNotFound
		}
		return nil, fmt.Errorf("voteflow/bun: get balance: %w", err)
	}
	return fromBalanceModel(m)
}

// SetBalance creates or replaces a balance row.
func (s *Store) SetBalance(ctx context.Context, b *vote.Balance) error {
	m := toBalanceModel(b)
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (event_id, participant_kind, participant_id) DO UPDATE").
		Set("points = EXCLUDED.points").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("voteflow/bun: set balance: %w", err)
	}
	return nil
}

// ── Ledger ────────────────────────────────────────────────────────

// FindVote returns this participant's earliest vote on the poll, or
// voteflow.ErrVoteNotFound.
func (s *Store) FindVote(ctx context.Context, pollID id.PollID, p vote.Participant) (*vote.Vote, error) {
	m := new(voteModel)
	err := s.db.NewSelect().Model(m).
		Where("poll_id = ?", pollID.String()).
		Where("participant_kind = ?", string(p.Kind)).
		Where("participant_id = ?", p.ID.String()).
		Order("created_at ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, voteflow.ErrVoteNotFound
		}
		return nil, fmt.Errorf("voteflow/bun: find vote: %w", err)
	}
	return fromVoteModel(m)
}

// ListVotes returns all committed votes for a poll, oldest first.
func (s *Store) ListVotes(ctx context.Context, pollID id.PollID) ([]*vote.Vote, error) {
	var models []voteModel
	err := s.db.NewSelect().Model(&models).
		Where("poll_id = ?", pollID.String()).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("voteflow/bun: list votes: %w", err)
	}

	votes := make([]*vote.Vote, 0, len(models))
	for i := range models {
		v, convErr := fromVoteModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("voteflow/bun: list votes convert: %w", convErr)
		}
		votes = append(votes, v)
	}
	return votes, nil
}

// ── Committer ─────────────────────────────────────────────────────

// CommitVote inserts the vote row and applies the conditional balance
// decrement inside one transaction.
//
// The decrement is a single conditional UPDATE: `SET points = points - ?
// WHERE ... AND points >= ?`. Zero rows affected means the balance is
// missing or short — the transaction rolls back and
// voteflow.ErrInsufficientPoints is returned with nothing persisted.
//
// A nil dec means a public poll; the one-vote-per-participant guard runs
// inside the same transaction, serialized per (poll, participant) by an
// advisory lock, and maps to voteflow.ErrDuplicateVote.
func (s *Store) CommitVote(ctx context.Context, v *vote.Vote, dec *vote.Decrement) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if dec == nil {
			// A reclaimed stale job can race its original worker onto
			// the same (poll, participant). The xact-scoped advisory
			// lock serializes their check-then-insert; the loser sees
			// the winner's committed row.
			lockKey := v.PollID.String() + "/" + string(v.Participant.Kind) + "/" + v.Participant.ID.String()
			if _, err := tx.NewRaw(
				"SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", lockKey,
			).Exec(ctx); err != nil {
				return fmt.Errorf("voteflow/bun: one-shot lock: %w", err)
			}

			exists, err := tx.NewSelect().
				TableExpr("voteflow_votes").
				Where("poll_id = ?", v.PollID.String()).
				Where("participant_kind = ?", string(v.Participant.Kind)).
				Where("participant_id = ?", v.Participant.ID.String()).
				Exists(ctx)
			if err != nil {
				return fmt.Errorf("voteflow/bun: duplicate vote check: %w", err)
			}
			if exists {
				return voteflow.ErrDuplicateVote
			}
		} else {
			res, err := tx.NewUpdate().
				TableExpr("voteflow_balances").
				Set("points = points - ?", dec.Points).
				Where("event_id = ?", dec.EventID.String()).
				Where("participant_kind = ?", string(dec.Participant.Kind)).
				Where("participant_id = ?", dec.Participant.ID.String()).
				Where("points >= ?", dec.Points).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("voteflow/bun: decrement balance: %w", err)
			}
			rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
			if rows == 0 {
				return voteflow.ErrInsufficientPoints
			}
		}

		m := toVoteModel(v)
		if _, err := tx.NewInsert().Model(m).Exec(ctx); err != nil {
			return fmt.Errorf("voteflow/bun: insert vote: %w", err)
		}
		return nil
	})
}

// ── Flag store ────────────────────────────────────────────────────

// MarkVoted sets the idempotency flag with the given horizon.
func (s *Store) MarkVoted(ctx context.Context, pollID id.PollID, p vote.Participant, ttl time.Duration) error {
	m := &flagModel{
		PollID:          pollID.String(),
		ParticipantKind: string(p.Kind),
		ParticipantID:   p.ID.String(),
		ExpiresAt:       time.Now().UTC().Add(ttl),
	}
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (poll_id, participant_kind, participant_id) DO UPDATE").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("voteflow/bun: mark voted: %w", err)
	}
	return nil
}

// HasVoted reports whether a live flag exists.
func (s *Store) HasVoted(ctx context.Context, pollID id.PollID, p vote.Participant) (bool, error) {
	exists, err := s.db.NewSelect().
		TableExpr("voteflow_flags").
		Where("poll_id = ?", pollID.String()).
		Where("participant_kind = ?", string(p.Kind)).
		Where("participant_id = ?", p.ID.String()).
		Where("expires_at > NOW()").
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("voteflow/bun: has voted: %w", err)
	}
	return exists, nil
}
