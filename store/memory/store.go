// Package memory provides a fully in-memory store.Store implementation.
// Safe for concurrent access. Intended for unit testing and development;
// nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/faillog"
	"github.com/voteflow/voteflow/id"
	"github.com/voteflow/voteflow/job"
	"github.com/voteflow/voteflow/store"
	"github.com/voteflow/voteflow/vote"
)

var _ store.Store = (*Store)(nil)

// flagEntry is an idempotency flag with its expiry.
type flagEntry struct {
	expiresAt time.Time
}

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	jobs     map[string]*job.Job
	failures map[string]*faillog.Entry
	polls    map[string]*vote.Poll
	balances map[string]*vote.Balance // key: eventID|kind|participantID
	votes    map[string]*vote.Vote
	flags    map[string]flagEntry // key: pollID|kind|participantID
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		jobs:     make(map[string]*job.Job),
		failures: make(map[string]*faillog.Entry),
		polls:    make(map[string]*vote.Poll),
		balances: make(map[string]*vote.Balance),
		votes:    make(map[string]*vote.Vote),
		flags:    make(map[string]flagEntry),
	}
}

// balanceKey builds the composite map key for a balance row.
func balanceKey(eventID id.EventID, p vote.Participant) string {
	return eventID.String() + "|" + string(p.Kind) + "|" + p.ID.String()
}

// flagKey builds the composite map key for an idempotency flag.
func flagKey(pollID id.PollID, p vote.Participant) string {
	return pollID.String() + "|" + string(p.Kind) + "|" + p.ID.String()
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate does nothing; there is no schema.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close does nothing; there is nothing to release.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// EnqueueJob persists a new job in pending state. When the job carries a
// dedup key and another job under the same key is still active, nothing
// is persisted and voteflow.ErrDuplicateJob is returned.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return voteflow.ErrDuplicateJob
	}

	if j.Key != "" {
		for _, existing := range m.jobs {
			if existing.Key == j.Key && existing.State.Active() {
				return voteflow.ErrDuplicateJob
			}
		}
	}

	cp := *j
	m.jobs[key] = &cp
	return nil
}

// DequeueJobs atomically claims up to limit due jobs from the given
// queues, sets them to running, and returns them.
func (m *Store) DequeueJobs(_ context.Context, queues []string, limit int) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	now := time.Now().UTC()

	// Collect candidates.
	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != job.StatePending && j.State != job.StateRetrying {
			continue
		}
		if !j.RunAt.IsZero() && j.RunAt.After(now) {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[j.Queue]; !ok {
				continue
			}
		}
		candidates = append(candidates, j)
	}

	// Sort: priority DESC, RunAt ASC.
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].RunAt.Before(candidates[k].RunAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*job.Job, len(candidates))
	for i, j := range candidates {
		j.State = job.StateRunning
		n := now
		j.StartedAt = &n
		// Return a copy so callers can mutate without racing with the store.
		cp := *j
		result[i] = &cp
	}

	return result, nil
}

// GetJob returns a copy of one job.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, voteflow.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// GetJobByKey retrieves the most recent job with the given dedup key.
func (m *Store) GetJobByKey(_ context.Context, key string) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *job.Job
	for _, j := range m.jobs {
		if j.Key != key {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, voteflow.ErrJobNotFound
	}
	cp := *latest
	return &cp, nil
}

// UpdateJob replaces a stored job with a copy of j.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return voteflow.ErrJobNotFound
	}
	cp := *j
	cp.UpdatedAt = time.Now().UTC()
	m.jobs[key] = &cp
	return nil
}

// DeleteJob drops one job.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return voteflow.ErrJobNotFound
	}
	delete(m.jobs, key)
	return nil
}

// ListJobsByState pages through jobs in one state, oldest first.
func (m *Store) ListJobsByState(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != state {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	// Apply offset / limit.
	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// HeartbeatJob refreshes the liveness timestamp on a leased job.
func (m *Store) HeartbeatJob(_ context.Context, jobID id.JobID, _ id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return voteflow.ErrJobNotFound
	}
	now := time.Now().UTC()
	j.HeartbeatAt = &now
	return nil
}

// ReapStaleJobs returns running jobs whose last heartbeat is older than
// the given threshold.
func (m *Store) ReapStaleJobs(_ context.Context, threshold time.Duration) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var stale []*job.Job
	for _, j := range m.jobs {
		if j.State != job.StateRunning {
			continue
		}
		if j.HeartbeatAt != nil && j.HeartbeatAt.Before(cutoff) {
			cp := *j
			stale = append(stale, &cp)
		}
	}
	return stale, nil
}

// PurgeJobs removes settled jobs whose CompletedAt is before the given time.
func (m *Store) PurgeJobs(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, j := range m.jobs {
		switch j.State {
		case job.StateCompleted, job.StateRejected, job.StateFailed:
		default:
			continue
		}
		if j.CompletedAt != nil && j.CompletedAt.Before(before) {
			delete(m.jobs, key)
			removed++
		}
	}
	return removed, nil
}

// CountJobs counts jobs matching the filter.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		count++
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Failure Log Store
// ──────────────────────────────────────────────────

// PushFailure appends a failed job entry.
func (m *Store) PushFailure(_ context.Context, entry *faillog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.failures[entry.ID.String()] = &cp
	return nil
}

// ListFailures returns entries matching the given options, newest first.
func (m *Store) ListFailures(_ context.Context, opts faillog.ListOpts) ([]*faillog.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*faillog.Entry, 0, len(m.failures))
	for _, e := range m.failures {
		if opts.Queue != "" && e.Queue != opts.Queue {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].FailedAt.After(result[k].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// GetFailure retrieves an entry by ID.
func (m *Store) GetFailure(_ context.Context, entryID id.FailureID) (*faillog.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.failures[entryID.String()]
	if !ok {
		return nil, voteflow.ErrFailureNotFound
	}
	cp := *e
	return &cp, nil
}

// PurgeFailures removes entries with FailedAt before the given time.
func (m *Store) PurgeFailures(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, e := range m.failures {
		if e.FailedAt.Before(before) {
			delete(m.failures, key)
			removed++
		}
	}
	return removed, nil
}

// CountFailures returns the total number of entries.
func (m *Store) CountFailures(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.failures)), nil
}

// ──────────────────────────────────────────────────
// Poll Store
// ──────────────────────────────────────────────────

// PutPoll creates or replaces a poll. Used by event setup and tests.
func (m *Store) PutPoll(_ context.Context, p *vote.Poll) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.polls[p.ID.String()] = &cp
	return nil
}

// GetPoll returns the poll or voteflow.ErrPollNotFound.
func (m *Store) GetPoll(_ context.Context, pollID id.PollID) (*vote.Poll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.polls[pollID.String()]
	if !ok {
		return nil, voteflow.ErrPollNotFound
	}
	cp := *p
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Balance Store
// ──────────────────────────────────────────────────

// GetBalance returns the balance or voteflow.ErrBalanceNotFound.
func (m *Store) GetBalance(_ context.Context, eventID id.EventID, p vote.Participant) (*vote.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.balances[balanceKey(eventID, p)]
	if !ok {
		return nil, voteflow.ErrBalanceNotFound
	}
	cp := *b
	return &cp, nil
}

// SetBalance creates or replaces a balance row.
func (m *Store) SetBalance(_ context.Context, b *vote.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *b
	m.balances[balanceKey(b.EventID, b.Participant)] = &cp
	return nil
}

// ──────────────────────────────────────────────────
// Vote Ledger
// ──────────────────────────────────────────────────

// FindVote returns this participant's vote on the poll, or
// voteflow.ErrVoteNotFound.
func (m *Store) FindVote(_ context.Context, pollID id.PollID, p vote.Participant) (*vote.Vote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.findVoteLocked(pollID, p)
	if !ok {
		return nil, voteflow.ErrVoteNotFound
	}
	cp := *v
	return &cp, nil
}

// findVoteLocked scans the ledger for this participant's earliest vote
// on the poll. Caller must hold at least a read lock.
func (m *Store) findVoteLocked(pollID id.PollID, p vote.Participant) (*vote.Vote, bool) {
	var found *vote.Vote
	for _, v := range m.votes {
		if v.PollID != pollID || v.Participant != p {
			continue
		}
		if found == nil || v.CreatedAt.Before(found.CreatedAt) {
			found = v
		}
	}
	return found, found != nil
}

// ListVotes returns all committed votes for a poll, oldest first.
func (m *Store) ListVotes(_ context.Context, pollID id.PollID) ([]*vote.Vote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*vote.Vote, 0)
	for _, v := range m.votes {
		if v.PollID != pollID {
			continue
		}
		cp := *v
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// Committer
// ──────────────────────────────────────────────────

// CommitVote inserts the vote row and applies the conditional decrement
// under one lock, mirroring the transactional commit of the SQL backends.
//
// A nil dec means a public poll: the one-vote constraint is enforced
// instead, returning voteflow.ErrDuplicateVote when the participant
// already holds a row. With dec set, the balance must exist and cover
// the points or voteflow.ErrInsufficientPoints is returned — and no vote
// row is written.
func (m *Store) CommitVote(_ context.Context, v *vote.Vote, dec *vote.Decrement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dec == nil {
		if _, exists := m.findVoteLocked(v.PollID, v.Participant); exists {
			return voteflow.ErrDuplicateVote
		}
	} else {
		b, ok := m.balances[balanceKey(dec.EventID, dec.Participant)]
		if !ok || b.Points < dec.Points {
			return voteflow.ErrInsufficientPoints
		}
		b.Points -= dec.Points
	}

	cp := *v
	m.votes[v.ID.String()] = &cp
	return nil
}

// ──────────────────────────────────────────────────
// Flag Store
// ──────────────────────────────────────────────────

// MarkVoted sets the idempotency flag with the given horizon.
func (m *Store) MarkVoted(_ context.Context, pollID id.PollID, p vote.Participant, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[flagKey(pollID, p)] = flagEntry{
		expiresAt: time.Now().UTC().Add(ttl),
	}
	return nil
}

// HasVoted reports whether a live flag exists. Expired flags are lazily
// removed.
func (m *Store) HasVoted(_ context.Context, pollID id.PollID, p vote.Participant) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := flagKey(pollID, p)
	f, ok := m.flags[key]
	if !ok {
		return false, nil
	}
	if time.Now().UTC().After(f.expiresAt) {
		delete(m.flags, key)
		return false, nil
	}
	return true, nil
}
