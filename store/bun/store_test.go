//go:build integration

package bunstore_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/id"
	"github.com/voteflow/voteflow/job"
	bunstore "github.com/voteflow/voteflow/store/bun"
	"github.com/voteflow/voteflow/vote"
)

// setupTestStore creates a Postgres container and returns a connected Bun Store.
func setupTestStore(t *testing.T) *bunstore.Store {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("voteflow_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	db := bun.NewDB(sqldb, pgdialect.New())

	t.Cleanup(func() {
		_ = db.Close()
	})

	store := bunstore.New(db, bunstore.WithLogger(slog.Default()))

	if migErr := store.Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}

	return store
}

func newJob(name, queue string) *job.Job {
	return &job.Job{
		ID:          id.NewJobID(),
		Name:        name,
		Queue:       queue,
		Payload:     []byte(`{"test":true}`),
		State:       job.StatePending,
		MaxAttempts: 3,
		RunAt:       time.Now().UTC().Add(-time.Second),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
}

func registered() vote.Participant {
	return vote.Participant{Kind: vote.KindRegistered, ID: id.NewParticipantID()}
}

// ──────────────────────────────────────────────────
// Job store
// ──────────────────────────────────────────────────

func TestJobLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	j := newJob("vote.process", "votes")
	if err := s.EnqueueJob(ctx, j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Name != j.Name || got.State != job.StatePending {
		t.Fatalf("got %+v", got)
	}

	// Dequeue claims it.
	jobs, err := s.DequeueJobs(ctx, []string{"votes"}, 10)
	if err != nil {
		t.Fatalf("DequeueJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].State != job.StateRunning {
		t.Fatalf("dequeue got %+v", jobs)
	}

	// Second dequeue finds nothing.
	jobs, _ = s.DequeueJobs(ctx, []string{"votes"}, 10)
	if len(jobs) != 0 {
		t.Fatalf("expected empty second dequeue, got %d", len(jobs))
	}

	// Settle and purge.
	j.State = job.StateCompleted
	old := time.Now().UTC().Add(-2 * time.Hour)
	j.CompletedAt = &old
	if err := s.UpdateJob(ctx, j); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	removed, err := s.PurgeJobs(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("PurgeJobs: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
}

func TestJobActiveKeyDedup(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	key := vote.JobKey(id.NewPollID(), id.NewParticipantID())

	j1 := newJob("vote.process", "votes")
	j1.Key = key
	if err := s.EnqueueJob(ctx, j1); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	j2 := newJob("vote.process", "votes")
	j2.Key = key
	if err := s.EnqueueJob(ctx, j2); !errors.Is(err, voteflow.ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}

	// Settle the first; the partial unique index releases the key.
	j1.State = job.StateCompleted
	now := time.Now().UTC()
	j1.CompletedAt = &now
	if err := s.UpdateJob(ctx, j1); err != nil {
		t.Fatal(err)
	}

	j3 := newJob("vote.process", "votes")
	j3.Key = key
	if err := s.EnqueueJob(ctx, j3); err != nil {
		t.Fatalf("enqueue after settle: %v", err)
	}

	got, err := s.GetJobByKey(ctx, key)
	if err != nil {
		t.Fatalf("GetJobByKey: %v", err)
	}
	if got.ID != j3.ID {
		t.Fatal("expected most recent job under key")
	}
}

// ──────────────────────────────────────────────────
// Vote commit
// ──────────────────────────────────────────────────

func TestCommitVoteDecrement(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	eventID := id.NewEventID()
	p := registered()

	if err := s.SetBalance(ctx, &vote.Balance{EventID: eventID, Participant: p, Points: 5}); err != nil {
		t.Fatal(err)
	}

	v := &vote.Vote{
		ID:          id.NewVoteID(),
		PollID:      id.NewPollID(),
		OptionID:    id.NewOptionID(),
		Participant: p,
		Points:      3,
		CreatedAt:   time.Now().UTC(),
	}
	dec := &vote.Decrement{EventID: eventID, Participant: p, Points: 3}

	if err := s.CommitVote(ctx, v, dec); err != nil {
		t.Fatalf("CommitVote: %v", err)
	}

	b, _ := s.GetBalance(ctx, eventID, p)
	if b.Points != 2 {
		t.Fatalf("points = %d, want 2", b.Points)
	}

	// Overdraw rolls back the vote row.
	v2 := &vote.Vote{
		ID:          id.NewVoteID(),
		PollID:      id.NewPollID(),
		OptionID:    id.NewOptionID(),
		Participant: p,
		Points:      3,
		CreatedAt:   time.Now().UTC(),
	}
	err := s.CommitVote(ctx, v2, &vote.Decrement{EventID: eventID, Participant: p, Points: 3})
	if !errors.Is(err, voteflow.ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
	if _, err := s.FindVote(ctx, v2.PollID, p); !errors.Is(err, voteflow.ErrVoteNotFound) {
		t.Fatalf("vote row should not exist after rollback, got %v", err)
	}
}

func TestCommitVotePublicOneShot(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	pollID := id.NewPollID()
	p := vote.Participant{Kind: vote.KindGuest, ID: id.NewParticipantID()}

	v := &vote.Vote{
		ID:          id.NewVoteID(),
		PollID:      pollID,
		OptionID:    id.NewOptionID(),
		Participant: p,
		Points:      1,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.CommitVote(ctx, v, nil); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	dup := &vote.Vote{
		ID:          id.NewVoteID(),
		PollID:      pollID,
		OptionID:    id.NewOptionID(),
		Participant: p,
		Points:      1,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.CommitVote(ctx, dup, nil); !errors.Is(err, voteflow.ErrDuplicateVote) {
		t.Fatalf("expected ErrDuplicateVote, got %v", err)
	}
}

func TestCommitVotePublicOneShotConcurrent(t *testing.T) {
	// Two workers racing the same (poll, participant) — the reclaimed
	// stale-job scenario. Exactly one vote must land.
	s := setupTestStore(t)
	ctx := context.Background()

	pollID := id.NewPollID()
	p := registered()

	const racers = 8
	errs := make(chan error, racers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < racers; i++ {
		go func() {
			start.Wait()
			errs <- s.CommitVote(ctx, &vote.Vote{
				ID:          id.NewVoteID(),
				PollID:      pollID,
				OptionID:    id.NewOptionID(),
				Participant: p,
				Points:      1,
				CreatedAt:   time.Now().UTC(),
			}, nil)
		}()
	}
	start.Done()

	var committed, duplicates int
	for i := 0; i < racers; i++ {
		switch err := <-errs; {
		case err == nil:
			committed++
		case errors.Is(err, voteflow.ErrDuplicateVote):
			duplicates++
		default:
			t.Fatalf("racer %d: %v", i, err)
		}
	}
	if committed != 1 || duplicates != racers-1 {
		t.Fatalf("committed %d, duplicates %d, want 1 and %d", committed, duplicates, racers-1)
	}

	votes, err := s.ListVotes(ctx, pollID)
	if err != nil {
		t.Fatalf("ListVotes: %v", err)
	}
	if len(votes) != 1 {
		t.Fatalf("ledger has %d votes, want 1", len(votes))
	}
}

// ──────────────────────────────────────────────────
// Polls, flags
// ──────────────────────────────────────────────────

func TestPollRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p := &vote.Poll{ID: id.NewPollID(), EventID: id.NewEventID(), IsPublic: true}
	if err := s.PutPoll(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPoll(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsPublic || got.EventID != p.EventID {
		t.Fatalf("got %+v", got)
	}

	_, err = s.GetPoll(ctx, id.NewPollID())
	if !errors.Is(err, voteflow.ErrPollNotFound) {
		t.Fatalf("expected ErrPollNotFound, got %v", err)
	}
}

func TestFlags(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	pollID := id.NewPollID()
	p := registered()

	ok, err := s.HasVoted(ctx, pollID, p)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no flag")
	}

	if err := s.MarkVoted(ctx, pollID, p, time.Hour); err != nil {
		t.Fatal(err)
	}

	ok, _ = s.HasVoted(ctx, pollID, p)
	if !ok {
		t.Fatal("expected flag")
	}

	// Expired flag reads as absent.
	if err := s.MarkVoted(ctx, pollID, p, -time.Second); err != nil {
		t.Fatal(err)
	}
	ok, _ = s.HasVoted(ctx, pollID, p)
	if ok {
		t.Fatal("expected expired flag to read as absent")
	}
}
