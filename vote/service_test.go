package vote_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/voteflow/voteflow"
	"github.com/voteflow/voteflow/id"
	"github.com/voteflow/voteflow/job"
	"github.com/voteflow/voteflow/store/memory"
	"github.com/voteflow/voteflow/vote"
)

// stubEnqueuer records EnqueueRaw calls and returns a canned response.
type stubEnqueuer struct {
	jobs []*job.Job
	err  error
}

func (e *stubEnqueuer) EnqueueRaw(_ context.Context, name string, payload []byte, opts ...job.Option) (*job.Job, error) {
	if e.err != nil {
		return nil, e.err
	}
	jobOpts := job.DefaultOptions()
	for _, opt := range opts {
		opt(&jobOpts)
	}
	j := &job.Job{
		ID:           id.NewJobID(),
		Key:          jobOpts.Key,
		Name:         name,
		Payload:      payload,
		State:        job.StatePending,
		Queue:        jobOpts.Queue,
		Priority:     jobOpts.Priority,
		MaxAttempts:  jobOpts.MaxAttempts,
		ScopeEventID: jobOpts.ScopeEventID,
	}
	e.jobs = append(e.jobs, j)
	return j, nil
}

func newServiceFixture(t *testing.T, poll *vote.Poll) (*vote.Service, *stubEnqueuer, *memory.Store) {
	t.Helper()
	st := memory.New()
	if poll != nil {
		if poll.ID.IsNil() {
			poll.ID = id.NewPollID()
		}
		if poll.EventID.IsNil() {
			poll.EventID = id.NewEventID()
		}
		if err := st.PutPoll(context.Background(), poll); err != nil {
			t.Fatalf("put poll: %v", err)
		}
	}
	enq := &stubEnqueuer{}
	return vote.NewService(enq, st, st, slog.Default()), enq, st
}

func TestSubmitEnqueuesIntent(t *testing.T) {
	poll := &vote.Poll{}
	svc, enq, _ := newServiceFixture(t, poll)
	p := registered()

	j, err := svc.Submit(context.Background(), poll.ID, id.NewOptionID(), p, 3)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if j == nil {
		t.Fatal("expected a job")
	}
	if len(enq.jobs) != 1 {
		t.Fatalf("expected 1 enqueue, got %d", len(enq.jobs))
	}

	got := enq.jobs[0]
	if got.Name != vote.JobName {
		t.Fatalf("job name %q, want %q", got.Name, vote.JobName)
	}
	if got.Queue != voteflow.VoteQueue {
		t.Fatalf("queue %q, want %q", got.Queue, voteflow.VoteQueue)
	}
	if want := vote.JobKey(poll.ID, p.ID); got.Key != want {
		t.Fatalf("key %q, want %q", got.Key, want)
	}
	if got.ScopeEventID != poll.EventID.String() {
		t.Fatalf("scope event %q, want %q", got.ScopeEventID, poll.EventID)
	}

	var in vote.Intent
	if err := json.Unmarshal(got.Payload, &in); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if in.PollID != poll.ID || in.Participant != p || in.Points != 3 {
		t.Fatalf("payload round-trip mismatch: %+v", in)
	}
}

func TestSubmitValidation(t *testing.T) {
	poll := &vote.Poll{}
	svc, enq, _ := newServiceFixture(t, poll)
	option := id.NewOptionID()

	tests := []struct {
		name        string
		pollID      id.PollID
		optionID    id.OptionID
		participant vote.Participant
		points      int
		wantMsg     string
	}{
		{
			name:        "missing poll id",
			optionID:    option,
			participant: registered(),
			points:      1,
			wantMsg:     "missing poll id",
		},
		{
			name:        "missing option id",
			pollID:      poll.ID,
			participant: registered(),
			points:      1,
			wantMsg:     "missing option id",
		},
		{
			name:     "missing participant",
			pollID:   poll.ID,
			optionID: option,
			points:   1,
			wantMsg:  "missing participant",
		},
		{
			name:        "bad participant kind",
			pollID:      poll.ID,
			optionID:    option,
			participant: vote.Participant{Kind: "robot", ID: id.NewParticipantID()},
			points:      1,
			wantMsg:     "missing participant",
		},
		{
			name:        "zero points",
			pollID:      poll.ID,
			optionID:    option,
			participant: registered(),
			points:      0,
			wantMsg:     "points must be positive",
		},
		{
			name:        "negative points",
			pollID:      poll.ID,
			optionID:    option,
			participant: registered(),
			points:      -2,
			wantMsg:     "points must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tt.pollID, tt.optionID, tt.participant, tt.points)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("error %q, want substring %q", err, tt.wantMsg)
			}
		})
	}

	if len(enq.jobs) != 0 {
		t.Fatalf("validation failure still enqueued %d jobs", len(enq.jobs))
	}
}

func TestSubmitUnknownPoll(t *testing.T) {
	svc, enq, _ := newServiceFixture(t, nil)

	_, err := svc.Submit(context.Background(), id.NewPollID(), id.NewOptionID(), registered(), 1)
	if !strings.Contains(err.Error(), voteflow.ErrPollNotFound.Error()) {
		t.Fatalf("expected poll-not-found, got %v", err)
	}
	if len(enq.jobs) != 0 {
		t.Fatal("unknown poll must not enqueue")
	}
}

func TestSubmitCoalesced(t *testing.T) {
	poll := &vote.Poll{}
	svc, enq, _ := newServiceFixture(t, poll)
	enq.err = voteflow.ErrDuplicateJob

	j, err := svc.Submit(context.Background(), poll.ID, id.NewOptionID(), registered(), 1)
	if err != nil {
		t.Fatalf("coalesced submission must be accepted, got %v", err)
	}
	if j != nil {
		t.Fatalf("coalesced submission must not produce a new job, got %v", j.ID)
	}
}

func TestRemainingPoints(t *testing.T) {
	poll := &vote.Poll{}
	svc, _, st := newServiceFixture(t, poll)
	p := registered()

	// No balance row yet.
	got, err := svc.RemainingPoints(context.Background(), poll.ID, p)
	if err != nil {
		t.Fatalf("remaining points: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected 0 without a balance, got %d", got)
	}

	err = st.SetBalance(context.Background(), &vote.Balance{
		EventID: poll.EventID, Participant: p, Points: 7,
	})
	if err != nil {
		t.Fatalf("set balance: %v", err)
	}
	got, err = svc.RemainingPoints(context.Background(), poll.ID, p)
	if err != nil {
		t.Fatalf("remaining points: %v", err)
	}
	if got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestRemainingPointsPublicPoll(t *testing.T) {
	poll := &vote.Poll{IsPublic: true}
	svc, _, _ := newServiceFixture(t, poll)

	got, err := svc.RemainingPoints(context.Background(), poll.ID, registered())
	if err != nil {
		t.Fatalf("remaining points: %v", err)
	}
	if got != 1 {
		t.Fatalf("public polls are single-point, got %d", got)
	}
}

func TestCanVote(t *testing.T) {
	poll := &vote.Poll{}
	svc, _, st := newServiceFixture(t, poll)
	p := registered()

	ok, err := svc.CanVote(context.Background(), poll.ID, p)
	if err != nil {
		t.Fatalf("can vote: %v", err)
	}
	if ok {
		t.Fatal("no balance row means not eligible")
	}

	err = st.SetBalance(context.Background(), &vote.Balance{
		EventID: poll.EventID, Participant: p, Points: 1,
	})
	if err != nil {
		t.Fatalf("set balance: %v", err)
	}
	ok, err = svc.CanVote(context.Background(), poll.ID, p)
	if err != nil {
		t.Fatalf("can vote: %v", err)
	}
	if !ok {
		t.Fatal("balance holder should be eligible")
	}
}

func TestCanVoteEdges(t *testing.T) {
	t.Run("unknown poll", func(t *testing.T) {
		svc, _, _ := newServiceFixture(t, nil)
		ok, err := svc.CanVote(context.Background(), id.NewPollID(), registered())
		if err != nil || ok {
			t.Fatalf("unknown poll: got (%v, %v), want (false, nil)", ok, err)
		}
	})

	t.Run("closed poll", func(t *testing.T) {
		poll := &vote.Poll{Closed: true}
		svc, _, st := newServiceFixture(t, poll)
		p := registered()
		err := st.SetBalance(context.Background(), &vote.Balance{
			EventID: poll.EventID, Participant: p, Points: 5,
		})
		if err != nil {
			t.Fatalf("set balance: %v", err)
		}
		ok, err := svc.CanVote(context.Background(), poll.ID, p)
		if err != nil || ok {
			t.Fatalf("closed poll: got (%v, %v), want (false, nil)", ok, err)
		}
	})

	t.Run("public poll guest", func(t *testing.T) {
		poll := &vote.Poll{IsPublic: true}
		svc, _, _ := newServiceFixture(t, poll)
		ok, err := svc.CanVote(context.Background(), poll.ID, guest())
		if err != nil || ok {
			t.Fatalf("guest on public poll: got (%v, %v), want (false, nil)", ok, err)
		}
	})

	t.Run("public poll registered", func(t *testing.T) {
		poll := &vote.Poll{IsPublic: true}
		svc, _, _ := newServiceFixture(t, poll)
		ok, err := svc.CanVote(context.Background(), poll.ID, registered())
		if err != nil || !ok {
			t.Fatalf("registered on public poll: got (%v, %v), want (true, nil)", ok, err)
		}
	})
}
