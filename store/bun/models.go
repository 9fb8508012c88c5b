package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/voteflow/voteflow/faillog"
	"github.com/voteflow/voteflow/id"
	"github.com/voteflow/voteflow/job"
	"github.com/voteflow/voteflow/vote"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	bun.BaseModel `bun:"table:voteflow_jobs"`

	ID           string     `bun:"id,pk"`
	Key          string     `bun:"key,default:''"`
	Name         string     `bun:"name,notnull"`
	Queue        string     `bun:"queue,notnull,default:'votes'"`
	Payload      []byte     `bun:"payload,notnull,type:bytea"`
	State        string     `bun:"state,notnull,default:'pending'"`
	Priority     int        `bun:"priority,notnull,default:0"`
	MaxAttempts  int        `bun:"max_attempts,notnull,default:3"`
	Attempts     int        `bun:"attempts,notnull,default:0"`
	LastError    string     `bun:"last_error"`
	ScopeEventID string     `bun:"scope_event_id"`
	WorkerID     string     `bun:"worker_id"`
	RunAt        time.Time  `bun:"run_at,notnull,default:current_timestamp"`
	StartedAt    *time.Time `bun:"started_at"`
	CompletedAt  *time.Time `bun:"completed_at"`
	HeartbeatAt  *time.Time `bun:"heartbeat_at"`
	Timeout      int64      `bun:"timeout,notnull,default:0"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:           j.ID.String(),
		Key:          j.Key,
		Name:         j.Name,
		Queue:        j.Queue,
		Payload:      j.Payload,
		State:        string(j.State),
		Priority:     j.Priority,
		MaxAttempts:  j.MaxAttempts,
		Attempts:     j.Attempts,
		LastError:    j.LastError,
		ScopeEventID: j.ScopeEventID,
		WorkerID:     j.WorkerID.String(),
		RunAt:        j.RunAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		HeartbeatAt:  j.HeartbeatAt,
		Timeout:      j.Timeout.Nanoseconds(),
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("voteflow/bun: parse job id %q: %w", m.ID, err)
	}

	j := &job.Job{
		ID:           parsedID,
		Key:          m.Key,
		Name:         m.Name,
		Queue:        m.Queue,
		Payload:      m.Payload,
		State:        job.State(m.State),
		Priority:     m.Priority,
		MaxAttempts:  m.MaxAttempts,
		Attempts:     m.Attempts,
		LastError:    m.LastError,
		ScopeEventID: m.ScopeEventID,
		RunAt:        m.RunAt,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
		HeartbeatAt:  m.HeartbeatAt,
		Timeout:      time.Duration(m.Timeout),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}

	if m.WorkerID != "" {
		parsedWorker, wErr := id.ParseWorkerID(m.WorkerID)
		if wErr == nil {
			j.WorkerID = parsedWorker
		}
	}

	return j, nil
}

// ── Failure log model ─────────────────────────────────────────────

type failureModel struct {
	bun.BaseModel `bun:"table:voteflow_failures"`

	ID          string    `bun:"id,pk"`
	JobID       string    `bun:"job_id,notnull"`
	JobName     string    `bun:"job_name,notnull"`
	Queue       string    `bun:"queue,notnull"`
	Payload     []byte    `bun:"payload,notnull,type:bytea"`
	Error       string    `bun:"error,notnull"`
	Attempts    int       `bun:"attempts,notnull"`
	MaxAttempts int       `bun:"max_attempts,notnull,default:3"`
	FailedAt    time.Time `bun:"failed_at,notnull,default:current_timestamp"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func toFailureModel(e *faillog.Entry) *failureModel {
	return &failureModel{
		ID:          e.ID.String(),
		JobID:       e.JobID.String(),
		JobName:     e.JobName,
		Queue:       e.Queue,
		Payload:     e.Payload,
		Error:       e.Error,
		Attempts:    e.Attempts,
		MaxAttempts: e.MaxAttempts,
		FailedAt:    e.FailedAt,
		CreatedAt:   e.CreatedAt,
	}
}

func fromFailureModel(m *failureModel) (*faillog.Entry, error) {
	parsedID, err := id.ParseFailureID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("voteflow/bun: parse failure id %q: %w", m.ID, err)
	}

	parsedJobID, err := id.ParseJobID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("voteflow/bun: parse job id %q: %w", m.JobID, err)
	}

	return &faillog.Entry{
		ID:          parsedID,
		JobID:       parsedJobID,
		JobName:     m.JobName,
		Queue:       m.Queue,
		Payload:     m.Payload,
		Error:       m.Error,
		Attempts:    m.Attempts,
		MaxAttempts: m.MaxAttempts,
		FailedAt:    m.FailedAt,
		CreatedAt:   m.CreatedAt,
	}, nil
}

// ── Poll model ────────────────────────────────────────────────────

type pollModel struct {
	bun.BaseModel `bun:"table:voteflow_polls"`

	ID       string `bun:"id,pk"`
	EventID  string `bun:"event_id,notnull"`
	IsPublic bool   `bun:"is_public,notnull,default:false"`
	Closed   bool   `bun:"closed,notnull,default:false"`
}

func toPollModel(p *vote.Poll) *pollModel {
	return &pollModel{
		ID:       p.ID.String(),
		EventID:  p.EventID.String(),
		IsPublic: p.IsPublic,
		Closed:   p.Closed,
	}
}

func fromPollModel(m *pollModel) (*vote.Poll, error) {
	parsedID, err := id.ParsePollID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("voteflow/bun: parse poll id %q: %w", m.ID, err)
	}

	parsedEventID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("voteflow/bun: parse event id %q: %w", m.EventID, err)
	}

	return &vote.Poll{
		ID:       parsedID,
		EventID:  parsedEventID,
		IsPublic: m.IsPublic,
		Closed:   m.Closed,
	}, nil
}

// ── Balance model ─────────────────────────────────────────────────

type balanceModel struct {
	bun.BaseModel `bun:"table:voteflow_balances"`

	EventID         string `bun:"event_id,pk"`
	ParticipantKind string `bun:"participant_kind,pk"`
	ParticipantID   string `bun:"participant_id,pk"`
	Points          int    `bun:"points,notnull,default:0"`
}

func toBalanceModel(b *vote.Balance) *balanceModel {
	return &balanceModel{
		EventID:         b.EventID.String(),
		ParticipantKind: string(b.Participant.Kind),
		ParticipantID:   b.Participant.ID.String(),
		Points:          b.Points,
	}
}

func fromBalanceModel(m *balanceModel) (*vote.Balance, error) {
	parsedEventID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("voteflow/bun: parse event id %q: %w", m.EventID, err)
	}

	parsedParticipantID, err := id.ParseParticipantID(m.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("voteflow/bun: parse participant id %q: %w", m.ParticipantID, err)
	}

	return &vote.Balance{
		EventID: parsedEventID,
		Participant: vote.Participant{
			Kind: vote.ParticipantKind(m.ParticipantKind),
			ID:   parsedParticipantID,
		},
		Points: m.Points,
	}, nil
}

// ── Vote model ────────────────────────────────────────────────────

type voteModel struct {
	bun.BaseModel `bun:"table:voteflow_votes"`

	ID              string    `bun:"id,pk"`
	PollID          string    `bun:"poll_id,notnull"`
	OptionID        string    `bun:"option_id,notnull"`
	ParticipantKind string    `bun:"participant_kind,notnull"`
	ParticipantID   string    `bun:"participant_id,notnull"`
	Points          int       `bun:"points,notnull,default:1"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func toVoteModel(v *vote.Vote) *voteModel {
	return &voteModel{
		ID:              v.ID.String(),
		PollID:          v.PollID.String(),
		OptionID:        v.OptionID.String(),
		ParticipantKind: string(v.Participant.Kind),
		ParticipantID:   v.Participant.ID.String(),
		Points:          v.Points,
		CreatedAt:       v.CreatedAt,
	}
}

func fromVoteModel(m *voteModel) (*vote.Vote, error) {
	parsedID, err := id.ParseVoteID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("voteflow/bun: parse vote id %q: %w", m.ID, err)
	}

	parsedPollID, err := id.ParsePollID(m.PollID)
	if err != nil {
		return nil, fmt.Errorf("voteflow/bun: parse poll id %q: %w", m.PollID, err)
	}

	parsedOptionID, err := id.ParseOptionID(m.OptionID)
	if err != nil {
		return nil, fmt.Errorf("voteflow/bun: parse option id %q: %w", m.OptionID, err)
	}

	parsedParticipantID, err := id.ParseParticipantID(m.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("voteflow/bun: parse participant id %q: %w", m.ParticipantID, err)
	}

	return &vote.Vote{
		ID:       parsedID,
		PollID:   parsedPollID,
		OptionID: parsedOptionID,
		Participant: vote.Participant{
			Kind: vote.ParticipantKind(m.ParticipantKind),
			ID:   parsedParticipantID,
		},
		Points:    m.Points,
		CreatedAt: m.CreatedAt,
	}, nil
}

// ── Flag model ────────────────────────────────────────────────────

type flagModel struct {
	bun.BaseModel `bun:"table:voteflow_flags"`

	PollID          string    `bun:"poll_id,pk"`
	ParticipantKind string    `bun:"participant_kind,pk"`
	ParticipantID   string    `bun:"participant_id,pk"`
	ExpiresAt       time.Time `bun:"expires_at,notnull"`
}
