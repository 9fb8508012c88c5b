package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voteflow/voteflow/ext"
	"github.com/voteflow/voteflow/id"
	"github.com/voteflow/voteflow/job"
	"github.com/voteflow/voteflow/vote"
)

// Compile-time interface checks.
var (
	_ vote.Notifier     = (*Broker)(nil)
	_ ext.Extension     = (*Broker)(nil)
	_ ext.JobEnqueued   = (*Broker)(nil)
	_ ext.JobStarted    = (*Broker)(nil)
	_ ext.JobCompleted  = (*Broker)(nil)
	_ ext.JobRejected   = (*Broker)(nil)
	_ ext.JobRetrying   = (*Broker)(nil)
	_ ext.JobFailed     = (*Broker)(nil)
	_ ext.VoteCommitted = (*Broker)(nil)
	_ ext.Shutdown      = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the real-time notification broker. It implements vote.Notifier
// for tally updates and the ext lifecycle hooks for job events, fanning
// everything out to subscribers via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64
	totalDropped   atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new notification broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "notify-broker" }

// Topics returns the topic registry for external use (e.g., the WebSocket
// fanout).
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    b.totalDropped.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// publish creates an event and broadcasts it to all matching topics.
func (b *Broker) publish(evt *Event) {
	topics := resolveTopics(evt)
	delivered := b.topics.Broadcast(topics, evt)
	b.totalPublished.Add(int64(delivered))
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("notify: marshal event data: " + err.Error())
	}
	return data
}

// ── Vote notifications ──────────────────────────────

// EmitVoteUpdate implements vote.Notifier. It announces a changed tally
// on the poll's topic so connected clients can refresh.
func (b *Broker) EmitVoteUpdate(pollID id.PollID, optionID id.OptionID) {
	b.publish(&Event{
		Type:      EventVoteUpdate,
		Timestamp: time.Now().UTC(),
		Topic:     PollTopic(pollID.String()),
		Data: mustMarshal(VoteUpdateData{
			PollID:   pollID.String(),
			OptionID: optionID.String(),
		}),
	})
}

// OnVoteCommitted implements ext.VoteCommitted.
func (b *Broker) OnVoteCommitted(_ context.Context, v *vote.Vote) error {
	b.publish(&Event{
		Type:      EventVoteCommitted,
		Timestamp: time.Now().UTC(),
		Topic:     PollTopic(v.PollID.String()),
		Data: mustMarshal(VoteCommittedData{
			VoteID:          v.ID.String(),
			PollID:          v.PollID.String(),
			OptionID:        v.OptionID.String(),
			ParticipantKind: string(v.Participant.Kind),
			Points:          v.Points,
		}),
	})
	return nil
}

// ── Job lifecycle hooks ─────────────────────────────

func (b *Broker) OnJobEnqueued(_ context.Context, j *job.Job) error {
	b.publish(&Event{
		Type:      EventJobEnqueued,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data: mustMarshal(JobEventData{
			JobID:        j.ID.String(),
			JobName:      j.Name,
			Queue:        j.Queue,
			ScopeEventID: j.ScopeEventID,
		}),
	})
	return nil
}

func (b *Broker) OnJobStarted(_ context.Context, j *job.Job) error {
	b.publish(&Event{
		Type:      EventJobStarted,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data: mustMarshal(JobEventData{
			JobID:        j.ID.String(),
			JobName:      j.Name,
			Queue:        j.Queue,
			ScopeEventID: j.ScopeEventID,
		}),
	})
	return nil
}

func (b *Broker) OnJobCompleted(_ context.Context, j *job.Job, elapsed time.Duration) error {
	b.publish(&Event{
		Type:      EventJobCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data: mustMarshal(JobEventData{
			JobID:        j.ID.String(),
			JobName:      j.Name,
			Queue:        j.Queue,
			ScopeEventID: j.ScopeEventID,
			ElapsedMs:    elapsed.Milliseconds(),
		}),
	})
	return nil
}

func (b *Broker) OnJobRejected(_ context.Context, j *job.Job, jobErr error) error {
	b.publish(&Event{
		Type:      EventJobRejected,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data: mustMarshal(JobEventData{
			JobID:        j.ID.String(),
			JobName:      j.Name,
			Queue:        j.Queue,
			ScopeEventID: j.ScopeEventID,
			Error:        jobErr.Error(),
		}),
	})
	return nil
}

func (b *Broker) OnJobRetrying(_ context.Context, j *job.Job, attempt int, nextRunAt time.Time) error {
	b.publish(&Event{
		Type:      EventJobRetrying,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data: mustMarshal(JobEventData{
			JobID:        j.ID.String(),
			JobName:      j.Name,
			Queue:        j.Queue,
			ScopeEventID: j.ScopeEventID,
			Attempt:      attempt,
			NextRunAt:    nextRunAt.Format(time.RFC3339),
		}),
	})
	return nil
}

func (b *Broker) OnJobFailed(_ context.Context, j *job.Job, jobErr error) error {
	b.publish(&Event{
		Type:      EventJobFailed,
		Timestamp: time.Now().UTC(),
		Topic:     JobTopic(j.ID.String()),
		Data: mustMarshal(JobEventData{
			JobID:        j.ID.String(),
			JobName:      j.Name,
			Queue:        j.Queue,
			ScopeEventID: j.ScopeEventID,
			Error:        jobErr.Error(),
		}),
	})
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("notify broker shut down")
	return nil
}
