package job

import "time"

// Options holds the enqueue-time knobs for a job.
type Options struct {
	// MaxAttempts bounds total executions; the first run is attempt one.
	// Exhausting them lands the job in the failure log.
	MaxAttempts int

	// Queue names the queue to enqueue into.
	Queue string

	// Priority orders dequeue, higher first.
	Priority int

	// Timeout bounds a single execution. Zero means unbounded.
	Timeout time.Duration

	// RunAt delays the first execution. Zero means now.
	RunAt time.Time

	// Key is the coalescing key; empty disables coalescing.
	Key string

	// ScopeEventID ties the job to an event for per-event throttling.
	ScopeEventID string
}

// DefaultOptions are the vote-pipeline defaults: three attempts on the
// votes queue with a one-minute execution cap.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		Queue:       "votes",
		Timeout:     time.Minute,
	}
}

// Option mutates Options.
type Option func(*Options)

// WithMaxAttempts bounds total executions.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithQueue routes the job to a queue.
func WithQueue(q string) Option {
	return func(o *Options) { o.Queue = q }
}

// WithPriority orders dequeue, higher first.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = p }
}

// WithTimeout bounds a single execution.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithRunAt delays the first execution.
func WithRunAt(t time.Time) Option {
	return func(o *Options) { o.RunAt = t }
}

// WithKey sets the coalescing key.
func WithKey(k string) Option {
	return func(o *Options) { o.Key = k }
}

// WithScopeEvent ties the job to an event for per-event throttling.
func WithScopeEvent(eventID string) Option {
	return func(o *Options) { o.ScopeEventID = eventID }
}
