package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config sets the throughput limits for one queue.
type Config struct {
	// Name matches the job.Queue field.
	Name string

	// MaxConcurrency caps simultaneous jobs from this queue across the
	// local pool. Zero means no queue-specific cap.
	MaxConcurrency int

	// RateLimit is the sustained dequeues per second. Zero disables
	// rate limiting.
	RateLimit float64

	// RateBurst is the token-bucket burst. Treated as 1 when RateLimit
	// is set and RateBurst is zero.
	RateBurst int
}

// bucket is the runtime state behind one limit scope, either a queue or a
// queue+event pair.
type bucket struct {
	limiter *rate.Limiter
	cap     int
	active  int
}

func newBucket(ratePerSec float64, burst, maxConcurrency int) *bucket {
	b := &bucket{cap: maxConcurrency}
	if ratePerSec > 0 {
		if burst <= 0 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return b
}

// admit consumes a rate token and checks the concurrency cap. It does not
// count the job as active; callers increment after every gate has passed.
func (b *bucket) admit() bool {
	if b.limiter != nil && !b.limiter.Allow() {
		return false
	}
	return b.cap <= 0 || b.active < b.cap
}

func (b *bucket) release() {
	if b.active > 0 {
		b.active--
	}
}

// Manager enforces per-queue and per-event limits for the worker pool.
// Queues and events it was never told about pass through untracked.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*bucket
	events map[string]*bucket
}

// NewManager creates a Manager limiting the given queues.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		queues: make(map[string]*bucket, len(configs)),
		events: make(map[string]*bucket),
	}
	for _, cfg := range configs {
		m.queues[cfg.Name] = newBucket(cfg.RateLimit, cfg.RateBurst, cfg.MaxConcurrency)
	}
	return m
}

// Acquire runs the job through the queue gate and then, when eventID is
// set, the event gate. A refusal at either gate leaves all active counts
// untouched. On success both scopes count the job until Release.
func (m *Manager) Acquire(queue, eventID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	qb := m.queues[queue]
	if qb != nil && !qb.admit() {
		return false
	}

	var eb *bucket
	if eventID != "" {
		eb = m.events[eventKey(queue, eventID)]
		if eb != nil && !eb.admit() {
			return false
		}
	}

	if qb != nil {
		qb.active++
	}
	if eb != nil {
		eb.active++
	}
	return true
}

// Release returns the job's slot in both scopes.
func (m *Manager) Release(queue, eventID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if qb := m.queues[queue]; qb != nil {
		qb.release()
	}
	if eventID != "" {
		if eb := m.events[eventKey(queue, eventID)]; eb != nil {
			eb.release()
		}
	}
}

// SetQueueConfig replaces a queue's limits at runtime. Jobs already
// counted against the queue stay counted.
func (m *Manager) SetQueueConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := newBucket(cfg.RateLimit, cfg.RateBurst, cfg.MaxConcurrency)
	if prev := m.queues[cfg.Name]; prev != nil {
		b.active = prev.active
	}
	m.queues[cfg.Name] = b
}

// ActiveCount reports how many jobs a queue currently has in flight.
// Untracked queues report zero.
func (m *Manager) ActiveCount(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b := m.queues[queue]; b != nil {
		return b.active
	}
	return 0
}
