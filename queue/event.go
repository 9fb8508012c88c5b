package queue

import "fmt"

// EventConfig sets limits for a single event on a single queue, matched
// against the job's ScopeEventID. This keeps a runaway poll in one event
// from starving vote processing for every other event.
type EventConfig struct {
	QueueName string
	EventID   string

	// RateLimit is the sustained jobs per second for this event. Zero
	// disables rate limiting.
	RateLimit float64

	// RateBurst is the token-bucket burst, treated as 1 when RateLimit
	// is set and RateBurst is zero.
	RateBurst int

	// MaxConcurrency caps simultaneous jobs for this event. Zero means
	// no event-specific cap.
	MaxConcurrency int
}

func eventKey(queue, eventID string) string {
	return fmt.Sprintf("%s:%s", queue, eventID)
}

// SetEventConfig installs or replaces the limits for a queue+event pair.
// Jobs already counted against the pair stay counted.
func (m *Manager) SetEventConfig(cfg EventConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := eventKey(cfg.QueueName, cfg.EventID)
	b := newBucket(cfg.RateLimit, cfg.RateBurst, cfg.MaxConcurrency)
	if prev := m.events[key]; prev != nil {
		b.active = prev.active
	}
	m.events[key] = b
}

// EventActiveCount reports in-flight jobs for a queue+event pair.
// Untracked pairs report zero.
func (m *Manager) EventActiveCount(queue, eventID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b := m.events[eventKey(queue, eventID)]; b != nil {
		return b.active
	}
	return 0
}
