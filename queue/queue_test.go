package queue_test

import (
	"testing"

	"github.com/voteflow/voteflow/queue"
)

func TestUnconfiguredQueueHasNoLimits(t *testing.T) {
	m := queue.NewManager()

	for range 100 {
		if !m.Acquire("votes", "") {
			t.Fatal("unconfigured queue refused a job")
		}
	}
	if m.ActiveCount("votes") != 0 {
		t.Fatalf("unconfigured queue tracks active count %d", m.ActiveCount("votes"))
	}
}

func TestQueueConcurrencyCap(t *testing.T) {
	m := queue.NewManager(queue.Config{Name: "votes", MaxConcurrency: 2})

	if !m.Acquire("votes", "") || !m.Acquire("votes", "") {
		t.Fatal("first two acquires must succeed")
	}
	if m.Acquire("votes", "") {
		t.Fatal("third acquire exceeded MaxConcurrency=2")
	}
	if m.ActiveCount("votes") != 2 {
		t.Fatalf("active count %d, want 2", m.ActiveCount("votes"))
	}

	m.Release("votes", "")
	if !m.Acquire("votes", "") {
		t.Fatal("release did not free a slot")
	}
}

func TestQueueRateLimit(t *testing.T) {
	// Burst of 2 tokens, negligible refill within the test window.
	m := queue.NewManager(queue.Config{Name: "votes", RateLimit: 0.001, RateBurst: 2})

	if !m.Acquire("votes", "") || !m.Acquire("votes", "") {
		t.Fatal("burst acquires must succeed")
	}
	if m.Acquire("votes", "") {
		t.Fatal("acquire beyond the burst succeeded")
	}

	// Releasing does not mint tokens; the limiter is time-based.
	m.Release("votes", "")
	m.Release("votes", "")
	if m.Acquire("votes", "") {
		t.Fatal("release refilled the rate limiter")
	}
}

func TestQueueLimitsAreIndependent(t *testing.T) {
	m := queue.NewManager(queue.Config{Name: "votes", MaxConcurrency: 1})

	if !m.Acquire("votes", "") {
		t.Fatal("acquire on votes failed")
	}
	if m.Acquire("votes", "") {
		t.Fatal("votes cap ignored")
	}
	// Another queue is unaffected.
	if !m.Acquire("maintenance", "") {
		t.Fatal("unrelated queue was blocked")
	}
}

func TestEventConcurrencyCap(t *testing.T) {
	m := queue.NewManager(queue.Config{Name: "votes"})
	m.SetEventConfig(queue.EventConfig{
		QueueName:      "votes",
		EventID:        "evt-hot",
		MaxConcurrency: 1,
	})

	if !m.Acquire("votes", "evt-hot") {
		t.Fatal("first acquire for the event failed")
	}
	if m.Acquire("votes", "evt-hot") {
		t.Fatal("event cap ignored")
	}

	// Other events on the same queue are unaffected.
	if !m.Acquire("votes", "evt-quiet") {
		t.Fatal("uncapped event was blocked")
	}
	if m.EventActiveCount("votes", "evt-hot") != 1 {
		t.Fatalf("event active count %d, want 1", m.EventActiveCount("votes", "evt-hot"))
	}

	m.Release("votes", "evt-hot")
	if !m.Acquire("votes", "evt-hot") {
		t.Fatal("event release did not free the slot")
	}
}

func TestEventRateLimit(t *testing.T) {
	m := queue.NewManager()
	m.SetEventConfig(queue.EventConfig{
		QueueName: "votes",
		EventID:   "evt-1",
		RateLimit: 0.001,
		RateBurst: 1,
	})

	if !m.Acquire("votes", "evt-1") {
		t.Fatal("burst acquire failed")
	}
	if m.Acquire("votes", "evt-1") {
		t.Fatal("event rate limit ignored")
	}
}

func TestSetQueueConfigPreservesActiveCount(t *testing.T) {
	m := queue.NewManager(queue.Config{Name: "votes", MaxConcurrency: 5})

	if !m.Acquire("votes", "") || !m.Acquire("votes", "") {
		t.Fatal("acquires failed")
	}

	// Tighten the cap below the current active count.
	m.SetQueueConfig(queue.Config{Name: "votes", MaxConcurrency: 2})
	if m.ActiveCount("votes") != 2 {
		t.Fatalf("reconfigure lost the active count: %d", m.ActiveCount("votes"))
	}
	if m.Acquire("votes", "") {
		t.Fatal("tightened cap ignored")
	}
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	m := queue.NewManager(queue.Config{Name: "votes", MaxConcurrency: 1})

	m.Release("votes", "evt-1")
	m.Release("votes", "evt-1")
	if m.ActiveCount("votes") != 0 {
		t.Fatalf("active count went to %d", m.ActiveCount("votes"))
	}
	if !m.Acquire("votes", "") {
		t.Fatal("acquire failed after spurious releases")
	}
}
