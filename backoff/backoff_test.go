package backoff_test

import (
	"testing"
	"time"

	"github.com/voteflow/voteflow/backoff"
)

func TestConstant(t *testing.T) {
	s := backoff.NewConstant(5 * time.Second)
	for _, attempt := range []int{1, 2, 10} {
		if got := s.Delay(attempt); got != 5*time.Second {
			t.Fatalf("Delay(%d) = %v, want 5s", attempt, got)
		}
	}
}

func TestLinear(t *testing.T) {
	s := backoff.NewLinear(2*time.Second, 7*time.Second)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 6 * time.Second},
		{4, 7 * time.Second}, // capped
		{100, 7 * time.Second},
	}
	for _, tt := range tests {
		if got := s.Delay(tt.attempt); got != tt.want {
			t.Fatalf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential(t *testing.T) {
	s := backoff.NewExponential(5*time.Second, 5*time.Minute)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{7, 5 * time.Minute}, // 320s capped at 300s
	}
	for _, tt := range tests {
		if got := s.Delay(tt.attempt); got != tt.want {
			t.Fatalf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialNoCap(t *testing.T) {
	s := backoff.NewExponential(time.Second, 0)
	if got := s.Delay(10); got != 512*time.Second {
		t.Fatalf("Delay(10) = %v, want 512s", got)
	}
}

func TestExponentialWithJitter(t *testing.T) {
	s := backoff.NewExponentialWithJitter(5*time.Second, time.Minute)
	for _, attempt := range []int{1, 2, 3, 6} {
		ceil := 5 * time.Second << (attempt - 1)
		if ceil > time.Minute {
			ceil = time.Minute
		}
		for range 50 {
			got := s.Delay(attempt)
			if got < 0 || got > ceil {
				t.Fatalf("Delay(%d) = %v outside [0, %v]", attempt, got, ceil)
			}
		}
	}
}

func TestDefaultStrategy(t *testing.T) {
	s := backoff.DefaultStrategy()
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	for i, w := range want {
		if got := s.Delay(i + 1); got != w {
			t.Fatalf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}
