package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/voteflow/voteflow/id"
	"github.com/voteflow/voteflow/job"
	"github.com/voteflow/voteflow/middleware"
)

func testJob() *job.Job {
	return &job.Job{ID: id.NewJobID(), Name: "vote.process", Queue: "votes"}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mk := func(name string) middleware.Middleware {
		return func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
			order = append(order, name+"-in")
			err := next(ctx)
			order = append(order, name+"-out")
			return err
		}
	}

	chain := middleware.Chain(mk("a"), mk("b"), mk("c"))
	err := chain(context.Background(), testJob(), func(context.Context) error {
		order = append(order, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}

	want := []string{"a-in", "b-in", "c-in", "handler", "c-out", "b-out", "a-out"}
	if len(order) != len(want) {
		t.Fatalf("order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order %v, want %v", order, want)
		}
	}
}

func TestChainEmpty(t *testing.T) {
	chain := middleware.Chain()
	ran := false
	err := chain(context.Background(), testJob(), func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("empty chain: err=%v ran=%v", err, ran)
	}
}

func TestChainPropagatesError(t *testing.T) {
	cause := errors.New("boom")
	passthrough := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		return next(ctx)
	}

	chain := middleware.Chain(passthrough, passthrough)
	err := chain(context.Background(), testJob(), func(context.Context) error {
		return cause
	})
	if !errors.Is(err, cause) {
		t.Fatalf("chain error %v, want %v", err, cause)
	}
}

func TestRecoverConvertsPanicToError(t *testing.T) {
	mw := middleware.Recover(slog.Default())

	err := mw(context.Background(), testJob(), func(context.Context) error {
		panic("handler exploded")
	})
	if err == nil {
		t.Fatal("panic swallowed without error")
	}
	if !strings.Contains(err.Error(), "handler exploded") {
		t.Fatalf("error %q missing panic value", err)
	}
}

func TestRecoverPassesThroughNormally(t *testing.T) {
	mw := middleware.Recover(slog.Default())
	cause := errors.New("ordinary failure")

	if err := mw(context.Background(), testJob(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("success path: %v", err)
	}
	if err := mw(context.Background(), testJob(), func(context.Context) error { return cause }); !errors.Is(err, cause) {
		t.Fatalf("error path: %v", err)
	}
}

func TestTimeoutCancelsSlowHandler(t *testing.T) {
	mw := middleware.Timeout(slog.Default())
	j := testJob()
	j.Timeout = 20 * time.Millisecond

	err := mw(context.Background(), j, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error %v, want deadline exceeded", err)
	}
}

func TestTimeoutZeroMeansNoDeadline(t *testing.T) {
	mw := middleware.Timeout(slog.Default())
	j := testJob() // Timeout zero

	err := mw(context.Background(), j, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Fatal("deadline set despite zero timeout")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
}

func TestLoggingPassesResultThrough(t *testing.T) {
	mw := middleware.Logging(slog.Default())
	cause := errors.New("boom")

	if err := mw(context.Background(), testJob(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("success path: %v", err)
	}
	if err := mw(context.Background(), testJob(), func(context.Context) error { return cause }); !errors.Is(err, cause) {
		t.Fatalf("error path: %v", err)
	}
}
