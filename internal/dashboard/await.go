package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/aidcare/copilot/internal/reliability"
)

// Outcome is how a deadline-bound fetch ended.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Result is the single value every Await produces.
type Result[T any] struct {
	Value   T
	Outcome Outcome
	Err     error
}

func (r Result[T]) OK() bool { return r.Outcome == OutcomeOK }

// Await runs fn under timeout. A timeout and a cancellation of ctx are
// outcomes, not errors thrown later: once Await returns, a late answer from
// fn is discarded. fn sees a context that ends at the deadline.
func Await[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) Result[T] {
	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type answer struct {
		v   T
		err error
	}
	done := make(chan answer, 1)
	go func() {
		v, err := fn(runCtx)
		done <- answer{v: v, err: err}
	}()

	var zero T
	select {
	case a := <-done:
		if a.err == nil {
			return Result[T]{Value: a.v, Outcome: OutcomeOK}
		}
		if runCtx.Err() != nil {
			return ended[T](ctx, runCtx)
		}
		return Result[T]{Value: zero, Outcome: OutcomeFailed, Err: a.err}
	case <-runCtx.Done():
		return ended[T](ctx, runCtx)
	}
}

func ended[T any](parent, run context.Context) Result[T] {
	if parent.Err() != nil {
		return Result[T]{Outcome: OutcomeCancelled, Err: parent.Err()}
	}
	if errors.Is(run.Err(), context.DeadlineExceeded) {
		return Result[T]{Outcome: OutcomeTimedOut, Err: reliability.ErrTimedOut}
	}
	return Result[T]{Outcome: OutcomeCancelled, Err: run.Err()}
}
