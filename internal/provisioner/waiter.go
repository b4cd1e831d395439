package provisioner

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Outcome is the terminal result of waiting on an asynchronous admin
// operation.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "SUCCEEDED"
	case OutcomeFailed:
		return "FAILED"
	case OutcomeTimedOut:
		return "TIMED_OUT"
	}
	return "UNKNOWN"
}

// PollResult is one observation of an asynchronous operation.
type PollResult struct {
	// Status is the provider-reported status string; SUCCEEDED and
	// FAILED are terminal, anything else retries.
	Status string
	// Reason carries the provider's failure reason, when present.
	Reason string
}

// PollFunc fetches the current status of an asynchronous operation.
type PollFunc func(ctx context.Context) (PollResult, error)

// Waiter is a bounded polling state machine over any asynchronous admin
// operation. The admin API applies a penalty to clients that poll
// immediately after submission, hence the fixed pre-poll delay.
type Waiter struct {
	// InitialDelay is slept once before the first poll.
	InitialDelay time.Duration
	// Interval separates polls. Creation waits use a wide interval,
	// deletion a tight one.
	Interval time.Duration
	// MaxWait bounds the total time from the first poll.
	MaxWait time.Duration
	// TransportRetries bounds retries of transport-level poll failures
	// before the waiter fails closed.
	TransportRetries   int
	TransportBaseDelay time.Duration
}

const (
	statusSucceeded = "SUCCEEDED"
	statusFailed    = "FAILED"
)

// Wait polls until a terminal status, the max-wait budget, or context
// cancellation. A non-nil error means the waiter failed closed on
// transport errors or cancellation; the operation's outcome is unknown.
func (w *Waiter) Wait(ctx context.Context, poll PollFunc) (Outcome, string, error) {
	if w.InitialDelay > 0 {
		if err := sleepContext(ctx, w.InitialDelay); err != nil {
			return OutcomeTimedOut, "", err
		}
	}

	deadline := time.Now().Add(w.MaxWait)
	for {
		result, err := w.pollOnce(ctx, poll)
		if err != nil {
			return OutcomeFailed, "", fmt.Errorf("status poll failed closed: %w", err)
		}

		switch result.Status {
		case statusSucceeded:
			return OutcomeSucceeded, "", nil
		case statusFailed:
			return OutcomeFailed, result.Reason, nil
		}

		if time.Now().Add(w.Interval).After(deadline) {
			return OutcomeTimedOut, "", nil
		}
		if err := sleepContext(ctx, w.Interval); err != nil {
			return OutcomeTimedOut, "", err
		}
	}
}

func (w *Waiter) pollOnce(ctx context.Context, poll PollFunc) (PollResult, error) {
	baseDelay := w.TransportBaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	policy := backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(backoff.WithInitialInterval(baseDelay)),
		uint64(w.TransportRetries),
	)

	var result PollResult
	err := backoff.Retry(func() error {
		var pollErr error
		result, pollErr = poll(ctx)
		return pollErr
	}, backoff.WithContext(policy, ctx))
	return result, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
