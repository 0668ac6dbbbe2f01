package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Strategy is a function that determines whether or not an action should be
// retried. Strategies are allowed to delay or cause other side effects.
type Strategy func(ctx context.Context, attempts uint, err error) bool

// Limit returns a strategy that limits the total number of attempts.
// maxAttempts should be >= 1, since the action is evaluated first.
func Limit(maxAttempts uint) Strategy {
	return func(_ context.Context, attempts uint, _ error) bool {
		return attempts < maxAttempts
	}
}

// RetriableErrors returns a strategy that specifies which errors can be retried.
func RetriableErrors(retriableErrors ...error) Strategy {
	return func(_ context.Context, _ uint, err error) bool {
		for _, e := range retriableErrors {
			if errors.Is(err, e) {
				return true
			}
		}

		return false
	}
}

// NonRetriableErrors returns a strategy that specifies which errors should not be retried.
func NonRetriableErrors(nonRetriableErrors ...error) Strategy {
	return func(_ context.Context, _ uint, err error) bool {
		for _, e := range nonRetriableErrors {
			if errors.Is(err, e) {
				return false
			}
		}

		return true
	}
}

// Backoff returns a strategy that will delay the next retry by the provided
// delay, capped at maxBackoff. Retrying stops if the context is done while
// waiting.
func Backoff(delay Delay, maxBackoff time.Duration) Strategy {
	return func(ctx context.Context, attempts uint, _ error) bool {
		return sleeperImpl.Sleep(ctx, capped(delay(attempts), maxBackoff))
	}
}

// BackoffWithJitter returns a strategy similar to Backoff, but induces a jitter
// on the total delay. The maxBackoff is applied before the jitter.
//
// The jitter parameter is a percentage of the capped delay that the timing can
// be off of. For example, a capped delay of 100ms with a jitter of 0.1 will
// result in a delay of 100ms +/- 10ms.
func BackoffWithJitter(delay Delay, maxBackoff time.Duration, jitter float64) Strategy {
	return func(ctx context.Context, attempts uint, _ error) bool {
		cappedDelay := capped(delay(attempts), maxBackoff)
		withJitter := time.Duration(float64(cappedDelay) * (1 + (rand.Float64()*jitter*2 - jitter)))
		return sleeperImpl.Sleep(ctx, withJitter)
	}
}

func capped(delay, maxBackoff time.Duration) time.Duration {
	return time.Duration(math.Min(float64(maxBackoff), float64(delay)))
}

type sleeper interface {
	// Sleep waits for d, returning false if the context finished first.
	Sleep(ctx context.Context, d time.Duration) bool
}

type realSleeper struct{}

func (r *realSleeper) Sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

var sleeperImpl sleeper = &realSleeper{}
