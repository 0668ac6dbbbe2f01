package retry

import (
	"math"
	"time"
)

// Delay provides the amount of time to wait before the next attempt.
// Note: attempts starts at 1
type Delay func(attempts uint) time.Duration

// Constant returns a delay that is always the provided interval.
func Constant(interval time.Duration) Delay {
	return func(uint) time.Duration {
		return interval
	}
}

// Exponential returns a delay that grows exponentially with the number of
// attempts.
//
// delay = baseDelay * base^(attempts - 1)
// Ex. Exponential(2*time.Seconds, 3) = 2s, 6s, 18s, 54s, ...
func Exponential(baseDelay time.Duration, base float64) Delay {
	return func(attempts uint) time.Duration {
		if delay := baseDelay * time.Duration(math.Pow(base, float64(attempts-1))); delay >= 0 {
			return delay
		}

		return math.MaxInt64
	}
}

// BinaryExponential returns an Exponential delay with a base of 2.0
func BinaryExponential(baseDelay time.Duration) Delay {
	return Exponential(baseDelay, 2)
}
