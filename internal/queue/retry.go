package queue

import (
	"math"
	"time"
)

// RetryPolicy bounds how failed entries are retried.
type RetryPolicy struct {
	// BaseBackoff is the delay after the first failure. Doubles per attempt.
	BaseBackoff time.Duration
	// MaxBackoff caps the delay.
	MaxBackoff time.Duration
	// MaxAttempts parks an entry once it has failed this many times.
	// 0 means unlimited.
	MaxAttempts int
}

// DefaultRetryPolicy is used when a Queue is built without one.
var DefaultRetryPolicy = RetryPolicy{
	BaseBackoff: 30 * time.Second,
	MaxBackoff:  time.Hour,
	MaxAttempts: 10,
}

// Backoff returns the delay before the next attempt, given the number of
// failures recorded so far (>= 1): min(Base * 2^(attempts-1), Max).
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if attempts < 1 || p.BaseBackoff <= 0 {
		return 0
	}
	d := p.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d <= 0 { // overflow
			d = time.Duration(math.MaxInt64)
			break
		}
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Exhausted reports whether an entry with this many failures should be parked.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}
