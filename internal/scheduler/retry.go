package scheduler

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy is a bounded exponential backoff policy. The delay before
// retry attempt n (1-based) is Base^n seconds, perturbed by ±Jitter
// fraction so concurrent callers do not resynchronize after a shared
// rate-limit response.
type RetryPolicy struct {
	MaxRetries int     // retries after the first attempt
	Base       float64 // exponent base, >= 1
	Jitter     float64 // fraction of the delay, in [0,1]
}

// Delay returns the backoff delay before the given retry attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	seconds := math.Pow(p.Base, float64(attempt))
	if p.Jitter > 0 {
		// Uniform in [1-jitter, 1+jitter].
		seconds *= 1 + p.Jitter*(2*rand.Float64()-1)
	}
	return time.Duration(seconds * float64(time.Second))
}
