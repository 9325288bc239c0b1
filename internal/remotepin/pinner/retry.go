package pinner

import (
	"math"
	"math/rand"
	"time"
)

const (
	DefaultAttempts   = 10
	DefaultMinBackoff = time.Second
	DefaultFactor     = 2.0
)

// RetryPolicy bounds the status polling loop.
type RetryPolicy struct {
	// Attempts is the maximum number of status fetches.
	Attempts   int
	MinBackoff time.Duration
	// MaxBackoff caps each delay, zero means no cap.
	MaxBackoff time.Duration
	Factor     float64
	// Jitter scales each delay by a random factor in [1, 2).
	Jitter bool
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.Attempts <= 0 {
		r.Attempts = DefaultAttempts
	}
	if r.MinBackoff <= 0 {
		r.MinBackoff = DefaultMinBackoff
	}
	if r.MaxBackoff < 0 {
		r.MaxBackoff = 0
	}
	if r.MaxBackoff > 0 && r.MaxBackoff < r.MinBackoff {
		r.MaxBackoff = r.MinBackoff
	}
	if r.Factor < 1 {
		r.Factor = DefaultFactor
	}
	return r
}

// Backoff returns the delay after the given failed attempt (1-based).
func (r RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(r.MinBackoff) * math.Pow(r.Factor, float64(attempt-1))
	if r.Jitter {
		d *= 1 + rand.Float64()
	}
	if r.MaxBackoff > 0 && d > float64(r.MaxBackoff) {
		return r.MaxBackoff
	}
	return time.Duration(d)
}
