package transport

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes reconnect delays: Min * Factor^(attempt-1), capped at Max,
// then spread by +/- Jitter of the delay.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	// Jitter is a fraction of the delay in [0, 1]
	Jitter float64
	// Rand returns values in [0, 1) for jitter; nil uses math/rand.
	Rand func() float64
}

// DefaultBackoff is used for the upstream feed connection
func DefaultBackoff() Backoff {
	return Backoff{
		Min:    250 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: 0.2,
	}
}

// Next returns the delay before retry attempt (1-based; lower values count as 1)
func (b Backoff) Next(attempt int) time.Duration {
	lo, hi, factor := b.Min, b.Max, b.Factor
	if lo <= 0 {
		lo = 100 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	if factor <= 1 {
		factor = 2
	}
	if attempt < 1 {
		attempt = 1
	}

	base := float64(lo) * math.Pow(factor, float64(attempt-1))
	if base > float64(hi) || math.IsInf(base, 1) {
		base = float64(hi)
	}

	jitter := math.Min(math.Max(b.Jitter, 0), 1)
	if jitter == 0 {
		return time.Duration(base)
	}

	r := rand.Float64
	if b.Rand != nil {
		r = b.Rand
	}
	spread := base * jitter
	return time.Duration(base - spread + 2*spread*r())
}
