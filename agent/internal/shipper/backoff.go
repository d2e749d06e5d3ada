package shipper

import (
	"math/rand"
	"time"
)

// backoff is a doubling retry schedule from initial up to max, with ±25%
// jitter applied to each delay. It is not safe for concurrent use; the
// Shipper only touches it under its mutex.
type backoff struct {
	initial time.Duration
	max     time.Duration
	attempt int
	jitter  func() float64 // uniform in [0, 1)
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{initial: initial, max: max, jitter: rand.Float64}
}

// next returns the delay before the next retry and counts the attempt.
func (b *backoff) next() time.Duration {
	base := b.initial
	for i := 0; i < b.attempt && base < b.max; i++ {
		base *= 2
	}
	base = min(base, b.max)
	b.attempt++
	spread := float64(base) / 4
	return base + time.Duration(spread*(2*b.jitter()-1))
}

// reset restarts the schedule after a successful delivery.
func (b *backoff) reset() {
	b.attempt = 0
}
