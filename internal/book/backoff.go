package book

import (
	"math/rand"
	"time"
)

// Backoff produces reconnect delays that double on every attempt up to Max.
// A small positive jitter is applied so two replicas that fail together do
// not retry in lockstep. Successive delays never decrease until the cap is
// reached, after which every delay equals Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	attempt int
}

// Next returns the delay before the next reconnect attempt and advances the
// attempt counter.
func (b *Backoff) Next() time.Duration {
	base := b.Base
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	max := b.Max
	if max <= 0 {
		max = 30 * time.Second
	}

	shift := b.attempt
	b.attempt++
	if shift > 32 {
		shift = 32
	}
	d := base << shift
	if d <= 0 || d >= max {
		return max
	}

	// Jitter in [1.0, 1.25). The uncapped delay doubles each attempt, so
	// jittered delays stay non-decreasing: 1.25*d < 2*d.
	jittered := time.Duration(float64(d) * (1.0 + rand.Float64()*0.25))
	if jittered > max {
		return max
	}
	return jittered
}

// Attempt returns the number of attempts made so far.
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Reset clears the attempt counter after a successful connection.
func (b *Backoff) Reset() {
	b.attempt = 0
}
