package realtime

import (
	"math/rand"
	"time"
)

// Backoff computes reconnect delays: min(Max, Initial·2^attempt) plus up to
// Jitter·delay of random extra, clamped to Max. With Jitter ≤ 1 the delays
// never decrease as attempt grows.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64

	// rand returns a value in [0,1). Nil means math/rand.
	rand func() float64
}

// DefaultBackoff is 1s doubling up to 30s with 20% jitter.
var DefaultBackoff = Backoff{Initial: time.Second, Max: 30 * time.Second, Jitter: 0.2}

// Delay returns the wait before reconnect attempt number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	initial, max := b.Initial, b.Max
	if initial <= 0 {
		initial = DefaultBackoff.Initial
	}
	if max < initial {
		max = initial
	}
	if attempt < 0 {
		attempt = 0
	}

	delay := max
	// Stop shifting before it overflows; the cap is reached long before.
	if attempt < 32 {
		if d := initial << uint(attempt); d > 0 && d < max {
			delay = d
		}
	}

	jitter := b.Jitter
	switch {
	case jitter < 0:
		jitter = 0
	case jitter > 1:
		jitter = 1
	}
	if jitter > 0 {
		r := rand.Float64
		if b.rand != nil {
			r = b.rand
		}
		delay += time.Duration(float64(delay) * jitter * r())
	}
	if delay > max {
		delay = max
	}
	return delay
}
