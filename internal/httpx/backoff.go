package httpx

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// backoff computes exponential retry delays with optional jitter. A single
// backoff is owned by one Do call, the mutex only guards the random source.
type backoff struct {
	base   time.Duration
	max    time.Duration
	jitter float64

	mu  sync.Mutex
	rnd *rand.Rand
}

func newBackoff(policy RetryPolicy) *backoff {
	b := &backoff{
		base:   policy.BaseDelay,
		max:    policy.MaxDelay,
		jitter: math.Min(math.Max(policy.Jitter, 0), 1),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if b.base <= 0 {
		b.base = DefaultRetryPolicy.BaseDelay
	}
	if b.max < b.base {
		b.max = b.base
	}
	return b
}

// delay returns the wait before retry number attempt (0-indexed).
func (b *backoff) delay(attempt int) time.Duration {
	d := b.base
	if attempt > 0 {
		// cap the shift so the multiplication cannot overflow
		shift := attempt
		if shift > 30 {
			shift = 30
		}
		d = b.base * time.Duration(1<<uint(shift))
		if d <= 0 || d > b.max {
			d = b.max
		}
	}
	if b.jitter == 0 {
		return d
	}

	b.mu.Lock()
	factor := 1 + (b.rnd.Float64()*2-1)*b.jitter
	b.mu.Unlock()
	if factor < 0 {
		factor = 0
	}
	return time.Duration(float64(d) * factor)
}
