package http

import (
	"math"
	"sync"
	"time"
)

// rateLimiter is a per-client token bucket. Each bucket holds up to perMinute
// tokens and refills continuously, so a client may burst a full minute's
// allowance and then proceeds at the steady rate.
type rateLimiter struct {
	perMinute float64
	now       func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	tokens float64
	seen   time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	rl := &rateLimiter{
		perMinute: float64(perMinute),
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		stop:      make(chan struct{}),
	}
	go rl.sweep(time.Minute)
	return rl
}

// take spends one token for key. When the bucket is empty it returns the wait
// until the next token.
func (rl *rateLimiter) take(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.perMinute, seen: now}
		rl.buckets[key] = b
	}
	b.tokens = rl.refill(b, now)
	b.seen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	missing := 1 - b.tokens
	return false, time.Duration(missing * float64(time.Minute) / rl.perMinute)
}

func (rl *rateLimiter) refill(b *bucket, now time.Time) float64 {
	elapsed := now.Sub(b.seen)
	if elapsed <= 0 {
		return b.tokens
	}
	return math.Min(rl.perMinute, b.tokens+float64(elapsed)*rl.perMinute/float64(time.Minute))
}

// sweep drops buckets that have refilled completely; they are equivalent to
// a fresh one.
func (rl *rateLimiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, b := range rl.buckets {
				if rl.refill(b, now) >= rl.perMinute {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// retryAfterSeconds rounds a wait up to whole seconds for the Retry-After header.
func retryAfterSeconds(wait time.Duration) int {
	return max(1, int(math.Ceil(wait.Seconds())))
}
