package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDial = errors.New("dial tcp: connection refused")

// instant replaces the real sleep and records requested delays.
func instant(r *Retrier) *[]time.Duration {
	var waits []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return &waits
}

func TestRetrier_RetriesUntilSuccess(t *testing.T) {
	r := New(Policy{Attempts: 5, InitialDelay: time.Second, Multiplier: 2})
	waits := instant(r)

	attempts := 0
	err := r.Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errDial
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
}

func TestRetrier_StopsOnPermanent(t *testing.T) {
	r := New(Policy{Attempts: 5})
	instant(r)

	attempts := 0
	err := r.Do(context.Background(), func(context.Context) error {
		attempts++
		return Permanent(errDial)
	})

	assert.ErrorIs(t, err, errDial)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, 1, attempts)
}

func TestRetrier_ReturnsLastErrorAfterAttempts(t *testing.T) {
	var retries []int
	r := DatabaseConnectRetrier(3, func(attempt int, _ error, _ time.Duration) {
		retries = append(retries, attempt)
	})
	instant(r)

	attempts := 0
	err := r.Do(context.Background(), func(context.Context) error {
		attempts++
		return errDial
	})
	assert.ErrorIs(t, err, errDial)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetrier_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	attempts := 0
	err := New(Policy{Attempts: 10, InitialDelay: time.Second}).Do(ctx, func(context.Context) error {
		attempts++
		return errDial
	})

	assert.ErrorIs(t, err, errDial)
	assert.Equal(t, 1, attempts)
}

func TestPolicy_DelayIsCapped(t *testing.T) {
	p := Policy{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, 5*time.Second, p.Delay(30))
}

func TestPolicy_JitterStaysInRange(t *testing.T) {
	p := Policy{Jitter: 0.2}
	for i := 0; i < 100; i++ {
		d := p.jittered(10 * time.Second)
		assert.GreaterOrEqual(t, d, 8*time.Second)
		assert.LessOrEqual(t, d, 12*time.Second)
	}
}
