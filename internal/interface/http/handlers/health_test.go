package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCompositeHealthChecker_NoChecks(t *testing.T) {
	status := NewCompositeHealthChecker("1.0.0").Check(context.Background())
	assert.Equal(t, StatusOK, status.Status)
	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, "1.0.0", status.Version)
	assert.Empty(t, status.Checks)
}

func TestCompositeHealthChecker_CriticalAndOptional(t *testing.T) {
	c := NewCompositeHealthChecker("1.0.0")
	c.AddCheck("postgres", NewPingCheck(pinger{}))
	c.AddOptionalCheck("redis", NewPingCheck(pinger{err: errors.New("connection refused")}))

	status := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, status.Status)
	assert.False(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, "failing: redis", status.Message)

	redis, ok := status.Result("redis")
	require.True(t, ok)
	assert.False(t, redis.Critical)
	assert.Equal(t, "connection refused", redis.Error)

	// Re-registering replaces the check and keeps its position.
	c.AddCheck("postgres", NewPingCheck(pinger{err: errors.New("timeout")}))
	status = c.Check(context.Background())
	assert.Equal(t, StatusDown, status.Status)
	assert.False(t, status.Ready)
	assert.Equal(t, "failing: postgres, redis", status.Message)
	require.Len(t, status.Checks, 2)
	assert.Equal(t, "postgres", status.Checks[0].Name)
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	c := NewCompositeHealthChecker("1.0.0")
	c.SetTimeout(20 * time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	status := c.Check(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, status.Ready)

	slow, ok := status.Result("slow")
	require.True(t, ok)
	assert.Equal(t, context.DeadlineExceeded.Error(), slow.Error)
}
