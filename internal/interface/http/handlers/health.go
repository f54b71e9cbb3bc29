package handlers

import (
	"context"
	"strings"
	"sync"
	"time"
)

// HealthChecker reports dependency health for /health and /ready.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc checks one dependency; a non-nil error marks it unhealthy.
type HealthCheckFunc func(ctx context.Context) error

// Overall status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded" // an optional dependency is down
	StatusDown     = "down"     // a critical dependency is down
)

// HealthStatus is the JSON body of /health.
//
// Healthy is false when any check fails; Ready only when a critical one does.
// The bot keeps serving updates without Redis, so readiness follows the
// database alone.
type HealthStatus struct {
	Status    string        `json:"status"`
	Healthy   bool          `json:"healthy"`
	Ready     bool          `json:"ready"`
	Message   string        `json:"message,omitempty"`
	Checks    []CheckResult `json:"checks,omitempty"`
	Uptime    string        `json:"uptime,omitempty"`
	Version   string        `json:"version,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name     string `json:"name"`
	Healthy  bool   `json:"healthy"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
	Took     string `json:"took"`
}

// Result returns the named check's result, if it ran.
func (s HealthStatus) Result(name string) (CheckResult, bool) {
	for _, r := range s.Checks {
		if r.Name == name {
			return r, true
		}
	}
	return CheckResult{}, false
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITE HEALTH CHECKER
// ══════════════════════════════════════════════════════════════════════════════

type registeredCheck struct {
	name     string
	fn       HealthCheckFunc
	critical bool
}

// CompositeHealthChecker runs its checks concurrently, each under its own
// timeout, and reports them in registration order.
type CompositeHealthChecker struct {
	version string
	started time.Time

	mu      sync.RWMutex
	checks  []registeredCheck
	timeout time.Duration
}

func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		version: version,
		started: time.Now(),
		timeout: 3 * time.Second,
	}
}

// SetTimeout bounds each individual check.
func (c *CompositeHealthChecker) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	c.timeout = timeout
	c.mu.Unlock()
}

// AddCheck registers a critical check. Registering a name again replaces it.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.register(registeredCheck{name: name, fn: check, critical: true})
}

// AddOptionalCheck registers a check whose failure only degrades the status.
func (c *CompositeHealthChecker) AddOptionalCheck(name string, check HealthCheckFunc) {
	c.register(registeredCheck{name: name, fn: check})
}

func (c *CompositeHealthChecker) register(rc registeredCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.checks {
		if c.checks[i].name == rc.name {
			c.checks[i] = rc
			return
		}
	}
	c.checks = append(c.checks, rc)
}

func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := append([]registeredCheck(nil), c.checks...)
	timeout := c.timeout
	c.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, rc := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = run(ctx, rc, timeout)
		}()
	}
	wg.Wait()

	status := HealthStatus{
		Status:    StatusOK,
		Healthy:   true,
		Ready:     true,
		Checks:    results,
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Version:   c.version,
		Timestamp: time.Now().UTC(),
	}

	var failed []string
	for _, r := range results {
		if r.Healthy {
			continue
		}
		failed = append(failed, r.Name)
		status.Healthy = false
		status.Status = StatusDegraded
		if r.Critical {
			status.Ready = false
		}
	}
	if !status.Ready {
		status.Status = StatusDown
	}
	if len(failed) > 0 {
		status.Message = "failing: " + strings.Join(failed, ", ")
	}
	return status
}

func run(ctx context.Context, rc registeredCheck, timeout time.Duration) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := rc.fn(ctx)
	r := CheckResult{
		Name:     rc.name,
		Healthy:  err == nil,
		Critical: rc.critical,
		Took:     time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Pinger is implemented by the Postgres pool and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewPingCheck(p Pinger) HealthCheckFunc {
	return p.Ping
}
