// Package scheduler runs periodic maintenance jobs in the bot process:
// purging old update claims and keeping the leaderboard cache warm.
// Jobs never run on the webhook request path.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/casino-hub/casino-hub/pkg/logger"
)

var (
	ErrNilJob                  = errors.New("scheduler: job cannot be nil")
	ErrNilSchedule             = errors.New("scheduler: schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("scheduler: job already exists")
	ErrJobNotFound             = errors.New("scheduler: job not found")
	ErrSchedulerAlreadyRunning = errors.New("scheduler: already running")
	ErrSchedulerNotRunning     = errors.New("scheduler: not running")
)

// Job is a unit of periodic work. Run receives a context that is cancelled
// when the scheduler stops.
type Job interface {
	Name() string
	Description() string
	Run(ctx context.Context) error
}

// Schedule yields the next start time after the previous one.
type Schedule interface {
	Next(prev time.Time) time.Time
	String() string
}

// Every is a fixed-interval schedule.
type Every time.Duration

func (e Every) Next(prev time.Time) time.Time { return prev.Add(time.Duration(e)) }
func (e Every) String() string                { return "@every " + time.Duration(e).String() }

// JobResult describes one finished run.
type JobResult struct {
	JobName     string        `json:"job"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration_ns"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
}

// JobInfo is the /metrics view of a registered job.
type JobInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schedule    string     `json:"schedule"`
	LastRun     time.Time  `json:"last_run"`
	NextRun     time.Time  `json:"next_run"`
	RunCount    int64      `json:"run_count"`
	FailCount   int64      `json:"fail_count"`
	LastResult  *JobResult `json:"last_result,omitempty"`
}

// entry is guarded by Scheduler.mu except for job and schedule, which never change.
type entry struct {
	job      Job
	schedule Schedule

	lastRun    time.Time
	nextRun    time.Time
	runCount   int64
	failCount  int64
	lastResult *JobResult
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config configures a Scheduler.
type Config struct {
	Logger *logger.Logger
}

// Scheduler gives every job its own goroutine and timer. A job's next run is
// computed from the start of the previous one, and it never overlaps itself.
type Scheduler struct {
	log *logger.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(config Config) *Scheduler {
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		log:     log.With(logger.Component("scheduler")),
		entries: make(map[string]*entry),
	}
}

// Register adds a job. Jobs registered while the scheduler is running start
// on their first scheduled tick.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}
	e := &entry{job: job, schedule: schedule, nextRun: schedule.Next(time.Now())}
	s.entries[name] = e
	if s.running {
		s.spawn(e, false)
	}

	s.log.Info("job registered",
		logger.String("job", name),
		logger.String("schedule", schedule.String()),
	)
	return nil
}

// Start launches the job loops. With runOnStart every job runs immediately
// instead of waiting one interval.
func (s *Scheduler) Start(ctx context.Context, runOnStart bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	for _, e := range s.entries {
		s.spawn(e, runOnStart)
	}
	s.log.Info("scheduler started", logger.Int("jobs", len(s.entries)))
	return nil
}

// Stop cancels running jobs and waits for every loop to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// spawn must be called with mu held.
func (s *Scheduler) spawn(e *entry, immediately bool) {
	if immediately {
		e.nextRun = time.Now()
	}
	s.wg.Add(1)
	go s.loop(s.ctx, e)
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		s.mu.RLock()
		wait := time.Until(e.nextRun)
		s.mu.RUnlock()

		timer.Reset(max(wait, 0))
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		start := time.Now()
		s.mu.Lock()
		e.lastRun = start
		e.nextRun = e.schedule.Next(start)
		s.mu.Unlock()

		s.record(e, s.execute(ctx, e.job, start))
	}
}

func (s *Scheduler) record(e *entry, result JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.runCount++
	if !result.Success {
		e.failCount++
	}
	e.lastResult = &result
}

// execute runs job and converts a panic into a failed result.
func (s *Scheduler) execute(ctx context.Context, job Job, start time.Time) (result JobResult) {
	result = JobResult{JobName: job.Name(), StartedAt: start}
	defer func() {
		if p := recover(); p != nil {
			result.Error = fmt.Sprintf("panic: %v", p)
		}
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(start)
		result.Success = result.Error == ""

		log := s.log.With(logger.String("job", result.JobName), logger.Latency(result.Duration))
		if result.Success {
			log.Debug("job completed")
		} else {
			log.Error("job failed", logger.String("error", result.Error))
		}
	}()

	if err := job.Run(ctx); err != nil {
		result.Error = err.Error()
	}
	return result
}

// RunNow runs a job synchronously outside its schedule. It may overlap a
// scheduled run of the same job.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*JobResult, error) {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	result := s.execute(ctx, e.job, time.Now())
	s.record(e, result)
	if !result.Success {
		return &result, errors.New(result.Error)
	}
	return &result, nil
}

// ListJobs returns every job sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		out = append(out, JobInfo{
			Name:        name,
			Description: e.job.Description(),
			Schedule:    e.schedule.String(),
			LastRun:     e.lastRun,
			NextRun:     e.nextRun,
			RunCount:    e.runCount,
			FailCount:   e.failCount,
			LastResult:  e.lastResult,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
