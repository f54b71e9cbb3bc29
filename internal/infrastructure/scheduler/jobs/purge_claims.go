// Package jobs contains the maintenance jobs run by the scheduler.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/casino-hub/casino-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PURGE CLAIMS JOB
// ══════════════════════════════════════════════════════════════════════════════

// PurgeFunc deletes claim records older than retention and reports how many went.
type PurgeFunc func(ctx context.Context, retention time.Duration) (int64, error)

// PurgeClaimsJob keeps the processed-updates table bounded. Retention must
// exceed the platform's 24h redelivery window or a late redelivery would be
// processed twice.
type PurgeClaimsJob struct {
	purge     PurgeFunc
	retention time.Duration
	timeout   time.Duration
	log       *logger.Logger
}

// NewPurgeClaimsJob creates the job.
func NewPurgeClaimsJob(purge PurgeFunc, retention time.Duration, log *logger.Logger) *PurgeClaimsJob {
	if log == nil {
		log = logger.Nop()
	}
	return &PurgeClaimsJob{
		purge:     purge,
		retention: retention,
		timeout:   time.Minute,
		log:       log,
	}
}

func (j *PurgeClaimsJob) Name() string { return "purge_claims" }

func (j *PurgeClaimsJob) Description() string {
	return fmt.Sprintf("delete processed update records older than %s", j.retention)
}

// Run executes one purge.
func (j *PurgeClaimsJob) Run(ctx context.Context) error {
	if j.retention < 24*time.Hour {
		return fmt.Errorf("purge_claims: retention %s is shorter than the redelivery window", j.retention)
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	deleted, err := j.purge(ctx, j.retention)
	if err != nil {
		return fmt.Errorf("purge_claims: %w", err)
	}
	if deleted > 0 {
		j.log.Info("purged processed updates", logger.Int64("deleted", deleted))
	}
	return nil
}
