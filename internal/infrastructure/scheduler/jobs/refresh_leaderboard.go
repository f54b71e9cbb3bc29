package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/casino-hub/casino-hub/internal/domain/player"
	"github.com/casino-hub/casino-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// RefreshLeaderboardJob recomputes the global leaderboard and stores it in
// the cache so webapp reads rarely hit the database.
type RefreshLeaderboardJob struct {
	players player.Repository
	cache   player.LeaderboardCache
	timeout time.Duration
	log     *logger.Logger
}

// NewRefreshLeaderboardJob creates the job.
func NewRefreshLeaderboardJob(players player.Repository, cache player.LeaderboardCache, log *logger.Logger) *RefreshLeaderboardJob {
	if log == nil {
		log = logger.Nop()
	}
	return &RefreshLeaderboardJob{
		players: players,
		cache:   cache,
		timeout: 30 * time.Second,
		log:     log,
	}
}

func (j *RefreshLeaderboardJob) Name() string { return "refresh_leaderboard" }

func (j *RefreshLeaderboardJob) Description() string {
	return "recompute the global leaderboard cache"
}

// Run executes one refresh.
func (j *RefreshLeaderboardJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	entries, err := j.players.Top(ctx, player.LeaderboardLimit)
	if err != nil {
		return fmt.Errorf("refresh_leaderboard: %w", err)
	}
	if err := j.cache.Set(ctx, entries); err != nil {
		return fmt.Errorf("refresh_leaderboard: cache: %w", err)
	}
	j.log.Debug("leaderboard cache refreshed", logger.Int("entries", len(entries)))
	return nil
}
