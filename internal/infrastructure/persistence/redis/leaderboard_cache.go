package redis

import (
	"context"
	"errors"
	"time"

	"github.com/casino-hub/casino-hub/internal/domain/player"
)

// TTLLeaderboardCache is the default TTL for the cached leaderboard.
const TTLLeaderboardCache = 30 * time.Second

// globalLeaderboard is the name of the only leaderboard.
const globalLeaderboard = "global"

// LeaderboardCache stores the rendered global leaderboard as one JSON value.
// Writes go to Postgres first; the cache is invalidated after commit and
// refilled on the next read.
type LeaderboardCache struct {
	cache *Cache
	ttl   time.Duration
}

var _ player.LeaderboardCache = (*LeaderboardCache)(nil)

// NewLeaderboardCache creates a new LeaderboardCache.
func NewLeaderboardCache(cache *Cache, ttl time.Duration) *LeaderboardCache {
	if ttl <= 0 {
		ttl = TTLLeaderboardCache
	}
	return &LeaderboardCache{cache: cache, ttl: ttl}
}

// Get returns the cached leaderboard. The bool is false on a miss.
func (l *LeaderboardCache) Get(ctx context.Context) ([]player.LeaderboardEntry, bool, error) {
	var entries []player.LeaderboardEntry
	err := l.cache.Get(ctx, LeaderboardKey(globalLeaderboard), &entries)
	if errors.Is(err, ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

// Set stores the leaderboard.
func (l *LeaderboardCache) Set(ctx context.Context, entries []player.LeaderboardEntry) error {
	if entries == nil {
		entries = []player.LeaderboardEntry{}
	}
	return l.cache.Set(ctx, LeaderboardKey(globalLeaderboard), entries, l.ttl)
}

// Invalidate drops the cached leaderboard.
func (l *LeaderboardCache) Invalidate(ctx context.Context) error {
	return l.cache.Delete(ctx, LeaderboardKey(globalLeaderboard))
}
