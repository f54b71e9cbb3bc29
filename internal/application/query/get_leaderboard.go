package query

import (
	"context"
	"fmt"

	"github.com/casino-hub/casino-hub/internal/domain/player"
	"github.com/casino-hub/casino-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Глобальный рейтинг: топ-100 по уровню и XP, cache-aside через Redis.
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardGlobal - единственный поддерживаемый идентификатор рейтинга.
const LeaderboardGlobal = "global"

// LeaderboardResult - результат запроса рейтинга.
type LeaderboardResult struct {
	Entries []player.LeaderboardEntry `json:"entries"`
	Cached  bool                      `json:"cached"`
}

// GetLeaderboardHandler обрабатывает запрос рейтинга.
type GetLeaderboardHandler struct {
	players player.Repository
	cache   player.LeaderboardCache
	log     *logger.Logger
}

// NewGetLeaderboardHandler создаёт обработчик. cache может быть nil.
func NewGetLeaderboardHandler(players player.Repository, cache player.LeaderboardCache, log *logger.Logger) *GetLeaderboardHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetLeaderboardHandler{players: players, cache: cache, log: log.With(logger.Component("query"))}
}

// Handle возвращает рейтинг. Ошибки кэша не мешают чтению из базы.
func (h *GetLeaderboardHandler) Handle(ctx context.Context) (*LeaderboardResult, error) {
	if h.cache != nil {
		entries, ok, err := h.cache.Get(ctx)
		switch {
		case err != nil:
			h.log.Warn("leaderboard cache read failed", logger.Err(err))
		case ok:
			return &LeaderboardResult{Entries: entries, Cached: true}, nil
		}
	}

	entries, err := h.players.Top(ctx, player.LeaderboardLimit)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: %w", err)
	}
	if entries == nil {
		entries = []player.LeaderboardEntry{}
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, entries); err != nil {
			h.log.Warn("leaderboard cache write failed", logger.Err(err))
		}
	}
	return &LeaderboardResult{Entries: entries}, nil
}
