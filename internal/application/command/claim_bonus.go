// Package command contains write operations (CQRS - Commands).
// Every command mutates exactly one player through player.Repository.Mutate,
// so the balance change and its ledger entry commit together.
package command

import (
	"context"
	"fmt"

	"github.com/casino-hub/casino-hub/internal/domain/player"
	"github.com/casino-hub/casino-hub/internal/domain/shared"
	"github.com/casino-hub/casino-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLAIM BONUS COMMAND
// Начисляет ежедневный, быстрый бонус или бесплатные фантики.
// ══════════════════════════════════════════════════════════════════════════════

// ClaimBonusCommand содержит данные запроса бонуса.
type ClaimBonusCommand struct {
	PlayerID int64
	Kind     player.BonusKind
}

// Validate проверяет команду.
func (c ClaimBonusCommand) Validate() error {
	if c.PlayerID <= 0 {
		return shared.ErrInvalidPlayerID
	}
	if !c.Kind.IsValid() {
		return shared.ErrUnknownBonusKind
	}
	return nil
}

// ClaimBonusResult - результат начисления.
type ClaimBonusResult struct {
	Player    *player.Player
	Rule      player.BonusRule
	LeveledUp bool
}

// ClaimBonusHandler обрабатывает ClaimBonusCommand.
type ClaimBonusHandler struct {
	players player.Repository
	cache   player.LeaderboardCache
	log     *logger.Logger
}

// NewClaimBonusHandler создаёт обработчик. cache может быть nil.
func NewClaimBonusHandler(players player.Repository, cache player.LeaderboardCache, log *logger.Logger) *ClaimBonusHandler {
	return &ClaimBonusHandler{
		players: players,
		cache:   cache,
		log:     orNop(log),
	}
}

// Handle выполняет команду. При активном ожидании возвращает *player.CooldownError.
func (h *ClaimBonusHandler) Handle(ctx context.Context, cmd ClaimBonusCommand) (*ClaimBonusResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("claim_bonus: %w", err)
	}

	var (
		rule      player.BonusRule
		leveledUp bool
	)
	p, err := h.players.Mutate(ctx, cmd.PlayerID, player.MutateOptions{CreateIfMissing: true}, func(m *player.Mutation) error {
		levelBefore := m.Player.Level
		r, err := m.Player.ClaimBonus(cmd.Kind, m.Now)
		if err != nil {
			return err
		}
		rule = r
		leveledUp = m.Player.Level > levelBefore
		m.Record(r.Coins, player.ReasonForBonus(cmd.Kind))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim_bonus: %w", err)
	}

	invalidateLeaderboard(ctx, h.cache, h.log)

	h.log.Info("bonus claimed",
		logger.UserID(p.ID),
		logger.String("bonus", string(cmd.Kind)),
		logger.Amount(rule.Coins),
		logger.Bool("leveled_up", leveledUp),
	)

	return &ClaimBonusResult{Player: p, Rule: rule, LeveledUp: leveledUp}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// invalidateLeaderboard сбрасывает кэш рейтинга после фиксации транзакции.
// Ошибка кэша не отменяет уже зафиксированное изменение.
func invalidateLeaderboard(ctx context.Context, cache player.LeaderboardCache, log *logger.Logger) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx); err != nil {
		log.Warn("leaderboard cache invalidation failed", logger.Err(err))
	}
}

func orNop(log *logger.Logger) *logger.Logger {
	if log == nil {
		return logger.Nop()
	}
	return log.With(logger.Component("command"))
}
