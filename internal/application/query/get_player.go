// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/casino-hub/casino-hub/internal/domain/player"
	"github.com/casino-hub/casino-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PLAYER QUERY
// Возвращает состояние игрока для веб-приложения.
// ══════════════════════════════════════════════════════════════════════════════

// PlayerDTO - представление игрока для API.
type PlayerDTO struct {
	UserID              int64      `json:"user_id"`
	Username            string     `json:"username"`
	Balance             int64      `json:"balance"`
	XP                  int        `json:"xp"`
	Level               int        `json:"level"`
	NextLevelXP         int        `json:"next_level_xp"`
	LastDailyBonusClaim *time.Time `json:"last_daily_bonus_claim"`
	LastQuickBonusClaim *time.Time `json:"last_quick_bonus_claim"`
}

// NewPlayerDTO строит DTO из сущности.
func NewPlayerDTO(p *player.Player) PlayerDTO {
	return PlayerDTO{
		UserID:              p.ID,
		Username:            p.Username,
		Balance:             p.Balance,
		XP:                  p.XP,
		Level:               p.Level,
		NextLevelXP:         p.NextLevelXP(),
		LastDailyBonusClaim: p.LastDailyBonusClaim,
		LastQuickBonusClaim: p.LastQuickBonusClaim,
	}
}

// GetPlayerHandler обрабатывает запрос игрока.
type GetPlayerHandler struct {
	players player.Repository
}

// NewGetPlayerHandler создаёт обработчик.
func NewGetPlayerHandler(players player.Repository) *GetPlayerHandler {
	return &GetPlayerHandler{players: players}
}

// Handle возвращает игрока или ошибку, совместимую с shared.ErrNotFound.
func (h *GetPlayerHandler) Handle(ctx context.Context, playerID int64) (*PlayerDTO, error) {
	if playerID <= 0 {
		return nil, fmt.Errorf("get_player: %w", shared.ErrInvalidPlayerID)
	}
	p, err := h.players.GetByID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("get_player: %w", err)
	}
	dto := NewPlayerDTO(p)
	return &dto, nil
}
