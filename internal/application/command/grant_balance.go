package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/casino-hub/casino-hub/internal/domain/player"
	"github.com/casino-hub/casino-hub/internal/domain/shared"
	"github.com/casino-hub/casino-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRANT BALANCE COMMAND
// Административное начисление фантиков себе (/add_balance) или другому
// игроку (/give_balance).
// ══════════════════════════════════════════════════════════════════════════════

// ErrAdminNotConfigured возвращается, когда ADMIN_ID не задан.
var ErrAdminNotConfigured = shared.NewDomainError("player", "Grant", shared.ErrForbidden, "admin is not configured")

// GrantBalanceCommand содержит данные начисления.
type GrantBalanceCommand struct {
	ActorID  int64
	TargetID int64
	Amount   int64
}

// Validate проверяет команду.
func (c GrantBalanceCommand) Validate() error {
	if c.ActorID <= 0 || c.TargetID <= 0 {
		return shared.ErrInvalidPlayerID
	}
	if c.Amount <= 0 {
		return shared.ErrInvalidAmount
	}
	return nil
}

// GrantBalanceHandler обрабатывает GrantBalanceCommand.
type GrantBalanceHandler struct {
	players player.Repository
	cache   player.LeaderboardCache
	adminID int64
	log     *logger.Logger
}

// NewGrantBalanceHandler создаёт обработчик. adminID 0 отключает команду.
func NewGrantBalanceHandler(players player.Repository, cache player.LeaderboardCache, adminID int64, log *logger.Logger) *GrantBalanceHandler {
	return &GrantBalanceHandler{
		players: players,
		cache:   cache,
		adminID: adminID,
		log:     orNop(log),
	}
}

// IsAdmin сообщает, является ли пользователь администратором.
func (h *GrantBalanceHandler) IsAdmin(userID int64) bool {
	return h.adminID != 0 && userID == h.adminID
}

// AdminConfigured сообщает, задан ли администратор.
func (h *GrantBalanceHandler) AdminConfigured() bool {
	return h.adminID != 0
}

// Handle выполняет начисление. Начисление себе создаёт игрока при
// необходимости; другой игрок должен уже существовать.
func (h *GrantBalanceHandler) Handle(ctx context.Context, cmd GrantBalanceCommand) (*player.Player, error) {
	if h.adminID == 0 {
		return nil, fmt.Errorf("grant_balance: %w", ErrAdminNotConfigured)
	}
	if cmd.ActorID != h.adminID {
		return nil, fmt.Errorf("grant_balance: %w", shared.ErrNotAdmin)
	}
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("grant_balance: %w", err)
	}

	opts := player.MutateOptions{CreateIfMissing: cmd.TargetID == cmd.ActorID}
	p, err := h.players.Mutate(ctx, cmd.TargetID, opts, func(m *player.Mutation) error {
		if err := m.Player.Credit(cmd.Amount); err != nil {
			return err
		}
		m.Record(cmd.Amount, player.ReasonAdminGrant)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("grant_balance: %w", err)
	}

	invalidateLeaderboard(ctx, h.cache, h.log)

	h.log.Info("balance granted",
		logger.Int64("admin_id", cmd.ActorID),
		logger.UserID(cmd.TargetID),
		logger.Amount(cmd.Amount),
		logger.Int64("balance", p.Balance),
	)
	return p, nil
}

// IsNotAdmin сообщает, отклонена ли команда из-за прав доступа.
func IsNotAdmin(err error) bool {
	return errors.Is(err, shared.ErrForbidden)
}
