package command

import (
	"context"
	"fmt"

	"github.com/casino-hub/casino-hub/internal/domain/player"
	"github.com/casino-hub/casino-hub/internal/domain/shared"
	"github.com/casino-hub/casino-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC PROFILE / TOUCH PLAYER COMMANDS
// Создают игрока при первом контакте и синхронизируют имя.
// ══════════════════════════════════════════════════════════════════════════════

// ProfileSource определяет правило синхронизации имени.
type ProfileSource string

const (
	// SourceTelegram - имя из Telegram: username, иначе first_name для безымянных.
	SourceTelegram ProfileSource = "telegram"
	// SourceWebApp - имя, присланное фронтендом.
	SourceWebApp ProfileSource = "webapp"
)

// SyncProfileCommand содержит данные профиля.
type SyncProfileCommand struct {
	PlayerID  int64
	Username  string
	FirstName string
	Source    ProfileSource
	// Touch обновляет last_seen_at.
	Touch bool
}

// Validate проверяет команду.
func (c SyncProfileCommand) Validate() error {
	if c.PlayerID <= 0 {
		return shared.ErrInvalidPlayerID
	}
	switch c.Source {
	case SourceTelegram, SourceWebApp:
		return nil
	default:
		return fmt.Errorf("%w: unknown profile source %q", shared.ErrInvalidInput, c.Source)
	}
}

// SyncProfileResult - результат синхронизации.
type SyncProfileResult struct {
	Player  *player.Player
	Created bool
	Renamed bool
}

// SyncProfileHandler обрабатывает SyncProfileCommand.
type SyncProfileHandler struct {
	players player.Repository
	cache   player.LeaderboardCache
	log     *logger.Logger
}

// NewSyncProfileHandler создаёт обработчик.
func NewSyncProfileHandler(players player.Repository, cache player.LeaderboardCache, log *logger.Logger) *SyncProfileHandler {
	return &SyncProfileHandler{players: players, cache: cache, log: orNop(log)}
}

// Handle создаёт игрока, если его нет, и применяет правило имени источника.
func (h *SyncProfileHandler) Handle(ctx context.Context, cmd SyncProfileCommand) (*SyncProfileResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("sync_profile: %w", err)
	}

	var created, renamed bool
	p, err := h.players.Mutate(ctx, cmd.PlayerID, player.MutateOptions{CreateIfMissing: true}, func(m *player.Mutation) error {
		created = m.Created
		switch cmd.Source {
		case SourceTelegram:
			renamed = m.Player.SyncFromTelegram(cmd.Username, cmd.FirstName)
		case SourceWebApp:
			renamed = m.Player.SyncUsername(cmd.Username)
		}
		if cmd.Touch {
			m.Player.Touch(m.Now)
		}
		if renamed || cmd.Touch {
			m.MarkChanged()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sync_profile: %w", err)
	}

	if created || renamed {
		invalidateLeaderboard(ctx, h.cache, h.log)
	}
	if created {
		h.log.Info("player created", logger.UserID(p.ID), logger.String("source", string(cmd.Source)))
	}

	return &SyncProfileResult{Player: p, Created: created, Renamed: renamed}, nil
}

// TouchPlayerHandler отмечает активность игрока из обычных сообщений.
type TouchPlayerHandler struct {
	sync *SyncProfileHandler
}

// NewTouchPlayerHandler создаёт обработчик поверх SyncProfileHandler.
func NewTouchPlayerHandler(sync *SyncProfileHandler) *TouchPlayerHandler {
	return &TouchPlayerHandler{sync: sync}
}

// Handle создаёт игрока при необходимости, синхронизирует имя из Telegram
// и обновляет last_seen_at.
func (h *TouchPlayerHandler) Handle(ctx context.Context, playerID int64, username, firstName string) (*player.Player, error) {
	res, err := h.sync.Handle(ctx, SyncProfileCommand{
		PlayerID:  playerID,
		Username:  username,
		FirstName: firstName,
		Source:    SourceTelegram,
		Touch:     true,
	})
	if err != nil {
		return nil, err
	}
	return res.Player, nil
}
