package player

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// LedgerEntry - запись журнала изменений баланса.
type LedgerEntry struct {
	PlayerID  int64
	Delta     int64
	Reason    string
	CreatedAt time.Time
}

// Ledger reasons.
const (
	ReasonDailyBonus = "daily_bonus"
	ReasonQuickBonus = "quick_bonus"
	ReasonFreeCoins  = "free_coins"
	ReasonAdminGrant = "admin_grant"
)

// ReasonForBonus возвращает причину записи журнала для бонуса.
func ReasonForBonus(kind BonusKind) string {
	switch kind {
	case BonusDaily:
		return ReasonDailyBonus
	case BonusQuick:
		return ReasonQuickBonus
	default:
		return ReasonFreeCoins
	}
}

// Mutation - изменение одного игрока внутри транзакции.
// Player уже заблокирован на запись на время вызова.
type Mutation struct {
	Player  *Player
	Created bool
	Now     time.Time

	ledger  []LedgerEntry
	changed bool
}

// NewMutation создаёт мутацию для игрока. Используется реализациями Repository.
func NewMutation(p *Player, created bool, now time.Time) *Mutation {
	return &Mutation{Player: p, Created: created, Now: now, changed: created}
}

// Record добавляет запись в журнал баланса.
func (m *Mutation) Record(delta int64, reason string) {
	m.ledger = append(m.ledger, LedgerEntry{
		PlayerID:  m.Player.ID,
		Delta:     delta,
		Reason:    reason,
		CreatedAt: m.Now,
	})
	m.changed = true
}

// MarkChanged помечает игрока для сохранения без записи в журнал.
func (m *Mutation) MarkChanged() { m.changed = true }

// Ledger возвращает накопленные записи журнала.
func (m *Mutation) Ledger() []LedgerEntry { return m.ledger }

// Changed сообщает, нужно ли сохранять игрока.
func (m *Mutation) Changed() bool { return m.changed }

// MutateFunc изменяет игрока. Ошибка откатывает всю транзакцию.
type MutateFunc func(m *Mutation) error

// MutateOptions управляет поведением Mutate.
type MutateOptions struct {
	// CreateIfMissing создаёт игрока со стартовыми значениями.
	CreateIfMissing bool
}

// Repository определяет операции хранения игроков.
type Repository interface {
	// GetByID возвращает игрока.
	// Возвращает ErrPlayerNotFound, если игрок не найден.
	GetByID(ctx context.Context, id int64) (*Player, error)

	// Mutate выполняет fn над заблокированной строкой игрока в одной транзакции.
	// Изменения игрока и записи журнала фиксируются вместе или не фиксируются вовсе.
	Mutate(ctx context.Context, id int64, opts MutateOptions, fn MutateFunc) (*Player, error)

	// Top возвращает лучших игроков по уровню и XP.
	Top(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// LeaderboardCache - кэш глобального рейтинга.
type LeaderboardCache interface {
	Get(ctx context.Context) ([]LeaderboardEntry, bool, error)
	Set(ctx context.Context, entries []LeaderboardEntry) error
	Invalidate(ctx context.Context) error
}
