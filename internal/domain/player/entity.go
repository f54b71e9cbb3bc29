// Package player содержит доменную модель игрока казино.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package player

import (
	"fmt"
	"strings"
	"time"

	"github.com/casino-hub/casino-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultUsername - имя нового игрока, пока оно не синхронизировано.
	DefaultUsername = "Unnamed Player"

	// InitialBalance - стартовый баланс нового игрока.
	InitialBalance int64 = 10000

	// MaxUsernameLength ограничивает длину имени в лидерборде.
	MaxUsernameLength = 64
)

// levelThresholds[i] - минимальный XP для уровня i+1.
var levelThresholds = [...]int{0, 100, 300, 600, 1000, 1500, 2200, 3000, 4000, 5500, 7500, 10000}

// MaxLevel - наивысший достижимый уровень.
const MaxLevel = len(levelThresholds)

// LevelForXP вычисляет уровень по количеству XP.
func LevelForXP(xp int) int {
	for i, threshold := range levelThresholds {
		if xp < threshold {
			if i == 0 {
				return 1
			}
			return i
		}
	}
	return MaxLevel
}

// NextLevelXP возвращает порог XP следующего уровня.
// На максимальном уровне возвращается последний порог.
func NextLevelXP(level int) int {
	if level < 1 {
		return levelThresholds[1]
	}
	if level >= MaxLevel {
		return levelThresholds[MaxLevel-1]
	}
	return levelThresholds[level]
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: PLAYER
// ══════════════════════════════════════════════════════════════════════════════

// Player - игрок, идентифицируется Telegram user id.
type Player struct {
	// ID - Telegram user id.
	ID int64

	Username string
	Balance  int64
	XP       int
	Level    int

	// Отметки последних получений бонусов (nil - ни разу).
	LastFreeCoinsClaim  *time.Time
	LastDailyBonusClaim *time.Time
	LastQuickBonusClaim *time.Time

	LastSeenAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// New создаёт нового игрока со стартовыми значениями.
func New(id int64, now time.Time) (*Player, error) {
	if id <= 0 {
		return nil, shared.ErrInvalidPlayerID
	}
	return &Player{
		ID:        id,
		Username:  DefaultUsername,
		Balance:   InitialBalance,
		Level:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HasDefaultUsername возвращает true, если имя ещё не синхронизировано.
func (p *Player) HasDefaultUsername() bool {
	return p.Username == "" || p.Username == DefaultUsername
}

// NextLevelXP возвращает порог XP следующего уровня игрока.
func (p *Player) NextLevelXP() int {
	return NextLevelXP(p.Level)
}

// Credit начисляет монеты.
func (p *Player) Credit(amount int64) error {
	if amount <= 0 {
		return shared.ErrInvalidAmount
	}
	p.Balance += amount
	return nil
}

// Debit списывает монеты, не допуская отрицательного баланса.
func (p *Player) Debit(amount int64) error {
	if amount <= 0 {
		return shared.ErrInvalidAmount
	}
	if p.Balance < amount {
		return shared.ErrInsufficientBalance
	}
	p.Balance -= amount
	return nil
}

// AddXP добавляет опыт и пересчитывает уровень.
// Возвращает true, если уровень вырос.
func (p *Player) AddXP(xp int) bool {
	if xp <= 0 {
		return false
	}
	before := p.Level
	p.XP += xp
	p.Level = LevelForXP(p.XP)
	return p.Level > before
}

// Touch отмечает активность игрока.
func (p *Player) Touch(now time.Time) {
	p.LastSeenAt = &now
	p.UpdatedAt = now
}

// ─────────────────────────────────────────────────────────────────────────────
// Username sync
// ─────────────────────────────────────────────────────────────────────────────

// SyncUsername применяет имя, пришедшее из веб-приложения.
// Имя заменяется, если оно отличается и не является именем по умолчанию,
// либо если сохранённое имя всё ещё по умолчанию. Возвращает true при изменении.
func (p *Player) SyncUsername(candidate string) bool {
	candidate = cleanUsername(candidate)
	if candidate == "" || candidate == p.Username {
		return false
	}
	if candidate != DefaultUsername || p.HasDefaultUsername() {
		p.Username = candidate
		return true
	}
	return false
}

// SyncFromTelegram применяет профиль из Telegram (команда /start):
// username имеет приоритет, first name используется только пока имя по умолчанию.
func (p *Player) SyncFromTelegram(username, firstName string) bool {
	username = cleanUsername(username)
	if username != "" {
		if username == p.Username {
			return false
		}
		p.Username = username
		return true
	}

	firstName = cleanUsername(firstName)
	if firstName != "" && p.HasDefaultUsername() && firstName != p.Username {
		p.Username = firstName
		return true
	}
	return false
}

func cleanUsername(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > MaxUsernameLength {
		s = string(r[:MaxUsernameLength])
	}
	return s
}

// String возвращает краткое описание игрока для логов.
func (p *Player) String() string {
	return fmt.Sprintf("player(%d, %q, balance=%d, lvl=%d)", p.ID, p.Username, p.Balance, p.Level)
}

// ══════════════════════════════════════════════════════════════════════════════
// READ MODEL
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardEntry - строка глобального рейтинга.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
	XP       int    `json:"xp"`
	Level    int    `json:"level"`
}

// LeaderboardLimit - размер глобального рейтинга.
const LeaderboardLimit = 100
