package player

import (
	"fmt"
	"time"

	"github.com/casino-hub/casino-hub/internal/domain/shared"
)

// BonusKind определяет тип периодического бонуса.
type BonusKind string

const (
	// BonusDaily - ежедневный бонус веб-приложения.
	BonusDaily BonusKind = "daily"
	// BonusQuick - быстрый бонус раз в 15 минут.
	BonusQuick BonusKind = "quick"
	// BonusFreeCoins - бесплатные монеты по команде /get_coins.
	BonusFreeCoins BonusKind = "free_coins"
)

// IsValid проверяет, что тип бонуса известен.
func (k BonusKind) IsValid() bool {
	_, ok := bonusRules[k]
	return ok
}

// BonusRule описывает награду и период ожидания бонуса.
type BonusRule struct {
	Kind     BonusKind
	Coins    int64
	XP       int
	Cooldown time.Duration
}

var bonusRules = map[BonusKind]BonusRule{
	BonusDaily:     {Kind: BonusDaily, Coins: 300, XP: 20, Cooldown: 24 * time.Hour},
	BonusQuick:     {Kind: BonusQuick, Coins: 100, XP: 5, Cooldown: 15 * time.Minute},
	BonusFreeCoins: {Kind: BonusFreeCoins, Coins: 500, XP: 0, Cooldown: 24 * time.Hour},
}

// RuleFor возвращает правило бонуса.
func RuleFor(kind BonusKind) (BonusRule, error) {
	rule, ok := bonusRules[kind]
	if !ok {
		return BonusRule{}, shared.ErrUnknownBonusKind
	}
	return rule, nil
}

// CooldownError сообщает, что бонус ещё недоступен.
type CooldownError struct {
	Kind      BonusKind
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("bonus %s on cooldown for %s", e.Kind, e.Remaining.Round(time.Second))
}

// Is позволяет проверять errors.Is(err, shared.ErrCooldown).
func (e *CooldownError) Is(target error) bool {
	return target == shared.ErrCooldown
}

// RetryAfterSeconds округляет оставшееся время вверх до секунд.
func (e *CooldownError) RetryAfterSeconds() int64 {
	secs := int64(e.Remaining / time.Second)
	if e.Remaining%time.Second != 0 {
		secs++
	}
	return secs
}

// lastClaim возвращает указатель на поле отметки для типа бонуса.
func (p *Player) lastClaim(kind BonusKind) **time.Time {
	switch kind {
	case BonusDaily:
		return &p.LastDailyBonusClaim
	case BonusQuick:
		return &p.LastQuickBonusClaim
	default:
		return &p.LastFreeCoinsClaim
	}
}

// BonusAvailableIn возвращает оставшееся время ожидания (0 - доступен сейчас).
func (p *Player) BonusAvailableIn(kind BonusKind, now time.Time) (time.Duration, error) {
	rule, err := RuleFor(kind)
	if err != nil {
		return 0, err
	}
	last := *p.lastClaim(kind)
	if last == nil {
		return 0, nil
	}
	remaining := last.Add(rule.Cooldown).Sub(now)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// ClaimBonus начисляет бонус, если период ожидания истёк.
// При активном ожидании возвращает *CooldownError и не меняет игрока.
func (p *Player) ClaimBonus(kind BonusKind, now time.Time) (BonusRule, error) {
	rule, err := RuleFor(kind)
	if err != nil {
		return BonusRule{}, err
	}

	remaining, err := p.BonusAvailableIn(kind, now)
	if err != nil {
		return BonusRule{}, err
	}
	if remaining > 0 {
		return BonusRule{}, &CooldownError{Kind: kind, Remaining: remaining}
	}

	if err := p.Credit(rule.Coins); err != nil {
		return BonusRule{}, err
	}
	p.AddXP(rule.XP)

	claimedAt := now
	*p.lastClaim(kind) = &claimedAt
	p.UpdatedAt = now
	return rule, nil
}
