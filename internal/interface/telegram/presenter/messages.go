// Package presenter formats bot replies. All user-facing text lives here.
package presenter

import (
	"fmt"
	"time"

	"github.com/casino-hub/casino-hub/internal/domain/player"
	"github.com/casino-hub/casino-hub/pkg/timeutil"
)

// OpenWebAppButton is the label of the inline button that opens the casino.
const OpenWebAppButton = "🎰 Відкрити Слот-Казино 🎰"

// CallbackOpenWebApp is the callback data that re-sends the webapp button.
const CallbackOpenWebApp = "open_webapp"

// Static replies.
const (
	NoPermission       = "У вас немає дозволу на використання цієї команди."
	AdminNotConfigured = "Помилка: ADMIN_ID не налаштовано на сервері. Ця команда недоступна."
	AddBalanceUsage    = "Будь ласка, вкажіть суму для додавання. Використання: /add_balance <сума>"
	GiveBalanceUsage   = "Будь ласка, вкажіть ID гравця та суму. Використання: /give_balance <user_id> <amount>"
	GetCoinsUsage      = "Ця команда не приймає аргументів. Використання: /get_coins"
	AmountNotPositive  = "Сума має бути позитивним числом."
	AmountNotNumber    = "Невірна сума. Будь ласка, введіть число."
	GiveArgsNotNumbers = "Невірна ID гравця або сума. Будь ласка, введіть числові значення."
	InternalError      = "⚠️ Сталася помилка. Спробуйте пізніше."
	UnknownCommand     = "Невідома команда. Доступні команди: /start, /balance, /get_coins"
	OpenWebAppPrompt   = "Натисніть кнопку нижче, щоб почати грати!"
)

// MenuCommands describes the public commands shown in the client's menu.
// Admin commands stay out of it.
var MenuCommands = map[string]string{
	"start":     "Відкрити Слот-Казино",
	"balance":   "Показати баланс і рівень",
	"get_coins": "Отримати щоденний бонус",
}

// Welcome is the /start reply.
func Welcome(p *player.Player) string {
	return fmt.Sprintf(
		"Привіт, %s!\n"+
			"Ласкаво просимо до віртуального Слот-Казино!\n"+
			"Ваш поточний баланс: %d фантиків.\n"+
			"Натисніть кнопку нижче, щоб почати грати!",
		p.Username, p.Balance,
	)
}

// Balance is the /balance reply.
func Balance(p *player.Player) string {
	return fmt.Sprintf(
		"💰 Ваш баланс: %d фантиків.\nРівень: %d (XP: %d/%d)",
		p.Balance, p.Level, p.XP, p.NextLevelXP(),
	)
}

// BalanceAdded confirms /add_balance.
func BalanceAdded(amount int64, p *player.Player) string {
	return fmt.Sprintf("🎉 %d фантиків успішно додано! Ваш новий баланс: %d фантиків. 🎉", amount, p.Balance)
}

// BalanceGiven confirms /give_balance.
func BalanceGiven(amount int64, p *player.Player) string {
	return fmt.Sprintf(
		"🎉 %d фантиків успішно додано гравцю %s (ID: %d)! Його новий баланс: %d фантиків. 🎉",
		amount, p.Username, p.ID, p.Balance,
	)
}

// PlayerNotFound is the /give_balance reply for an unknown target.
func PlayerNotFound(id int64) string {
	return fmt.Sprintf("Користувача з ID %d не знайдено або сталася помилка при отриманні його даних.", id)
}

// FreeCoins confirms /get_coins.
func FreeCoins(amount int64, p *player.Player) string {
	return fmt.Sprintf(
		"🎉 Вітаємо! Ви отримали %d безкоштовних фантиків!\nВаш новий баланс: %d фантиків. 🎉",
		amount, p.Balance,
	)
}

// FreeCoinsCooldown is the /get_coins reply while on cooldown.
func FreeCoinsCooldown(remaining time.Duration) string {
	return "💰 Ви вже отримували фантики нещодавно. Спробуйте знову через " + timeutil.FormatHoursMinutes(remaining) + "."
}

// BonusCooldown is the API message for an active daily or quick bonus cooldown.
func BonusCooldown(kind player.BonusKind, remaining time.Duration) string {
	if kind == player.BonusQuick {
		return "Будь ласка, зачекайте " + timeutil.FormatMS(remaining) + " до наступного швидкого бонусу."
	}
	return "Будь ласка, зачекайте " + timeutil.FormatHMS(remaining) + " до наступного бонусу."
}

// BonusClaimed is the API message for a granted bonus.
func BonusClaimed(kind player.BonusKind) string {
	if kind == player.BonusQuick {
		return "Швидкий бонус успішно отримано!"
	}
	return "Бонус успішно отримано!"
}

// ─────────────────────────────────────────────────────────────────────────────
// WebApp diagnostics
// ─────────────────────────────────────────────────────────────────────────────

// WebAppError echoes a frontend error back to the player.
func WebAppError(msg string) string {
	return "❌ WebApp Error: " + msg
}

// WebAppFatal echoes a fatal render error.
func WebAppFatal(msg string) string {
	return "❌ Критична помилка WebApp: " + msg + " Будь ласка, спробуйте перезапустити гру."
}

// WebAppMountFatal echoes a fatal startup error.
func WebAppMountFatal(msg string) string {
	return "❌ Критична помилка WebApp (запуск): " + msg + " Зверніться до адміністратора."
}
