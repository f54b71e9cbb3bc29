package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-telegram/bot/models"

	"github.com/casino-hub/casino-hub/internal/application/command"
	"github.com/casino-hub/casino-hub/internal/domain/player"
	"github.com/casino-hub/casino-hub/internal/domain/shared"
	"github.com/casino-hub/casino-hub/internal/interface/telegram/presenter"
	"github.com/casino-hub/casino-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PLAYER COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// handleStart creates the player, syncs the name and sends the webapp button.
func (b *Bot) handleStart(ctx context.Context, msg *models.Message, _ []string) error {
	res, err := b.deps.SyncProfile.Handle(ctx, command.SyncProfileCommand{
		PlayerID:  msg.From.ID,
		Username:  msg.From.Username,
		FirstName: msg.From.FirstName,
		Source:    command.SourceTelegram,
		Touch:     true,
	})
	if err != nil {
		return b.replyFailure(ctx, msg, err)
	}

	b.log.Info("player started the bot",
		logger.UserID(res.Player.ID),
		logger.Bool("created", res.Created),
		logger.Int64("balance", res.Player.Balance),
	)
	return b.deps.Messenger.SendWebAppButton(ctx, msg.Chat.ID, presenter.Welcome(res.Player), presenter.OpenWebAppButton, b.deps.WebAppURL)
}

func (b *Bot) handleBalance(ctx context.Context, msg *models.Message, _ []string) error {
	p, err := b.deps.TouchPlayer.Handle(ctx, msg.From.ID, msg.From.Username, msg.From.FirstName)
	if err != nil {
		return b.replyFailure(ctx, msg, err)
	}
	return b.reply(ctx, msg, presenter.Balance(p))
}

// handleGetCoins grants free coins once per cooldown period.
func (b *Bot) handleGetCoins(ctx context.Context, msg *models.Message, args []string) error {
	if len(args) > 0 {
		return b.reply(ctx, msg, presenter.GetCoinsUsage)
	}

	res, err := b.deps.ClaimBonus.Handle(ctx, command.ClaimBonusCommand{
		PlayerID: msg.From.ID,
		Kind:     player.BonusFreeCoins,
	})
	var cooldown *player.CooldownError
	switch {
	case errors.As(err, &cooldown):
		return b.reply(ctx, msg, presenter.FreeCoinsCooldown(cooldown.Remaining))
	case err != nil:
		return b.replyFailure(ctx, msg, err)
	}
	return b.reply(ctx, msg, presenter.FreeCoins(res.Rule.Coins, res.Player))
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// handleAddBalance credits the admin's own balance: /add_balance <amount>.
func (b *Bot) handleAddBalance(ctx context.Context, msg *models.Message, args []string) error {
	sender := msg.From.ID
	if !b.deps.GrantBalance.IsAdmin(sender) {
		b.log.Warn("add_balance without admin privileges", logger.UserID(sender))
		return b.reply(ctx, msg, presenter.NoPermission)
	}
	if len(args) != 1 {
		return b.reply(ctx, msg, presenter.AddBalanceUsage)
	}
	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return b.reply(ctx, msg, presenter.AmountNotNumber)
	}
	if amount <= 0 {
		return b.reply(ctx, msg, presenter.AmountNotPositive)
	}

	p, err := b.deps.GrantBalance.Handle(ctx, command.GrantBalanceCommand{ActorID: sender, TargetID: sender, Amount: amount})
	if err != nil {
		return b.replyFailure(ctx, msg, err)
	}
	return b.reply(ctx, msg, presenter.BalanceAdded(amount, p))
}

// handleGiveBalance credits another player: /give_balance <user_id> <amount>.
func (b *Bot) handleGiveBalance(ctx context.Context, msg *models.Message, args []string) error {
	sender := msg.From.ID
	if !b.deps.GrantBalance.AdminConfigured() {
		b.log.Warn("give_balance with ADMIN_ID unset", logger.UserID(sender))
		return b.reply(ctx, msg, presenter.AdminNotConfigured)
	}
	if !b.deps.GrantBalance.IsAdmin(sender) {
		b.log.Warn("give_balance without admin privileges", logger.UserID(sender))
		return b.reply(ctx, msg, presenter.NoPermission)
	}
	if len(args) != 2 {
		return b.reply(ctx, msg, presenter.GiveBalanceUsage)
	}
	target, errTarget := strconv.ParseInt(args[0], 10, 64)
	amount, errAmount := strconv.ParseInt(args[1], 10, 64)
	if errTarget != nil || errAmount != nil {
		return b.reply(ctx, msg, presenter.GiveArgsNotNumbers)
	}
	if amount <= 0 {
		return b.reply(ctx, msg, presenter.AmountNotPositive)
	}

	p, err := b.deps.GrantBalance.Handle(ctx, command.GrantBalanceCommand{ActorID: sender, TargetID: target, Amount: amount})
	switch {
	case shared.IsNotFound(err), errors.Is(err, shared.ErrInvalidID):
		return b.reply(ctx, msg, presenter.PlayerNotFound(target))
	case err != nil:
		return b.replyFailure(ctx, msg, err)
	}

	b.log.Info("admin gave balance", logger.UserID(target), logger.Amount(amount))
	return b.reply(ctx, msg, presenter.BalanceGiven(amount, p))
}
