// Package handler contains the bot's update handlers.
// Each handler follows the pattern: receive update → validate → call application layer → format response.
package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-telegram/bot/models"

	"github.com/casino-hub/casino-hub/internal/application/command"
	"github.com/casino-hub/casino-hub/internal/domain/update"
	"github.com/casino-hub/casino-hub/internal/interface/telegram"
	"github.com/casino-hub/casino-hub/internal/interface/telegram/presenter"
	"github.com/casino-hub/casino-hub/pkg/logger"
)

// Messenger sends replies to Telegram.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendWebAppButton(ctx context.Context, chatID int64, text, buttonText, webAppURL string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Deps holds the application handlers the bot calls.
type Deps struct {
	Messenger    Messenger
	SyncProfile  *command.SyncProfileHandler
	TouchPlayer  *command.TouchPlayerHandler
	ClaimBonus   *command.ClaimBonusHandler
	GrantBalance *command.GrantBalanceHandler
	WebAppURL    string
	BotUsername  string
	Logger       *logger.Logger
}

// commandFunc handles one command. args exclude the command itself.
type commandFunc func(ctx context.Context, msg *models.Message, args []string) error

// Bot dispatches classified updates to handlers.
type Bot struct {
	deps     Deps
	log      *logger.Logger
	commands map[string]commandFunc
}

var _ telegram.Dispatcher = (*Bot)(nil)

// NewBot creates the bot and registers its commands.
func NewBot(deps Deps) *Bot {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	b := &Bot{deps: deps, log: log.With(logger.Component("bot"))}
	b.commands = map[string]commandFunc{
		"start":        b.handleStart,
		"balance":      b.handleBalance,
		"get_coins":    b.handleGetCoins,
		"add_balance":  b.handleAddBalance,
		"give_balance": b.handleGiveBalance,
	}
	return b
}

// Commands lists the registered commands that belong in the menu, sorted.
func (b *Bot) Commands() []models.BotCommand {
	out := make([]models.BotCommand, 0, len(presenter.MenuCommands))
	for name := range b.commands {
		if desc, ok := presenter.MenuCommands[name]; ok {
			out = append(out, models.BotCommand{Command: name, Description: desc})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// Dispatch implements telegram.Dispatcher.
func (b *Bot) Dispatch(ctx context.Context, kind update.Kind, u *models.Update) error {
	switch kind {
	case update.KindCommand:
		return b.handleCommand(ctx, u.Message)
	case update.KindWebAppData:
		return b.handleWebAppData(ctx, u.Message)
	case update.KindCallbackQuery:
		return b.handleCallback(ctx, u.CallbackQuery)
	case update.KindMessage:
		return b.handleMessage(ctx, u.Message)
	default:
		return nil
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *models.Message) error {
	name, args := telegram.ParseCommand(msg, b.deps.BotUsername)
	fn, ok := b.commands[name]
	if !ok {
		return b.reply(ctx, msg, presenter.UnknownCommand)
	}
	if msg.From == nil {
		return nil
	}
	return fn(ctx, msg, args)
}

func (b *Bot) handleCallback(ctx context.Context, cq *models.CallbackQuery) error {
	if err := b.deps.Messenger.AnswerCallback(ctx, cq.ID, ""); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	if cq.Data != presenter.CallbackOpenWebApp {
		return nil
	}
	return b.deps.Messenger.SendWebAppButton(ctx, cq.From.ID, presenter.OpenWebAppPrompt, presenter.OpenWebAppButton, b.deps.WebAppURL)
}

func (b *Bot) handleMessage(ctx context.Context, msg *models.Message) error {
	if msg.From == nil || msg.From.IsBot {
		return nil
	}
	_, err := b.deps.TouchPlayer.Handle(ctx, msg.From.ID, msg.From.Username, msg.From.FirstName)
	return err
}

// reply sends text to the message's chat.
func (b *Bot) reply(ctx context.Context, msg *models.Message, text string) error {
	return b.deps.Messenger.SendText(ctx, msg.Chat.ID, text)
}

// replyFailure tells the player something went wrong and returns err so the
// router logs and counts it.
func (b *Bot) replyFailure(ctx context.Context, msg *models.Message, err error) error {
	if sendErr := b.reply(ctx, msg, presenter.InternalError); sendErr != nil {
		return errors.Join(err, sendErr)
	}
	return err
}
