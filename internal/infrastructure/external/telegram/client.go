// Package telegram wraps the Telegram Bot API client for outbound calls:
// replies, callback answers and webhook registration.
// Inbound updates arrive through the webhook router, never through polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/casino-hub/casino-hub/internal/domain/shared"
	"github.com/casino-hub/casino-hub/pkg/circuitbreaker"
	"github.com/casino-hub/casino-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Telegram client.
type ClientConfig struct {
	// Token is the Telegram Bot API token.
	Token string

	// ServerURL overrides https://api.telegram.org (local Bot API server, tests).
	ServerURL string

	// Timeout bounds each HTTP request to the Bot API.
	Timeout time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:   token,
		Timeout: 10 * time.Second,
	}
}

// AllowedUpdates lists the update types the webhook subscribes to.
var AllowedUpdates = []string{"message", "callback_query"}

// ErrSend wraps failed Bot API calls.
var ErrSend = fmt.Errorf("telegram: %w", shared.ErrExternalService)

// API is the subset of *bot.Bot the client calls.
type API interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	GetWebhookInfo(ctx context.Context) (*models.WebhookInfo, error)
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error)
	DeleteWebhook(ctx context.Context, params *bot.DeleteWebhookParams) (bool, error)
	SetMyCommands(ctx context.Context, params *bot.SetMyCommandsParams) (bool, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client sends messages through the Bot API behind a circuit breaker.
type Client struct {
	api     API
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

// NewClient builds a client over go-telegram/bot. getMe is skipped so that
// startup does not depend on the Bot API being reachable.
func NewClient(cfg ClientConfig, log *logger.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig(cfg.Token).Timeout
	}

	opts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(cfg.Timeout, &http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.ServerURL != "" {
		opts = append(opts, bot.WithServerURL(cfg.ServerURL))
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return NewClientWithAPI(b, log), nil
}

// NewClientWithAPI wraps an existing API implementation.
func NewClientWithAPI(api API, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("telegram"))

	onStateChange := func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}

	return &Client{
		api:     api,
		breaker: circuitbreaker.New(circuitbreaker.TelegramConfig(IsFailure, onStateChange)),
		log:     log,
	}
}

// IsFailure reports whether err says something about the Bot API's health.
// Blocked chats and rejected payloads are per-chat problems, and a revoked
// token is a configuration problem that retrying cannot fix.
func IsFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, bot.ErrorForbidden) &&
		!errors.Is(err, bot.ErrorBadRequest) &&
		!errors.Is(err, bot.ErrorUnauthorized)
}

// IsBlocked reports whether the user blocked the bot or left the chat.
func IsBlocked(err error) bool {
	return errors.Is(err, bot.ErrorForbidden)
}

// Breaker exposes breaker state for metrics.
func (c *Client) Breaker() circuitbreaker.Snapshot {
	return c.breaker.Snapshot()
}

// call runs fn through the breaker and wraps any error.
func (c *Client) call(ctx context.Context, method string, fn func(context.Context) error) error {
	err := c.breaker.Execute(ctx, fn)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("telegram: %s: %w", method, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrSend, method, err)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGES
// ══════════════════════════════════════════════════════════════════════════════

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	return c.send(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
}

// SendWebAppButton sends text with a single inline button that opens the webapp.
func (c *Client) SendWebAppButton(ctx context.Context, chatID int64, text, buttonText, webAppURL string) error {
	return c.send(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: WebAppKeyboard(buttonText, webAppURL),
	})
}

func (c *Client) send(ctx context.Context, params *bot.SendMessageParams) error {
	err := c.call(ctx, "sendMessage", func(ctx context.Context) error {
		_, err := c.api.SendMessage(ctx, params)
		return err
	})
	if IsBlocked(err) {
		c.log.Info("chat unavailable", logger.Any("chat_id", params.ChatID), logger.Err(err))
	}
	return err
}

// AnswerCallback acknowledges a callback query so the client stops its spinner.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return c.call(ctx, "answerCallbackQuery", func(ctx context.Context) error {
		_, err := c.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: callbackID,
			Text:            text,
		})
		return err
	})
}

// WebAppKeyboard builds a one-button inline keyboard opening url as a web app.
func WebAppKeyboard(text, url string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: text, WebApp: &models.WebAppInfo{URL: url}}},
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// EnsureWebhook registers url unless it is already the active webhook.
// Pending updates are kept so nothing queued during a restart is lost.
// Returns true when setWebhook was called.
func (c *Client) EnsureWebhook(ctx context.Context, url, secretToken string) (bool, error) {
	var current string
	err := c.call(ctx, "getWebhookInfo", func(ctx context.Context) error {
		info, err := c.api.GetWebhookInfo(ctx)
		if err != nil {
			return err
		}
		if info != nil {
			current = info.URL
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if current == url {
		c.log.Info("webhook already registered", logger.String("url", redact(url)))
		return false, nil
	}

	err = c.call(ctx, "setWebhook", func(ctx context.Context) error {
		_, err := c.api.SetWebhook(ctx, &bot.SetWebhookParams{
			URL:                url,
			SecretToken:        secretToken,
			AllowedUpdates:     AllowedUpdates,
			DropPendingUpdates: false,
		})
		return err
	})
	if err != nil {
		return false, err
	}

	c.log.Info("webhook registered",
		logger.String("url", redact(url)),
		logger.Bool("replaced", current != ""),
	)
	return true, nil
}

// DeleteWebhook removes the webhook and keeps pending updates queued.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", func(ctx context.Context) error {
		_, err := c.api.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: false})
		return err
	})
}

// SetCommands replaces the command menu shown by Telegram clients.
func (c *Client) SetCommands(ctx context.Context, commands []models.BotCommand) error {
	err := c.call(ctx, "setMyCommands", func(ctx context.Context) error {
		_, err := c.api.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: commands})
		return err
	})
	if err == nil {
		c.log.Info("command menu updated", logger.Int("commands", len(commands)))
	}
	return err
}

// redact hides the token-derived path segment in logs.
func redact(url string) string {
	const keep = 12
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			seg := url[i+1:]
			if len(seg) > keep {
				return url[:i+1] + seg[:4] + "…"
			}
			return url
		}
	}
	return url
}
