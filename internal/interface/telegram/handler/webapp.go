package handler

import (
	"context"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/casino-hub/casino-hub/internal/interface/telegram/presenter"
	"github.com/casino-hub/casino-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEB APP DATA
// The frontend forwards its console through sendData with a level prefix.
// ══════════════════════════════════════════════════════════════════════════════

type webAppLevel int

const (
	webAppDebug webAppLevel = iota
	webAppInfo
	webAppWarn
	webAppError
)

type webAppPrefix struct {
	prefix string
	level  webAppLevel
	// echo, when set, formats the reply sent back to the player.
	echo func(string) string
}

// Order matters: JS_VERY_FIRST_LOG must be checked before JS_LOG.
var webAppPrefixes = []webAppPrefix{
	{prefix: "JS_VERY_FIRST_LOG:", level: webAppInfo},
	{prefix: "JS_LOG:", level: webAppInfo},
	{prefix: "JS_DEBUG:", level: webAppDebug},
	{prefix: "JS_WARN:", level: webAppWarn},
	{prefix: "JS_ERROR:", level: webAppError, echo: presenter.WebAppError},
	{prefix: "JS_FATAL_REACT_ERROR:", level: webAppError, echo: presenter.WebAppFatal},
	{prefix: "JS_FATAL_REACT_MOUNT_ERROR:", level: webAppError, echo: presenter.WebAppMountFatal},
}

func (b *Bot) handleWebAppData(ctx context.Context, msg *models.Message) error {
	data := msg.WebAppData.Data
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}
	log := b.log.With(logger.UserID(userID), logger.String("source", "webapp"))

	for _, p := range webAppPrefixes {
		if !strings.HasPrefix(data, p.prefix) {
			continue
		}
		text := strings.TrimSpace(strings.TrimPrefix(data, p.prefix))
		field := logger.String("prefix", strings.TrimSuffix(p.prefix, ":"))
		switch p.level {
		case webAppDebug:
			log.Debug(text, field)
		case webAppInfo:
			log.Info(text, field)
		case webAppWarn:
			log.Warn(text, field)
		case webAppError:
			log.Error(text, field)
		}
		if p.echo == nil {
			return nil
		}
		return b.reply(ctx, msg, p.echo(text))
	}

	log.Info("unhandled webapp data", logger.String("data", data))
	return nil
}
