package telegram

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/casino-hub/casino-hub/internal/domain/shared"
	"github.com/casino-hub/casino-hub/internal/domain/update"
)

// ParseUpdate decodes a webhook body. The body must be a JSON object with a
// positive integer update_id.
func ParseUpdate(body []byte) (*models.Update, error) {
	var probe struct {
		UpdateID *int64 `json:"update_id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrMalformedUpdate, err)
	}
	if probe.UpdateID == nil || !update.ID(*probe.UpdateID).IsValid() {
		return nil, shared.ErrMissingUpdateID
	}

	var u models.Update
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrMalformedUpdate, err)
	}
	return &u, nil
}

// Classify picks the single handler kind for an update. Commands addressed
// to another bot (/start@OtherBot) in a group are plain messages.
func Classify(u *models.Update, botUsername string) update.Kind {
	switch {
	case u == nil:
		return update.KindUnknown
	case u.CallbackQuery != nil:
		return update.KindCallbackQuery
	case u.Message != nil:
		m := u.Message
		if m.WebAppData != nil {
			return update.KindWebAppData
		}
		if name, _ := ParseCommand(m, botUsername); name != "" {
			return update.KindCommand
		}
		return update.KindMessage
	default:
		return update.KindUnknown
	}
}

// ParseCommand extracts the command name (without "/" and "@botname") and
// its whitespace-separated arguments. When botUsername is set, a command
// suffixed with a different @username yields no name.
func ParseCommand(m *models.Message, botUsername string) (string, []string) {
	if m == nil || m.Text == "" {
		return "", nil
	}

	text := m.Text
	isCommand := strings.HasPrefix(text, "/")
	for _, e := range m.Entities {
		if e.Type == models.MessageEntityTypeBotCommand && e.Offset == 0 {
			isCommand = true
			break
		}
	}
	if !isCommand {
		return "", nil
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if cmd, target, ok := strings.Cut(name, "@"); ok {
		if botUsername != "" && !strings.EqualFold(target, strings.TrimPrefix(botUsername, "@")) {
			return "", nil
		}
		name = cmd
	}
	if name == "" {
		return "", nil
	}
	return strings.ToLower(name), fields[1:]
}
