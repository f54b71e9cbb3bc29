package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casino-hub/casino-hub/internal/domain/shared"
	"github.com/casino-hub/casino-hub/pkg/circuitbreaker"
)

type fakeAPI struct {
	mu         sync.Mutex
	sendErr    error
	sent       []*bot.SendMessageParams
	answered   []string
	webhookURL string
	setCalls   []*bot.SetWebhookParams
	deleted    int
	commands   []models.BotCommand
}

func (f *fakeAPI) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, p)
	return &models.Message{ID: len(f.sent)}, nil
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, p *bot.AnswerCallbackQueryParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, p.CallbackQueryID)
	return true, nil
}

func (f *fakeAPI) GetWebhookInfo(context.Context) (*models.WebhookInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.WebhookInfo{URL: f.webhookURL}, nil
}

func (f *fakeAPI) SetWebhook(_ context.Context, p *bot.SetWebhookParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls = append(f.setCalls, p)
	f.webhookURL = p.URL
	return true, nil
}

func (f *fakeAPI) DeleteWebhook(context.Context, *bot.DeleteWebhookParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted++
	f.webhookURL = ""
	return true, nil
}

func (f *fakeAPI) SetMyCommands(_ context.Context, p *bot.SetMyCommandsParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = p.Commands
	return true, nil
}

func TestClient_SendWebAppButton(t *testing.T) {
	api := &fakeAPI{}
	c := NewClientWithAPI(api, nil)

	require.NoError(t, c.SendWebAppButton(context.Background(), 7, "hi", "open", "https://app.example"))
	require.Len(t, api.sent, 1)

	kb, ok := api.sent[0].ReplyMarkup.(*models.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, "https://app.example", kb.InlineKeyboard[0][0].WebApp.URL)
	assert.Equal(t, int64(7), api.sent[0].ChatID)
}

func TestClient_BlockedChatDoesNotTripBreaker(t *testing.T) {
	api := &fakeAPI{sendErr: fmt.Errorf("%w, bot was blocked by the user", bot.ErrorForbidden)}
	c := NewClientWithAPI(api, nil)

	for i := 0; i < 20; i++ {
		err := c.SendText(context.Background(), 1, "x")
		assert.True(t, IsBlocked(err))
		assert.ErrorIs(t, err, shared.ErrExternalService)
	}
	assert.Equal(t, "closed", c.Breaker().State)
}

func TestClient_OutageOpensBreaker(t *testing.T) {
	api := &fakeAPI{sendErr: errors.New("dial tcp: i/o timeout")}
	c := NewClientWithAPI(api, nil)

	for i := 0; i < 5; i++ {
		require.Error(t, c.SendText(context.Background(), 1, "x"))
	}
	err := c.SendText(context.Background(), 1, "x")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, "open", c.Breaker().State)
}

func TestClient_EnsureWebhook(t *testing.T) {
	api := &fakeAPI{webhookURL: "https://old.example/webhook/aaaa"}
	c := NewClientWithAPI(api, nil)
	ctx := context.Background()

	changed, err := c.EnsureWebhook(ctx, "https://bot.example/webhook/abcd", "secret")
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, api.setCalls, 1)
	assert.Equal(t, "secret", api.setCalls[0].SecretToken)
	assert.False(t, api.setCalls[0].DropPendingUpdates)

	changed, err = c.EnsureWebhook(ctx, "https://bot.example/webhook/abcd", "secret")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, api.setCalls, 1)

	require.NoError(t, c.DeleteWebhook(ctx))
	assert.Equal(t, 1, api.deleted)
}

func TestIsFailure(t *testing.T) {
	assert.False(t, IsFailure(nil))
	assert.False(t, IsFailure(fmt.Errorf("%w, bot was blocked by the user", bot.ErrorForbidden)))
	assert.False(t, IsFailure(fmt.Errorf("%w, chat not found", bot.ErrorBadRequest)))
	assert.False(t, IsFailure(fmt.Errorf("%w, invalid token", bot.ErrorUnauthorized)))
	assert.True(t, IsFailure(errors.New("dial tcp: i/o timeout")))
	assert.True(t, IsFailure(fmt.Errorf("%w, retry later", bot.ErrorTooManyRequests)))
}

func TestClient_RevokedTokenDoesNotTripBreaker(t *testing.T) {
	api := &fakeAPI{sendErr: fmt.Errorf("%w, invalid token", bot.ErrorUnauthorized)}
	c := NewClientWithAPI(api, nil)

	for i := 0; i < 20; i++ {
		require.Error(t, c.SendText(context.Background(), 1, "x"))
	}
	assert.Equal(t, "closed", c.Breaker().State)
}

func TestClient_SetCommands(t *testing.T) {
	api := &fakeAPI{}
	c := NewClientWithAPI(api, nil)

	cmds := []models.BotCommand{{Command: "start", Description: "play"}}
	require.NoError(t, c.SetCommands(context.Background(), cmds))
	assert.Equal(t, cmds, api.commands)
}

func TestClient_AnswerCallback(t *testing.T) {
	api := &fakeAPI{}
	c := NewClientWithAPI(api, nil)
	require.NoError(t, c.AnswerCallback(context.Background(), "cb-1", ""))
	assert.Equal(t, []string{"cb-1"}, api.answered)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "https://h/webhook/0123…", redact("https://h/webhook/0123456789abcdef0123"))
	assert.Equal(t, "https://h/short", redact("https://h/short"))
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient(ClientConfig{}, nil)
	assert.Error(t, err)
}
