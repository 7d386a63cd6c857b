// Package telegram wraps the Telegram Bot API calls the service needs:
// sending replies, setting webhooks and validating tokens with getMe.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/telegive/bot-service/internal/config"
	apperrors "github.com/telegive/bot-service/internal/errors"
	"github.com/telegive/bot-service/internal/logger"
	"github.com/telegive/bot-service/internal/metrics"
)

// MaxMessageLength is Telegram's limit for a text message, in characters.
const MaxMessageLength = 4096

// Result is the outcome of one Bot API call. Clients never return errors;
// failures set OK=false and a typed Err.
type Result struct {
	OK          bool         `json:"ok"`
	Bot         *models.User `json:"bot,omitempty"`
	Result      any          `json:"result,omitempty"`
	Description string       `json:"description,omitempty"`
	Error       string       `json:"error,omitempty"`
	Err         error        `json:"-"`
}

// Blocked reports whether a failed send was refused because the recipient
// blocked the bot.
func (r Result) Blocked() bool {
	if r.OK {
		return false
	}
	return errors.Is(r.Err, bot.ErrorForbidden) || strings.Contains(r.Description, "blocked by the user")
}

// Client is a Bot API client bound to one token.
type Client interface {
	SendMessage(ctx context.Context, chatID int64, text string) Result
	SetWebhook(ctx context.Context, url string) Result
	GetBotInfo(ctx context.Context) Result
}

// Factory builds a Client for a token.
type Factory func(token string) (Client, error)

// NewFactory returns a Factory using the configured API URL and timeout.
func NewFactory(cfg config.TelegramConfig, log *slog.Logger) Factory {
	if log == nil {
		log = logger.Discard()
	}
	return func(token string) (Client, error) {
		return NewClient(token, cfg, log)
	}
}

type botClient struct {
	api     *bot.Bot
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a client for token. No request is made.
func NewClient(token string, cfg config.TelegramConfig, log *slog.Logger) (Client, error) {
	if token == "" {
		return nil, apperrors.NewValidationError("telegram bot token cannot be empty", nil)
	}
	if log == nil {
		log = logger.Discard()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTelegramTimeout
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = config.DefaultTelegramAPIURL
	}

	api, err := bot.New(token,
		bot.WithSkipGetMe(),
		bot.WithServerURL(apiURL),
		bot.WithHTTPClient(timeout, &http.Client{}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &botClient{
		api:     api,
		timeout: timeout,
		logger:  log.With("component", "telegram_client", "token", logger.MaskToken(token)),
	}, nil
}

func (c *botClient) SendMessage(ctx context.Context, chatID int64, text string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      truncateRunes(text, MaxMessageLength),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return c.fail(ctx, "sendMessage", err)
	}
	c.observe("sendMessage", "success")
	return Result{OK: true, Result: msg}
}

func (c *botClient) SetWebhook(ctx context.Context, url string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ok, err := c.api.SetWebhook(ctx, &bot.SetWebhookParams{URL: url})
	if err != nil {
		return c.fail(ctx, "setWebhook", err)
	}
	c.observe("setWebhook", "success")
	return Result{OK: ok, Result: ok}
}

func (c *botClient) GetBotInfo(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	user, err := c.api.GetMe(ctx)
	if err != nil {
		return c.fail(ctx, "getMe", err)
	}
	c.observe("getMe", "success")
	return Result{OK: true, Bot: user, Result: user}
}

func (c *botClient) fail(ctx context.Context, method string, err error) Result {
	typed := classify(ctx, err)
	c.observe(method, apperrors.Code(typed))
	c.logger.WarnContext(ctx, "Telegram API call failed", "method", method, "error", err)
	return Result{
		OK:          false,
		Description: err.Error(),
		Error:       apperrors.PublicMessage(typed),
		Err:         typed,
	}
}

func (c *botClient) observe(method, outcome string) {
	metrics.TelegramCallsTotal.WithLabelValues(method, outcome).Inc()
}

// classify maps Bot API and transport failures onto the error taxonomy.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, bot.ErrorUnauthorized):
		return apperrors.NewInvalidToken("Invalid bot token", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.NewTimeout("Telegram API timeout", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return apperrors.NewTimeout("Telegram API timeout", err)
		}
		return apperrors.NewConnectionError("Telegram API unavailable", err)
	}
	return apperrors.NewInternal("Telegram API error", err)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
