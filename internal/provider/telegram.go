package provider

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	logx "relayd/pkg/logx"
)

// telegramProvider sends messages through the Telegram Bot API.
// The destination is a chat id in decimal form.
type telegramProvider struct {
	bot *tele.Bot
	log logx.Logger
}

func newTelegram(cfg TelegramConfig, log logx.Logger) (*telegramProvider, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return &telegramProvider{bot: b, log: log.With(logx.String("comp", "provider.telegram"))}, nil
}

func (p *telegramProvider) Send(ctx context.Context, destination, payload string) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(destination), 10, 64)
	if err != nil {
		return Terminalf("telegram destination must be a chat id: %q", destination)
	}

	// telebot has no context plumbing; honor cancellation at the boundary.
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err = p.bot.Send(&tele.Chat{ID: chatID}, payload)
	if err == nil {
		return nil
	}

	// Flood-wait is retryable; other Telegram API errors carry a 4xx-style
	// rejection and retrying will not help.
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return err
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 500 {
			return err
		}
		return Terminal(err)
	}
	return err
}
