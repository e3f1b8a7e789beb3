// Package provider adapts external messaging APIs behind a single Send call.
//
// Providers classify failures as retryable (transport faults, throttling,
// remote 5xx) or terminal (rejected payloads, remote 4xx). Callers decide
// retry policy; providers only classify.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "relayd/pkg/logx"
)

// Provider sends one message to the external messaging API.
//
// A nil return means the provider accepted the message. Non-nil errors are
// terminal iff IsTerminal reports so; everything else is retryable.
type Provider interface {
	Send(ctx context.Context, destination, payload string) error
}

// TerminalError marks a failure that retrying cannot fix.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return e.Err.Error() }
func (e *TerminalError) Unwrap() error { return e.Err }

// Terminal wraps err as non-retryable.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

// Terminalf is Terminal(fmt.Errorf(...)).
func Terminalf(format string, args ...any) error {
	return &TerminalError{Err: fmt.Errorf(format, args...)}
}

// IsTerminal reports whether err is a non-retryable provider failure.
// Unclassified errors (network faults, timeouts) are retryable.
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}

// Config selects and configures the provider driver.
type Config struct {
	Driver   string
	HTTP     HTTPConfig
	Telegram TelegramConfig
}

type HTTPConfig struct {
	Endpoint string
	Timeout  time.Duration
}

type TelegramConfig struct {
	Token string
}

// New builds the configured provider.
func New(cfg Config, log logx.Logger) (Provider, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "http":
		return newHTTP(cfg.HTTP, log)
	case "telegram":
		return newTelegram(cfg.Telegram, log)
	default:
		return nil, errors.New("unknown provider driver: " + cfg.Driver)
	}
}
