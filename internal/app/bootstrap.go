package app

import (
	"fmt"
	"time"

	"relayd/internal/auth"
	"relayd/internal/config"
	"relayd/internal/control"
	"relayd/internal/dispatch"
	"relayd/internal/provider"
	"relayd/internal/ratelimit"
	"relayd/internal/server"
	logx "relayd/pkg/logx"
)

// The config file speaks strings (duration fields, RFC3339 timestamps);
// components speak typed values. These mappers translate and validate.

func buildLogConfig(cfg *config.Config) logx.Config {
	console := true
	if cfg.Logging.Console != nil {
		console = *cfg.Logging.Console
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func buildServerConfig(cfg *config.Config) (server.Config, error) {
	read, err := config.ParseDurationOrDefault("server.read_timeout", cfg.Server.ReadTimeout, 15*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	write, err := config.ParseDurationField("server.write_timeout", cfg.Server.WriteTimeout)
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  read,
		WriteTimeout: write,
	}, nil
}

func buildAuthConfig(cfg *config.Config) (auth.Config, error) {
	out := auth.Config{Backend: cfg.Auth.Backend}

	tokens, err := parseTokens(cfg.Auth.Tokens)
	if err != nil {
		return auth.Config{}, err
	}
	out.Tokens = tokens

	busy, err := config.ParseDurationField("auth.sqlite.busy_timeout", cfg.Auth.SQLite.BusyTimeout)
	if err != nil {
		return auth.Config{}, err
	}
	out.SQLite = auth.SQLiteConfig{Path: cfg.Auth.SQLite.Path, BusyTimeout: busy}
	return out, nil
}

func parseTokens(entries []config.TokenEntry) ([]auth.Token, error) {
	tokens := make([]auth.Token, 0, len(entries))
	for i, e := range entries {
		t := auth.Token{Value: e.Token, Disabled: e.Disabled}
		if e.Expires != "" {
			exp, err := time.Parse(time.RFC3339, e.Expires)
			if err != nil {
				return nil, fmt.Errorf("auth.tokens[%d].expires: %w", i, err)
			}
			t.ExpiresAt = exp
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

func buildRateLimitConfig(cfg *config.Config) (ratelimit.Config, error) {
	window, err := config.ParseDurationOrDefault("rate_limit.window", cfg.RateLimit.Window, time.Minute)
	if err != nil {
		return ratelimit.Config{}, err
	}
	return ratelimit.Config{
		Ceiling: cfg.RateLimit.Ceiling,
		Window:  window,
		Scope:   cfg.RateLimit.Scope,
	}, nil
}

func buildControlConfig(cfg *config.Config) control.Config {
	exempt := true
	if cfg.RateLimit.ExemptReads != nil {
		exempt = *cfg.RateLimit.ExemptReads
	}
	return control.Config{ExemptReads: exempt}
}

func buildDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	d := cfg.Dispatch
	base, err := config.ParseDurationOrDefault("dispatch.backoff_base", d.BackoffBase, 250*time.Millisecond)
	if err != nil {
		return dispatch.Config{}, err
	}
	cap, err := config.ParseDurationOrDefault("dispatch.backoff_cap", d.BackoffCap, 10*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	jitter, err := config.ParseFractionOrDefault("dispatch.backoff_jitter", d.BackoffJitter, 0.2)
	if err != nil {
		return dispatch.Config{}, err
	}
	callTimeout, err := config.ParseDurationOrDefault("dispatch.call_timeout", d.CallTimeout, 10*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	retention, err := config.ParseDurationOrDefault("dispatch.retention", d.Retention, time.Hour)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		MaxWorkers:    d.MaxWorkers,
		RetryMax:      d.RetryMax,
		BackoffBase:   base,
		BackoffCap:    cap,
		BackoffJitter: jitter,
		CallTimeout:   callTimeout,
		OutboundRPS:   d.OutboundRPS,
		Retention:     retention,
	}, nil
}

func buildShutdownGrace(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("dispatch.shutdown_grace", cfg.Dispatch.ShutdownGrace, 10*time.Second)
}

func buildProviderConfig(cfg *config.Config) (provider.Config, error) {
	timeout, err := config.ParseDurationOrDefault("provider.http.timeout", cfg.Provider.HTTP.Timeout, 10*time.Second)
	if err != nil {
		return provider.Config{}, err
	}
	return provider.Config{
		Driver: cfg.Provider.Driver,
		HTTP: provider.HTTPConfig{
			Endpoint: cfg.Provider.HTTP.Endpoint,
			Timeout:  timeout,
		},
		Telegram: provider.TelegramConfig{Token: cfg.Provider.Telegram.Token},
	}, nil
}

func buildPprofConfig(cfg *config.Config) server.PprofConfig {
	return server.PprofConfig{
		Enabled:              cfg.Pprof.Enabled,
		Address:              cfg.Pprof.Address,
		BlockProfileRate:     cfg.Pprof.BlockProfileRate,
		MutexProfileFraction: cfg.Pprof.MutexProfileFraction,
	}
}
