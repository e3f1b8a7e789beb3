package app

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"relayd/internal/config"
	"relayd/internal/dispatch"
	"relayd/internal/ratelimit"
	logx "relayd/pkg/logx"
)

// janitor periodically prunes terminal records past retention and idle
// rate-limit windows so in-memory state stays bounded.
type janitor struct {
	c   *cron.Cron
	log logx.Logger
}

func newJanitor(cfg config.JanitorConfig, store *dispatch.Store, limiter *ratelimit.Limiter, log logx.Logger) *janitor {
	spec := strings.TrimSpace(cfg.Spec)
	if spec == "" {
		spec = "@every 1m"
	}
	log = log.With(logx.String("comp", "janitor"))

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		now := time.Now()
		recs := store.PruneTerminal(now)
		wins := limiter.PruneStale(now)
		if recs > 0 || wins > 0 {
			log.Debug("sweep done", logx.Int("records", recs), logx.Int("rate_windows", wins))
		}
	})
	if err != nil {
		// Bad spec from config; fall back rather than running without cleanup.
		log.Warn("invalid janitor spec; using default", logx.String("spec", spec), logx.Err(err))
		_, _ = c.AddFunc("@every 1m", func() {
			now := time.Now()
			store.PruneTerminal(now)
			limiter.PruneStale(now)
		})
	}
	return &janitor{c: c, log: log}
}

func (j *janitor) Start() { j.c.Start() }

func (j *janitor) Stop() {
	ctx := j.c.Stop()
	// Wait briefly for a running sweep to finish.
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
	}
}
