// Package ratelimit gates mutating requests with fixed-window counting.
//
// Windows are wall-clock aligned, not sliding: a caller that exhausts one
// window gets a fresh allowance the instant the next window starts, so bursts
// of up to 2x the ceiling are possible across a boundary. That is a deliberate
// simplicity/burst-tolerance tradeoff; the window math stays trivially correct
// under concurrency because each admission is one locked increment-and-compare.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	logx "relayd/pkg/logx"
)

// Scope selects the keying dimension for windows.
const (
	ScopeCredential = "credential"
	ScopeGlobal     = "global"
)

type Config struct {
	// Ceiling is the number of admissions per window per key.
	Ceiling int
	Window  time.Duration
	Scope   string
}

func (c Config) withDefaults() Config {
	if c.Ceiling <= 0 {
		c.Ceiling = 60
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.Scope != ScopeGlobal {
		c.Scope = ScopeCredential
	}
	return c
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	// RetryAfter is the time until the current window resets; set when the
	// admission was throttled.
	RetryAfter time.Duration
}

type window struct {
	start time.Time
	count int
}

// Limiter counts admissions per key in the current window. Safe for
// concurrent use; each check is atomic as a unit.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	windows map[string]*window
	now     func() time.Time
}

func New(cfg Config, log logx.Logger) *Limiter {
	cfg = cfg.withDefaults()
	if !log.IsZero() {
		log.Info("rate limiter ready",
			logx.Int("ceiling", cfg.Ceiling),
			logx.Duration("window", cfg.Window),
			logx.String("scope", cfg.Scope))
	}
	return &Limiter{
		cfg:     cfg,
		windows: map[string]*window{},
		now:     time.Now,
	}
}

// Apply swaps the limiter configuration. Existing window counts survive when
// the window length is unchanged; otherwise counting restarts.
func (l *Limiter) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	l.mu.Lock()
	if cfg.Window != l.cfg.Window || cfg.Scope != l.cfg.Scope {
		l.windows = map[string]*window{}
	}
	l.cfg = cfg
	l.mu.Unlock()
}

// Admit checks and consumes one admission slot for the credential.
func (l *Limiter) Admit(credential string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := strings.TrimSpace(credential)
	if l.cfg.Scope == ScopeGlobal {
		key = ""
	}

	now := l.now()
	start := now.Truncate(l.cfg.Window)

	w := l.windows[key]
	if w == nil || !w.start.Equal(start) {
		w = &window{start: start}
		l.windows[key] = w
	}

	if w.count >= l.cfg.Ceiling {
		return Decision{RetryAfter: start.Add(l.cfg.Window).Sub(now)}
	}
	w.count++
	return Decision{Allowed: true}
}

// PruneStale drops windows that ended before now; called by the janitor so
// idle credentials do not accumulate. Returns the number removed.
func (l *Limiter) PruneStale(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, w := range l.windows {
		if now.Sub(w.start) > l.cfg.Window {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}
