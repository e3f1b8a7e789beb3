package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	logx "relayd/pkg/logx"
)

// Config selects the token provisioning backend.
//
// Backend values:
//   - "static": tokens provided inline (hot-reloadable via Apply)
//   - "sqlite": tokens read from a SQLite table (optional build tag)
//
// If Backend is empty, "static" is assumed.
type Config struct {
	Backend string
	Tokens  []Token
	SQLite  SQLiteConfig
}

type SQLiteConfig struct {
	Path        string
	BusyTimeout time.Duration
}

// Open initializes the configured token store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "static":
		return NewStaticStore(cfg.Tokens), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg.SQLite, log)
	default:
		return nil, errors.New("unknown auth backend: " + cfg.Backend)
	}
}

// StaticStore serves a fixed token set from config. Apply swaps the whole set
// atomically, which is how config hot reload re-provisions credentials.
type StaticStore struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

func NewStaticStore(tokens []Token) *StaticStore {
	s := &StaticStore{}
	s.Apply(tokens)
	return s
}

func (s *StaticStore) Apply(tokens []Token) {
	m := make(map[string]Token, len(tokens))
	for _, t := range tokens {
		v := strings.TrimSpace(t.Value)
		if v == "" {
			continue
		}
		t.Value = v
		m[v] = t
	}
	s.mu.Lock()
	s.tokens = m
	s.mu.Unlock()
}

func (s *StaticStore) Lookup(_ context.Context, credential string) (Token, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[credential]
	return t, ok, nil
}

func (s *StaticStore) Close() error { return nil }
