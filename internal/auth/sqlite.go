//go:build sqlite
// +build sqlite

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "relayd/pkg/logx"
)

// sqliteStore reads provisioned tokens from a SQLite table. Provisioning is
// external (any tool that writes the tokens table); this store only reads.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

const tokensSchema = `
CREATE TABLE IF NOT EXISTS tokens (
	token      TEXT PRIMARY KEY,
	expires_at TEXT,
	disabled   INTEGER NOT NULL DEFAULT 0
);`

func openSQLite(cfg SQLiteConfig, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(tokensSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Lookup(ctx context.Context, credential string) (Token, bool, error) {
	var (
		expires  sql.NullString
		disabled int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at, disabled FROM tokens WHERE token = ?`, credential,
	).Scan(&expires, &disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, err
	}

	tok := Token{Value: credential, Disabled: disabled != 0}
	if expires.Valid && strings.TrimSpace(expires.String) != "" {
		t, err := time.Parse(time.RFC3339, expires.String)
		if err != nil {
			return Token{}, false, fmt.Errorf("token expires_at: %w", err)
		}
		tok.ExpiresAt = t
	}
	return tok, true, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
