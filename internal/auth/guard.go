// Package auth validates caller credentials before any dispatch or status
// access is permitted.
//
// Validation fails closed: lookup misses, malformed credentials, and backend
// errors all come back Invalid. The only side effect of a successful
// validation is a last-seen refresh on the token record.
package auth

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	logx "relayd/pkg/logx"
)

// Verdict is the outcome of a credential check.
type Verdict int

const (
	VerdictInvalid Verdict = iota
	VerdictExpired
	VerdictValid
)

func (v Verdict) String() string {
	switch v {
	case VerdictValid:
		return "valid"
	case VerdictExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// Token is one provisioned credential.
type Token struct {
	Value string
	// ExpiresAt zero means no expiry.
	ExpiresAt time.Time
	Disabled  bool
}

// Store resolves credentials to provisioned tokens.
type Store interface {
	Lookup(ctx context.Context, credential string) (Token, bool, error)
	Close() error
}

const maxCredentialLen = 512

type Guard struct {
	store Store
	log   logx.Logger

	// lastSeen is validation metadata only; it never affects verdicts.
	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func NewGuard(store Store, log logx.Logger) *Guard {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Guard{
		store:    store,
		log:      log.With(logx.String("comp", "auth")),
		lastSeen: map[string]time.Time{},
	}
}

// Validate checks one credential. It never returns an error: every failure
// mode maps to a denial verdict.
func (g *Guard) Validate(ctx context.Context, credential string) Verdict {
	cred := strings.TrimSpace(credential)
	if cred == "" || len(cred) > maxCredentialLen || !printable(cred) {
		return VerdictInvalid
	}

	tok, ok, err := g.store.Lookup(ctx, cred)
	if err != nil {
		// Fail closed on backend trouble.
		g.log.Warn("token lookup failed", logx.Err(err))
		return VerdictInvalid
	}
	if !ok || tok.Disabled {
		return VerdictInvalid
	}
	if !tok.ExpiresAt.IsZero() && time.Now().After(tok.ExpiresAt) {
		return VerdictExpired
	}

	g.mu.Lock()
	g.lastSeen[cred] = time.Now()
	g.mu.Unlock()
	return VerdictValid
}

// LastSeen reports when a credential last validated successfully.
func (g *Guard) LastSeen(credential string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.lastSeen[strings.TrimSpace(credential)]
	return t, ok
}

func printable(s string) bool {
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}
