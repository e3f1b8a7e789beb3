package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	logx "relayd/pkg/logx"
)

type failingStore struct{}

func (failingStore) Lookup(context.Context, string) (Token, bool, error) {
	return Token{}, false, errors.New("backend down")
}

func (failingStore) Close() error { return nil }

func newTestGuard(tokens ...Token) *Guard {
	return NewGuard(NewStaticStore(tokens), logx.Nop())
}

func TestValidateKnownToken(t *testing.T) {
	g := newTestGuard(Token{Value: "tok-1"})
	if v := g.Validate(context.Background(), "tok-1"); v != VerdictValid {
		t.Fatalf("verdict = %s, want valid", v)
	}
	if _, ok := g.LastSeen("tok-1"); !ok {
		t.Fatal("successful validation must record last-seen")
	}
}

func TestValidateUnknownToken(t *testing.T) {
	g := newTestGuard(Token{Value: "tok-1"})
	if v := g.Validate(context.Background(), "tok-2"); v != VerdictInvalid {
		t.Fatalf("verdict = %s, want invalid", v)
	}
	if _, ok := g.LastSeen("tok-2"); ok {
		t.Fatal("denied credential must not record last-seen")
	}
}

func TestValidateExpiredToken(t *testing.T) {
	g := newTestGuard(Token{Value: "tok-1", ExpiresAt: time.Now().Add(-time.Hour)})
	if v := g.Validate(context.Background(), "tok-1"); v != VerdictExpired {
		t.Fatalf("verdict = %s, want expired", v)
	}
}

func TestValidateDisabledToken(t *testing.T) {
	g := newTestGuard(Token{Value: "tok-1", Disabled: true})
	if v := g.Validate(context.Background(), "tok-1"); v != VerdictInvalid {
		t.Fatalf("verdict = %s, want invalid", v)
	}
}

func TestValidateMalformedCredentials(t *testing.T) {
	g := newTestGuard(Token{Value: "tok-1"})
	cases := map[string]string{
		"empty":      "",
		"blank":      "   ",
		"embedded":   "tok 1",
		"control":    "tok\x001",
		"overlength": strings.Repeat("a", maxCredentialLen+1),
	}
	for name, cred := range cases {
		if v := g.Validate(context.Background(), cred); v != VerdictInvalid {
			t.Fatalf("%s credential: verdict = %s, want invalid", name, v)
		}
	}
}

func TestValidateTrimsSurroundingSpace(t *testing.T) {
	g := newTestGuard(Token{Value: "tok-1"})
	if v := g.Validate(context.Background(), "  tok-1  "); v != VerdictValid {
		t.Fatalf("verdict = %s, want valid after trim", v)
	}
}

func TestValidateFailsClosedOnBackendError(t *testing.T) {
	g := NewGuard(failingStore{}, logx.Nop())
	if v := g.Validate(context.Background(), "tok-1"); v != VerdictInvalid {
		t.Fatalf("verdict = %s, want invalid on backend error", v)
	}
}

func TestStaticStoreApplySwapsTokenSet(t *testing.T) {
	store := NewStaticStore([]Token{{Value: "old"}})
	g := NewGuard(store, logx.Nop())

	if v := g.Validate(context.Background(), "old"); v != VerdictValid {
		t.Fatalf("verdict = %s, want valid before swap", v)
	}
	store.Apply([]Token{{Value: "new"}})
	if v := g.Validate(context.Background(), "old"); v != VerdictInvalid {
		t.Fatalf("revoked token still validates after swap")
	}
	if v := g.Validate(context.Background(), "new"); v != VerdictValid {
		t.Fatalf("verdict = %s, want valid for provisioned token", v)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(Config{Backend: "vault"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
