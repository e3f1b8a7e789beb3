package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeTemp(t, "config.json", `{
		"server": {"addr": "127.0.0.1:9090"},
		"auth": {"tokens": [{"token": "tok-1", "expires": "2027-01-01T00:00:00Z"}]},
		"rate_limit": {"ceiling": 10, "window": "30s", "scope": "global"},
		"dispatch": {"max_workers": 8, "retry_max": 5, "backoff_base": "100ms"},
		"provider": {"driver": "http", "http": {"endpoint": "http://localhost:9/hook"}},
		"logging": {"level": "debug"}
	}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" {
		t.Errorf("server.addr = %q", cfg.Server.Addr)
	}
	if len(cfg.Auth.Tokens) != 1 || cfg.Auth.Tokens[0].Token != "tok-1" {
		t.Errorf("auth.tokens = %+v", cfg.Auth.Tokens)
	}
	if cfg.RateLimit.Ceiling != 10 || cfg.RateLimit.Scope != "global" {
		t.Errorf("rate_limit = %+v", cfg.RateLimit)
	}
	if cfg.Dispatch.RetryMax != 5 {
		t.Errorf("dispatch.retry_max = %d", cfg.Dispatch.RetryMax)
	}
	if got := m.Get(); got != cfg {
		t.Error("Get did not return the committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeTemp(t, "config.yaml", `
server:
  addr: ":7070"
provider:
  driver: telegram
  telegram:
    token: "123:abc"
logging:
  level: warn
`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("server.addr = %q", cfg.Server.Addr)
	}
	if cfg.Provider.Driver != "telegram" || cfg.Provider.Telegram.Token != "123:abc" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeTemp(t, "config.json", `{"server": {"addr": ":1"}, "throttle": {}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected unknown-field rejection")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	path := writeTemp(t, "config.json", `{"server": {"addr": ":1"}} {"extra": true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected trailing-data rejection")
	}
}

func TestParseMissingFile(t *testing.T) {
	if _, err := NewManager(filepath.Join(t.TempDir(), "absent.json")).Parse(); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPublishDropsOldestForSlowSubscriber(t *testing.T) {
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{Server: ServerConfig{Addr: ":1"}}
	second := &Config{Server: ServerConfig{Addr: ":2"}}
	m.publish(first)
	m.publish(second)

	got := <-ch
	if got.Server.Addr != ":2" {
		t.Fatalf("delivered %q, want newest config", got.Server.Addr)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra delivery %+v", extra)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := NewManager("unused")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, open := <-ch; open {
		t.Fatal("channel still open after unsubscribe")
	}
	// Publishing afterwards must not panic.
	m.publish(&Config{})
}

func TestParseDurationField(t *testing.T) {
	d, err := ParseDurationField("window", "45s")
	if err != nil || d.Seconds() != 45 {
		t.Fatalf("parse = (%v, %v)", d, err)
	}
	if _, err := ParseDurationField("window", "soon"); err == nil {
		t.Fatal("expected error for bad duration")
	}
}
