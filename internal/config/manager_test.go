package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return NewManager(path)
}

func TestManagerParseYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
  target_chat: -100500
logging:
  level: debug
  console: true
broadcast:
  time: "15:30"
  reset_time: "00:05"
  timezone: "Europe/Moscow"
  retry_backoff: "1m"
catalog:
  path: ./data/names.db
  seed_file: ./default_names.txt
  self_name: "Name A"
`)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("Token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Fatalf("OwnerUserIDs = %v", cfg.Telegram.OwnerUserIDs)
	}
	if cfg.Telegram.TargetChat != -100500 {
		t.Fatalf("TargetChat = %d", cfg.Telegram.TargetChat)
	}
	if cfg.Broadcast.Time != "15:30" || cfg.Broadcast.Timezone != "Europe/Moscow" {
		t.Fatalf("Broadcast = %+v", cfg.Broadcast)
	}
	if cfg.Catalog.SelfName != "Name A" {
		t.Fatalf("SelfName = %q", cfg.Catalog.SelfName)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get() did not return the committed config")
	}
}

func TestManagerParseJSONPassthrough(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
  "telegram": {"token": "123:abc"},
  "catalog": {"path": "./names.db", "self_name": "Name A"}
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Catalog.SelfName != "Name A" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestManagerParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, `
telegram:
  token: "123:abc"
  no_such_field: true
catalog:
  path: ./names.db
  self_name: "Name A"
`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("Parse accepted an unknown field")
	}
}

func TestManagerParseMissingFile(t *testing.T) {
	t.Parallel()
	m := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := m.Parse(); err == nil {
		t.Fatal("Parse on a missing file returned nil error")
	}
}

func TestSubscribePublishDropOldest(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, `
telegram:
  token: "123:abc"
catalog:
  path: ./names.db
  self_name: "Name A"
`)
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	a := &Config{}
	b := &Config{}
	m.publish(a)
	m.publish(b) // buffer full: oldest is dropped, newest delivered

	got := <-sub
	if got != b {
		t.Fatal("subscriber did not receive the newest config")
	}
	select {
	case extra := <-sub:
		t.Fatalf("unexpected extra config %p", extra)
	default:
	}
}
