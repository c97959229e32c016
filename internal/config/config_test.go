package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"CONFIG_FILE", "PORT", "DB_DSN", "LOG_FILE", "SEED_DEMO", "SERVER_URL", "TERMINAL_ID", "TERMINAL_KEY", "QUEUE_DSN", "TERMINAL_LOCAL_ADDR"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := Load()
	if cfg.Port != "8081" || cfg.DBDSN != "tillsync.db" || !cfg.SeedDemo {
		t.Fatalf("bad server defaults: %+v", cfg)
	}
	if cfg.HubSendBuffer != 64 || cfg.SessionTimeout != 60*time.Second {
		t.Fatalf("bad hub defaults: %+v", cfg)
	}
	tc := cfg.Terminal
	if tc.ID != "till-1" || tc.FailThreshold != 2 || tc.OKThreshold != 2 {
		t.Fatalf("bad terminal defaults: %+v", tc)
	}
	if tc.MaxAttempts != 5 || tc.BaseBackoff != 500*time.Millisecond || tc.MaxBackoff != 30*time.Second {
		t.Fatalf("bad retry defaults: %+v", tc)
	}
}

func TestLoadFileMergeAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tillsync.yaml")
	yaml := `
server:
  port: "9090"
  db_dsn: file.db
  hub_send_buffer: 16
  session_timeout_seconds: 30
  seed_demo: false
terminal:
  id: till-9
  server_url: http://pos.local:9090
  probe_interval_seconds: 3
  max_attempts: 7
  base_backoff_ms: 250
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CONFIG_FILE", path)
	// env wins over file
	t.Setenv("PORT", "7070")
	t.Setenv("TERMINAL_ID", "till-env")

	cfg := Load()
	if cfg.Port != "7070" {
		t.Fatalf("env PORT should win: got %s", cfg.Port)
	}
	if cfg.DBDSN != "file.db" || cfg.SeedDemo {
		t.Fatalf("file values not merged: %+v", cfg)
	}
	if cfg.HubSendBuffer != 16 || cfg.SessionTimeout != 30*time.Second {
		t.Fatalf("file hub values not merged: %+v", cfg)
	}
	tc := cfg.Terminal
	if tc.ID != "till-env" {
		t.Fatalf("env TERMINAL_ID should win: got %s", tc.ID)
	}
	if tc.ServerURL != "http://pos.local:9090" || tc.ProbeInterval != 3*time.Second {
		t.Fatalf("file terminal values not merged: %+v", tc)
	}
	if tc.MaxAttempts != 7 || tc.BaseBackoff != 250*time.Millisecond {
		t.Fatalf("file retry values not merged: %+v", tc)
	}
	// untouched fields keep defaults
	if tc.MaxBackoff != 30*time.Second || tc.OKThreshold != 2 {
		t.Fatalf("defaults clobbered: %+v", tc)
	}
}

func TestLoadIgnoresBrokenConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("{{{not yaml"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")

	cfg := Load()
	if cfg.Port != "8081" {
		t.Fatalf("broken file should fall back to defaults, got %+v", cfg)
	}
}
