package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forq.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Full(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
store: postgres
postgres:
  dsn: postgres://forq@localhost/forq
concurrency: 8
poll_interval: 250ms
shutdown_timeout: 5s
default_max_retries: 5
base_backoff: 1s
stale_claim_threshold: 10m
log:
  level: debug
  format: json
`)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Store != "postgres" || cfg.Postgres.DSN != "postgres://forq@localhost/forq" {
		t.Fatalf("store config = %+v", cfg)
	}

	ec := cfg.engineConfig()
	if ec.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", ec.Concurrency)
	}
	if ec.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", ec.PollInterval)
	}
	if ec.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", ec.ShutdownTimeout)
	}
	if ec.DefaultMaxRetries != 5 {
		t.Errorf("DefaultMaxRetries = %d, want 5", ec.DefaultMaxRetries)
	}
	if ec.BaseBackoff != time.Second {
		t.Errorf("BaseBackoff = %v, want 1s", ec.BaseBackoff)
	}
	if ec.StaleClaimThreshold != 10*time.Minute {
		t.Errorf("StaleClaimThreshold = %v, want 10m", ec.StaleClaimThreshold)
	}
}

func TestLoadConfig_EmptyFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	ec := cfg.engineConfig()
	if ec.Concurrency != 4 || ec.DefaultMaxRetries != 3 || ec.BaseBackoff != 2*time.Second {
		t.Fatalf("defaults not applied: %+v", ec)
	}
	if ec.StaleClaimThreshold != 0 {
		t.Fatalf("StaleClaimThreshold = %v, want disabled", ec.StaleClaimThreshold)
	}
}

func TestLoadConfig_MissingDefaultPathIsFine(t *testing.T) {
	// No t.Parallel: relies on the working directory not containing forq.yaml.
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Store != "" {
		t.Fatalf("Store = %q, want empty", cfg.Store)
	}
}

func TestLoadConfig_ExplicitMissingPathErrors(t *testing.T) {
	t.Parallel()

	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadConfig_BadDuration(t *testing.T) {
	t.Parallel()

	if _, err := loadConfig(writeConfig(t, "poll_interval: soon\n")); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestZeroMaxRetriesOverride(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig(writeConfig(t, "default_max_retries: 0\n"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if ec := cfg.engineConfig(); ec.DefaultMaxRetries != 0 {
		t.Fatalf("DefaultMaxRetries = %d, want 0", ec.DefaultMaxRetries)
	}
}
