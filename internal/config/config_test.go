package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRequiresRedisURL(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REDIS_URL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without REDIS_URL")
	}
}

func TestLoadDefaultsAndEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("SWEEP_INTERVAL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.WSAddr != ":8081" {
		t.Fatalf("default addrs: %q %q", cfg.ListenAddr, cfg.WSAddr)
	}
	if cfg.SweepInterval != 5*time.Second || cfg.MatchTTL != 24*time.Hour {
		t.Fatalf("default durations: %v %v", cfg.SweepInterval, cfg.MatchTTL)
	}

	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("SWEEP_INTERVAL", "30")
	t.Setenv("MATCH_TTL", "1h")

	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("env override ignored: %q", cfg.ListenAddr)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Fatalf("bare-seconds interval: %v", cfg.SweepInterval)
	}
	if cfg.MatchTTL != time.Hour {
		t.Fatalf("duration ttl: %v", cfg.MatchTTL)
	}
}

func TestLoadRejectsMalformedDurations(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("MATCH_TTL", "")

	t.Setenv("SWEEP_INTERVAL", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed SWEEP_INTERVAL")
	}

	t.Setenv("SWEEP_INTERVAL", "")
	t.Setenv("MATCH_TTL", "forever")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed MATCH_TTL")
	}
}

func TestLoadYAMLFileWithEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := "listen_addr: \":7000\"\nredis_url: \"redis://file:6379/0\"\nsweep_interval: 10s\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("REDIS_URL", "redis://env:6379/0")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("SWEEP_INTERVAL", "")
	t.Setenv("MATCH_TTL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7000" {
		t.Fatalf("file value ignored: %q", cfg.ListenAddr)
	}
	if cfg.SweepInterval != 10*time.Second {
		t.Fatalf("file duration ignored: %v", cfg.SweepInterval)
	}
	if cfg.RedisURL != "redis://env:6379/0" {
		t.Fatalf("env should win over file: %q", cfg.RedisURL)
	}
}
