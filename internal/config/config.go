package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the service settings. Values come from an optional YAML
// file (CONFIG_FILE) with environment variables taking precedence.
type AppConfig struct {
	ListenAddr string
	WSAddr     string

	RedisURL    string
	DatabaseURL string

	SweepInterval time.Duration
	MatchTTL      time.Duration

	DefaultDifficulty string
}

// fileConfig is the YAML shape; durations are strings ("30s", "24h") or
// bare seconds.
type fileConfig struct {
	ListenAddr        string `yaml:"listen_addr"`
	WSAddr            string `yaml:"ws_addr"`
	RedisURL          string `yaml:"redis_url"`
	DatabaseURL       string `yaml:"database_url"`
	SweepInterval     string `yaml:"sweep_interval"`
	MatchTTL          string `yaml:"match_ttl"`
	DefaultDifficulty string `yaml:"default_difficulty"`
}

func defaults() *AppConfig {
	return &AppConfig{
		ListenAddr:        ":8080",
		WSAddr:            ":8081",
		SweepInterval:     5 * time.Second,
		MatchTTL:          24 * time.Hour,
		DefaultDifficulty: "intermediate",
	}
}

func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		if fc.ListenAddr != "" {
			cfg.ListenAddr = fc.ListenAddr
		}
		if fc.WSAddr != "" {
			cfg.WSAddr = fc.WSAddr
		}
		if fc.RedisURL != "" {
			cfg.RedisURL = fc.RedisURL
		}
		if fc.DatabaseURL != "" {
			cfg.DatabaseURL = fc.DatabaseURL
		}
		if fc.SweepInterval != "" {
			d, err := parseDurationOrSeconds(fc.SweepInterval)
			if err != nil {
				return nil, fmt.Errorf("parse sweep_interval: %w", err)
			}
			cfg.SweepInterval = d
		}
		if fc.MatchTTL != "" {
			d, err := parseDurationOrSeconds(fc.MatchTTL)
			if err != nil {
				return nil, fmt.Errorf("parse match_ttl: %w", err)
			}
			cfg.MatchTTL = d
		}
		if fc.DefaultDifficulty != "" {
			cfg.DefaultDifficulty = fc.DefaultDifficulty
		}
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("WS_ADDR")); v != "" {
		cfg.WSAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SWEEP_INTERVAL")); v != "" {
		d, err := parseDurationOrSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("parse SWEEP_INTERVAL: %w", err)
		}
		cfg.SweepInterval = d
	}
	if v := strings.TrimSpace(os.Getenv("MATCH_TTL")); v != "" {
		d, err := parseDurationOrSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("parse MATCH_TTL: %w", err)
		}
		cfg.MatchTTL = d
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_DIFFICULTY")); v != "" {
		cfg.DefaultDifficulty = v
	}

	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	return cfg, nil
}

// parseDurationOrSeconds accepts "30s"/"5m" style durations or a bare
// number of seconds.
func parseDurationOrSeconds(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}
