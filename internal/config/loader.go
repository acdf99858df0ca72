package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "PROCTOR_"
	envConfigFile = "PROCTOR_CONFIG"
	envDotEnvFile = "PROCTOR_ENV_FILE"
	defaultDotEnv = ".env"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if PROCTOR_CONFIG is set
//  3. env (prefix PROCTOR_), including variables from a .env file
//
// The .env file (PROCTOR_ENV_FILE, default ".env") never overrides
// variables already set in the process environment.
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if path := os.Getenv(envConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: file %s: %w", ErrLoadConfig, path, err)
		}
	}

	// Map env keys like PROCTOR_QUEUE_SIZE -> queue_size (flat keys).
	// Underscores are preserved to match the koanf tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv() error {
	path := os.Getenv(envDotEnvFile)
	if path == "" {
		path = defaultDotEnv
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: dotenv %s: %w", ErrLoadConfig, path, err)
	}
	return nil
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format must be text or json, got %q", c.LogFormat)
	case c.QueueSize < 1:
		return invalid("queue_size must be positive")
	case c.WorkerCount < 1:
		return invalid("worker_count must be positive")
	case c.DedupeSize < 0:
		return invalid("dedupe_size must not be negative")
	case c.ScoringTimeoutMS < 1:
		return invalid("scoring_timeout_ms must be positive")
	case c.FallbackWindow < 1:
		return invalid("fallback_window must be positive")
	case c.FallbackTabSwitchWeight < 0, c.FallbackBlurWeight < 0, c.FallbackLowMousePenalty < 0, c.FallbackLowMouseThreshold < 0:
		return invalid("fallback weights must not be negative")
	case c.WSMaxClients < 1:
		return invalid("ws_max_clients must be positive")
	case c.WSReadLimitBytes < 1:
		return invalid("ws_read_limit_bytes must be positive")
	case c.MaxRiskBoardLimit < 1:
		return invalid("max_risk_board_limit must be positive")
	}
	if c.ScoringURL != "" && !strings.HasPrefix(c.ScoringURL, "http://") && !strings.HasPrefix(c.ScoringURL, "https://") {
		return invalid("scoring_url must be an http(s) URL")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
