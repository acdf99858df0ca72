// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) initializer to build a Config with defaults.
// - Functions accept context.Context as the first parameter.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"context"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds each partition of the telemetry queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of queue partitions, one worker each.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many recent telemetry event ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// ScoringURL is the external inference endpoint. Empty runs the
	// fallback heuristic only.
	ScoringURL string `koanf:"scoring_url"`

	// ScoringTimeoutMS bounds each external scoring call.
	ScoringTimeoutMS int `koanf:"scoring_timeout_ms"`

	// Fallback heuristic tuning.
	FallbackWindow            int `koanf:"fallback_window"`
	FallbackTabSwitchWeight   int `koanf:"fallback_tab_switch_weight"`
	FallbackBlurWeight        int `koanf:"fallback_blur_weight"`
	FallbackLowMousePenalty   int `koanf:"fallback_low_mouse_penalty"`
	FallbackLowMouseThreshold int `koanf:"fallback_low_mouse_threshold"`

	// WSMaxClients caps concurrent telemetry connections.
	WSMaxClients int `koanf:"ws_max_clients"`

	// WSReadLimitBytes caps the size of one telemetry frame.
	WSReadLimitBytes int64 `koanf:"ws_read_limit_bytes"`

	// MaxRiskBoardLimit caps GET /api/analytics/risk?limit.
	MaxRiskBoardLimit int `koanf:"max_risk_board_limit"`
}

// New creates a Config with defaults. ctx is accepted to keep the
// package convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                  "info",
		LogFormat:                 "text",
		Addr:                      ":9080",
		QueueSize:                 1024,
		WorkerCount:               runtime.NumCPU(),
		DedupeSize:                50_000,
		ScoringTimeoutMS:          2000,
		FallbackWindow:            10,
		FallbackTabSwitchWeight:   3,
		FallbackBlurWeight:        4,
		FallbackLowMousePenalty:   10,
		FallbackLowMouseThreshold: 3,
		WSMaxClients:              10_000,
		WSReadLimitBytes:          64 << 10,
		MaxRiskBoardLimit:         500,
	}
}

// ScoringTimeout returns ScoringTimeoutMS as a duration.
func (c *Config) ScoringTimeout() time.Duration {
	return time.Duration(c.ScoringTimeoutMS) * time.Millisecond
}
