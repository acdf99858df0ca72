// Package scoring computes session risk scores from behavioral event history.
//
// Two strategies implement Scorer: ExternalScorer calls the inference
// service, FallbackScorer applies a deterministic local heuristic. Engine
// tries the former and always resolves through the latter.
package scoring

import (
	"context"

	"github.com/okian/proctor/internal/domain/model"
)

// Risk score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// Strategy names the scorer that produced a result.
type Strategy string

// Known strategies.
const (
	StrategyExternal Strategy = "external"
	StrategyFallback Strategy = "fallback"
)

// Input is the full scoring context for one session update.
type Input struct {
	SessionID int64
	// History is the complete event history, oldest first, including the
	// event that triggered this update.
	History []model.BehavioralEvent
	// Previous is the session's current risk score.
	Previous int
}

// Result contains the computed risk score.
type Result struct {
	Score    int
	Strategy Strategy
}

// Scorer computes a risk score from an input.
type Scorer interface {
	// Score computes a score, honoring ctx for cancellation.
	Score(ctx context.Context, in Input) (Result, error)
}

// Clamp bounds a score to [MinScore, MaxScore].
func Clamp(score int) int {
	switch {
	case score < MinScore:
		return MinScore
	case score > MaxScore:
		return MaxScore
	default:
		return score
	}
}
