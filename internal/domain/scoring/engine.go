package scoring

import (
	"context"
	"errors"
	"time"

	"github.com/okian/proctor/pkg/logger"
	"github.com/okian/proctor/pkg/metrics"
)

// Engine selects a strategy per call: the primary scorer when it answers,
// the fallback otherwise. It always resolves to a score.
type Engine struct {
	primary  Scorer // nil means fallback-only
	fallback *FallbackScorer
	logger   logger.Logger
}

// EngineOption applies a configuration option to the Engine.
type EngineOption func(*Engine)

// WithPrimary sets the scorer tried before the fallback.
func WithPrimary(s Scorer) EngineOption {
	return func(e *Engine) {
		e.primary = s
	}
}

// WithFallback replaces the default fallback heuristic.
func WithFallback(f *FallbackScorer) EngineOption {
	return func(e *Engine) {
		if f != nil {
			e.fallback = f
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine. Without WithPrimary it runs fallback-only.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{fallback: NewFallbackScorer()}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("scoring")
	}
	return e
}

// Score implements Scorer. Primary failures are absorbed here and never
// returned to the caller.
func (e *Engine) Score(ctx context.Context, in Input) (Result, error) {
	if e.primary != nil {
		start := time.Now()
		res, err := e.primary.Score(ctx, in)
		metrics.RecordScoringLatency(string(StrategyExternal), float64(time.Since(start).Microseconds())/1000)
		if err == nil {
			return res, nil
		}

		reason := ReasonTransport
		var ue *UpstreamError
		if errors.As(err, &ue) {
			reason = ue.Reason
		}
		metrics.RecordScoringUpstreamError(reason)
		e.logger.Debug(ctx, "external scoring failed, using fallback",
			logger.Int64("session_id", in.SessionID),
			logger.String("reason", reason),
			logger.Error(err),
		)
	}

	start := time.Now()
	res, _ := e.fallback.Score(ctx, in)
	metrics.RecordScoringLatency(string(StrategyFallback), float64(time.Since(start).Microseconds())/1000)
	metrics.RecordScoringFallback()
	return res, nil
}
