package scoring

import (
	"context"

	"github.com/okian/proctor/internal/domain/model"
)

// Default fallback heuristic parameters.
const (
	defaultWindow            = 10
	defaultTabSwitchWeight   = 3
	defaultBlurWeight        = 4
	defaultLowMousePenalty   = 10
	defaultLowMouseThreshold = 3
)

// FallbackOption applies a configuration option to the FallbackScorer.
type FallbackOption func(*FallbackScorer)

// WithWindow sets how many trailing events the heuristic inspects.
func WithWindow(n int) FallbackOption {
	return func(s *FallbackScorer) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithWeights sets the per-event increments for tab switches and blurs.
func WithWeights(tabSwitch, blur int) FallbackOption {
	return func(s *FallbackScorer) {
		if tabSwitch >= 0 {
			s.tabSwitchWeight = tabSwitch
		}
		if blur >= 0 {
			s.blurWeight = blur
		}
	}
}

// WithLowMousePenalty sets the increment applied when the window holds fewer
// than threshold mousemove events.
func WithLowMousePenalty(penalty, threshold int) FallbackOption {
	return func(s *FallbackScorer) {
		if penalty >= 0 {
			s.lowMousePenalty = penalty
		}
		if threshold >= 0 {
			s.lowMouseThreshold = threshold
		}
	}
}

// FallbackScorer is the local heuristic used when external scoring is
// unavailable. It is a pure function of the trailing window and the previous
// score, and never lowers a score.
type FallbackScorer struct {
	window            int
	tabSwitchWeight   int
	blurWeight        int
	lowMousePenalty   int
	lowMouseThreshold int
}

// NewFallbackScorer creates a fallback scorer with configuration options.
func NewFallbackScorer(opts ...FallbackOption) *FallbackScorer {
	s := &FallbackScorer{
		window:            defaultWindow,
		tabSwitchWeight:   defaultTabSwitchWeight,
		blurWeight:        defaultBlurWeight,
		lowMousePenalty:   defaultLowMousePenalty,
		lowMouseThreshold: defaultLowMouseThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score implements Scorer. It never fails.
func (s *FallbackScorer) Score(_ context.Context, in Input) (Result, error) {
	return Result{Score: s.Compute(in.History, in.Previous), Strategy: StrategyFallback}, nil
}

// Compute applies the heuristic to the last window events of history.
func (s *FallbackScorer) Compute(history []model.BehavioralEvent, previous int) int {
	recent := history
	if len(recent) > s.window {
		recent = recent[len(recent)-s.window:]
	}

	var tabSwitches, blurs, mouseMoves int
	for _, e := range recent {
		switch e.Type {
		case model.EventTabSwitch:
			tabSwitches++
		case model.EventBlur:
			blurs++
		case model.EventMouseMove:
			mouseMoves++
		case model.EventFocus:
		}
	}

	score := previous + tabSwitches*s.tabSwitchWeight + blurs*s.blurWeight
	if mouseMoves < s.lowMouseThreshold {
		score += s.lowMousePenalty
	}
	return Clamp(score)
}
