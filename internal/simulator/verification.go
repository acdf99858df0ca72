package simulator

import (
	"context"
	"fmt"

	"github.com/okian/proctor/internal/domain/types"
	"github.com/okian/proctor/pkg/logger"
)

// verifyReport checks that the risk board agrees with the polled sessions.
func verifyReport(ctx context.Context, r *Report) error {
	log := logger.Get().Named("simulator")

	if err := VerifyBoardOrder(r.Board); err != nil {
		return err
	}

	scores := make(map[int64]int, len(r.Sessions))
	for _, s := range r.Sessions {
		scores[s.SessionID] = s.RiskScore
	}
	for _, e := range r.Board {
		if want, ok := scores[e.SessionID]; ok && want != e.RiskScore {
			return fmt.Errorf("session %d: board score %d, session score %d", e.SessionID, e.RiskScore, want)
		}
	}

	calm, cheating := r.MeanScore(ProfileCalm), r.MeanScore(ProfileCheating)
	if cheating > 0 && calm > cheating {
		log.Warn(ctx, "calm sessions scored above cheating sessions",
			logger.Float64("calm", calm), logger.Float64("cheating", cheating))
	}
	return nil
}

// VerifyBoardOrder checks descending scores and competition ranks.
func VerifyBoardOrder(board []types.RiskEntry) error {
	for i := 1; i < len(board); i++ {
		prev, cur := board[i-1], board[i]
		if cur.RiskScore > prev.RiskScore {
			return fmt.Errorf("%w: entry %d (%d) above entry %d (%d)", ErrBoardOrder, i, cur.RiskScore, i-1, prev.RiskScore)
		}
		if cur.RiskScore == prev.RiskScore && cur.Rank != prev.Rank {
			return fmt.Errorf("%w: tied entries %d and %d ranked %d and %d", ErrBoardOrder, i-1, i, prev.Rank, cur.Rank)
		}
		if cur.RiskScore < prev.RiskScore && cur.Rank != i+1 {
			return fmt.Errorf("%w: entry %d ranked %d", ErrBoardOrder, i, cur.Rank)
		}
	}
	return nil
}

// displayReport logs the run summary.
func displayReport(ctx context.Context, r *Report, verbose bool) {
	log := logger.Get().Named("simulator")

	var eventsPerSecond float64
	if r.Duration > 0 {
		eventsPerSecond = float64(r.EventsSent) / r.Duration.Seconds()
	}
	log.Info(ctx, "simulation finished",
		logger.Int64("assessmentId", r.AssessmentID),
		logger.Int("sessions", len(r.Sessions)),
		logger.Int("eventsSent", r.EventsSent),
		logger.Int("eventsLost", r.EventsLost),
		logger.Duration("duration", r.Duration),
		logger.Float64("eventsPerSecond", eventsPerSecond))

	for _, p := range AllProfiles() {
		log.Info(ctx, "profile mean risk", logger.String("profile", string(p)), logger.Float64("mean", r.MeanScore(p)))
	}

	n := min(boardTopN, len(r.Board))
	for _, e := range r.Board[:n] {
		log.Info(ctx, "risk board",
			logger.Int("rank", e.Rank),
			logger.Int64("sessionId", e.SessionID),
			logger.Int64("userId", e.UserID),
			logger.Int("riskScore", e.RiskScore))
	}

	if verbose {
		for _, s := range r.Sessions {
			log.Info(ctx, "session",
				logger.Int64("sessionId", s.SessionID),
				logger.String("profile", string(s.Profile)),
				logger.Int("sent", s.Sent),
				logger.Int("recorded", s.Recorded),
				logger.Int("riskScore", s.RiskScore))
		}
	}
}
