package service

import (
	"context"
	"fmt"

	"github.com/okian/proctor/internal/domain/types"
)

// RiskBoard returns the limit riskiest sessions. limit is capped by the
// configured maximum.
func (s *Service) RiskBoard(ctx context.Context, limit int) ([]types.RiskEntry, error) {
	if limit > s.maxBoardLimit {
		limit = s.maxBoardLimit
	}
	entries, err := s.board.TopN(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("risk board: %w", err)
	}
	return entries, nil
}

// SessionRisk returns the board entry of one session.
func (s *Service) SessionRisk(ctx context.Context, sessionID int64) (types.RiskEntry, error) {
	e, err := s.board.Rank(ctx, sessionID)
	if err != nil {
		return types.RiskEntry{}, fmt.Errorf("session risk %d: %w", sessionID, err)
	}
	return e, nil
}
