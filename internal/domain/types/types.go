// Package types contains common types used across the application
package types

// RiskEntry represents one row of the risk board
type RiskEntry struct {
	Rank         int   `json:"rank"`
	SessionID    int64 `json:"sessionId"`
	UserID       int64 `json:"userId"`
	AssessmentID int64 `json:"assessmentId"`
	RiskScore    int   `json:"riskScore"`
	Ended        bool  `json:"ended"`
}
