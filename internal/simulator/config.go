// Package simulator drives a running proctor service end to end: it authors
// and activates an assessment, opens student sessions, streams synthetic
// behavioral telemetry over the WebSocket channel and reports the resulting
// risk scores.
package simulator

import (
	"time"

	"github.com/okian/proctor/internal/domain/types"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL          string        // Base URL of the service
	Sessions         int           // Number of student sessions to open
	EventsPerSession int           // Events streamed per session
	Profiles         []Profile     // Profiles assigned round-robin to sessions
	Workers          int           // Concurrent session streams
	Timeout          time.Duration // HTTP request timeout
	SettleTimeout    time.Duration // How long to wait for events to be recorded
	InstructorID     int64         // Identity used to author the assessment
	AdminID          int64         // Identity used to read the risk board
	FirstStudentID   int64         // Student i uses FirstStudentID+i
	Seed             uint64        // Seed for event generation
	OutputFile       string        // Optional JSON dump of generated envelopes
	Verbose          bool          // Log every session result
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Sessions <= 0 {
		c.Sessions = defaultSessions
	}
	if c.EventsPerSession <= 0 {
		c.EventsPerSession = defaultEventsPerSession
	}
	if len(c.Profiles) == 0 {
		c.Profiles = AllProfiles()
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = defaultSettleTimeout
	}
	if c.InstructorID <= 0 {
		c.InstructorID = defaultInstructorID
	}
	if c.AdminID <= 0 {
		c.AdminID = defaultAdminID
	}
	if c.FirstStudentID <= 0 {
		c.FirstStudentID = defaultFirstStudentID
	}
	return c
}

// SessionResult is the outcome for one simulated student.
type SessionResult struct {
	SessionID int64   `json:"sessionId"`
	UserID    int64   `json:"userId"`
	Profile   Profile `json:"profile"`
	Sent      int     `json:"sent"`
	Recorded  int     `json:"recorded"`
	RiskScore int     `json:"riskScore"`
}

// Report summarizes a simulation run.
type Report struct {
	AssessmentID int64             `json:"assessmentId"`
	Sessions     []SessionResult   `json:"sessions"`
	Board        []types.RiskEntry `json:"board"`
	EventsSent   int               `json:"eventsSent"`
	EventsLost   int               `json:"eventsLost"`
	StartTime    time.Time         `json:"startTime"`
	Duration     time.Duration     `json:"duration"`
}

// MeanScore returns the average risk score of sessions with profile p.
func (r *Report) MeanScore(p Profile) float64 {
	var sum, n int
	for _, s := range r.Sessions {
		if s.Profile == p {
			sum += s.RiskScore
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}
