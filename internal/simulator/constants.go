package simulator

import "time"

// Default run parameters.
const (
	defaultBaseURL          = "http://localhost:9080"
	defaultSessions         = 30
	defaultEventsPerSession = 40
	defaultWorkers          = 8
	defaultTimeout          = 10 * time.Second
	defaultSettleTimeout    = 30 * time.Second
	defaultInstructorID     = 900
	defaultAdminID          = 1
	defaultFirstStudentID   = 1000
)

// Polling and pacing.
const (
	pollInterval       = 100 * time.Millisecond
	eventSpacingMillis = 250
	directoryPerm      = 0750
	boardTopN          = 10
)
