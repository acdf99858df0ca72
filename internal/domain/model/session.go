package model

import "time"

// Role is the caller role supplied by the upstream identity layer.
type Role string

// Supported roles.
const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleInstructor || r == RoleAdmin
}

// Identity is the authenticated caller.
type Identity struct {
	UserID int64
	Role   Role
}

// Session is one student's monitored attempt at an assessment.
type Session struct {
	ID             int64             `json:"id"`
	UserID         int64             `json:"userId"`
	AssessmentID   int64             `json:"assessmentId"`
	StartTime      time.Time         `json:"startTime"`
	EndTime        *time.Time        `json:"endTime"`
	ConsentGiven   bool              `json:"consentGiven"`
	BehavioralData []BehavioralEvent `json:"behavioralData"`
	RiskScore      int               `json:"riskScore"`
}

// Ended reports whether the session has an end time.
func (s Session) Ended() bool {
	return s.EndTime != nil
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	if s.EndTime != nil {
		t := *s.EndTime
		out.EndTime = &t
	}
	out.BehavioralData = make([]BehavioralEvent, len(s.BehavioralData))
	for i, e := range s.BehavioralData {
		out.BehavioralData[i] = e.Clone()
	}
	return out
}

// NewSession carries the fields a caller supplies when starting a session.
type NewSession struct {
	AssessmentID int64
	UserID       int64
	StartTime    time.Time
	ConsentGiven bool
}

// SessionPatch is a shallow merge-update; nil fields are left unchanged.
type SessionPatch struct {
	EndTime   *time.Time
	RiskScore *int
}

// Assessment is a timed test authored by an instructor.
type Assessment struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Duration     int    `json:"duration"` // minutes
	InstructorID int64  `json:"instructorId"`
	Active       bool   `json:"active"`
}

// AssessmentPatch is a shallow merge-update; nil fields are left unchanged.
type AssessmentPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Duration    *int    `json:"duration"`
	Active      *bool   `json:"active"`
}
