// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
)

// EventType classifies a behavioral telemetry sample.
type EventType string

// Known behavioral event types emitted by the browser monitor.
const (
	EventFocus     EventType = "focus"
	EventBlur      EventType = "blur"
	EventMouseMove EventType = "mousemove"
	EventTabSwitch EventType = "tabswitch"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventFocus, EventBlur, EventMouseMove, EventTabSwitch:
		return true
	default:
		return false
	}
}

// BehavioralEvent is a single telemetry sample captured in the browser.
type BehavioralEvent struct {
	Type      EventType      `json:"type"`
	Timestamp int64          `json:"timestamp"` // epoch millis
	Data      map[string]any `json:"data"`
}

// Validate checks the fields required for scoring.
func (e BehavioralEvent) Validate() error {
	if e.Type == "" {
		return errors.New("missing event type")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Timestamp <= 0 {
		return errors.New("missing timestamp")
	}
	return nil
}

// Clone returns a copy whose Data map is not shared with e.
func (e BehavioralEvent) Clone() BehavioralEvent {
	out := e
	if e.Data != nil {
		out.Data = make(map[string]any, len(e.Data))
		for k, v := range e.Data {
			out.Data[k] = v
		}
	}
	return out
}

// Envelope is the wire shape of one telemetry message on the ingestion channel.
type Envelope struct {
	SessionID int64           `json:"sessionId"`
	EventID   string          `json:"eventId,omitempty"` // optional, used for idempotency
	Event     BehavioralEvent `json:"event"`
}

// Validate checks that the envelope addresses a session and carries a usable event.
func (e Envelope) Validate() error {
	if e.SessionID <= 0 {
		return errors.New("missing sessionId")
	}
	return e.Event.Validate()
}
