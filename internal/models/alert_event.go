package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertEvent is the wire record published to the alert event stream when the
// monitor changes state.
type AlertEvent struct {
	// Unique identifier for this event
	ID string `json:"id"`

	// Sensor label the monitor is configured with
	Sensor string `json:"sensor"`

	// State before and after the transition ("BELOW"/"ABOVE")
	From string `json:"from"`
	To   string `json:"to"`

	// Reading that triggered the transition
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`

	// Threshold in effect when the transition fired
	Threshold float64 `json:"threshold"`

	// When the monitor emitted the event
	EmittedAt time.Time `json:"emitted_at"`
}

// NewAlertEvent builds an AlertEvent with a fresh ID and emission timestamp.
func NewAlertEvent(sensor, from, to string, r Reading, threshold float64) *AlertEvent {
	return &AlertEvent{
		ID:         uuid.New().String(),
		Sensor:     sensor,
		From:       from,
		To:         to,
		Value:      r.Value,
		ObservedAt: r.ObservedAt,
		Threshold:  threshold,
		EmittedAt:  time.Now().UTC(),
	}
}
