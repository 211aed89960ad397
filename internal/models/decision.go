package models

import "time"

// Movement log actions.
const (
	ActionGranted = "granted"
	ActionDenied  = "denied"
)

// PlateNone is recorded in the movement log when no plate was recognized.
const PlateNone = "NONE"

// Decision is the outcome of one detection event. It is logged, broadcast
// to monitors and then discarded; nothing retains it in memory.
type Decision struct {
	EventID   string    `json:"event_id"`
	Plate     string    `json:"plate,omitempty"`
	Granted   bool      `json:"granted"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// Action returns the movement log action for this decision.
func (d Decision) Action() string {
	if d.Granted {
		return ActionGranted
	}
	return ActionDenied
}
