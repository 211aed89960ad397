package models

import (
	"time"

	"github.com/google/uuid"
)

// DetectionEvent is a discrete "vehicle in position" signal derived from
// one inbound serial line. It carries no payload beyond its identity and
// the time it was observed.
type DetectionEvent struct {
	ID         string
	ObservedAt time.Time
}

// NewDetectionEvent creates an event stamped with the current time.
func NewDetectionEvent() DetectionEvent {
	return DetectionEvent{
		ID:         uuid.NewString(),
		ObservedAt: time.Now(),
	}
}
