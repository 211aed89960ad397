package models

import "time"

// Frame is an immutable snapshot of a single camera exposure.
// The Data slice must not be modified after the frame is published;
// readers and the publisher share it by reference.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Time
}
