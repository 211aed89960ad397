package camera

import (
	"sync"

	"gatekeeper/internal/models"
)

// Buffer is a single-slot holder of the most recent camera frame. Writers
// overwrite, never append; readers see either "empty" or the most recently
// completed frame, never a partial one. Frames are immutable after publish,
// so the slot hands out the stored pointer directly.
type Buffer struct {
	mu    sync.RWMutex
	frame *models.Frame
}

// NewBuffer creates an empty frame buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Publish replaces the buffer contents with the given frame. The frame's
// Data must not be modified by the caller after publishing.
func (b *Buffer) Publish(frame *models.Frame) {
	b.mu.Lock()
	b.frame = frame
	b.mu.Unlock()
}

// Snapshot returns the most recent frame as of call time, or (nil, false)
// when no frame has been published yet. The returned frame may be up to one
// capture interval older than the call; the camera refreshes far faster than
// the event cadence, so this staleness bound is acceptable.
func (b *Buffer) Snapshot() (*models.Frame, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.frame == nil {
		return nil, false
	}
	return b.frame, true
}
