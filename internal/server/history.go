package server

import "sync"

// FrameHistory is a thread-safe ring of the most recent frames for one
// session. When the ring is full the oldest frame is discarded. It backs
// the replay a console receives on attach; frames are never written to
// disk and no delivery guarantee is implied.
type FrameHistory struct {
	frames   [][]byte
	capacity int
	mu       sync.RWMutex
}

// NewFrameHistory creates a FrameHistory holding up to capacity frames.
// A capacity below 1 defaults to 1.
func NewFrameHistory(capacity int) *FrameHistory {
	if capacity <= 0 {
		capacity = 1
	}
	return &FrameHistory{
		frames:   make([][]byte, 0, capacity),
		capacity: capacity,
	}
}

// Append adds a frame, discarding the oldest if the ring is full.
func (h *FrameHistory) Append(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.frames) == h.capacity {
		copy(h.frames, h.frames[1:])
		h.frames[len(h.frames)-1] = frame
		return
	}
	h.frames = append(h.frames, frame)
}

// Snapshot returns the buffered frames oldest-first. The returned slice
// is a copy and safe to use without the lock.
func (h *FrameHistory) Snapshot() [][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.frames) == 0 {
		return nil
	}
	out := make([][]byte, len(h.frames))
	copy(out, h.frames)
	return out
}

// Len returns the number of buffered frames.
func (h *FrameHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.frames)
}

// Cap returns the ring capacity.
func (h *FrameHistory) Cap() int {
	return h.capacity
}
