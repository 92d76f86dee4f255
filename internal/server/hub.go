package server

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/snapsync/snapsync-go/internal/codec"
	"github.com/snapsync/snapsync-go/internal/format"
)

// Hub is the server stream hub (spec.md §4.4): it owns the active
// encoder's current sample format and codec header, and fans every
// newly encoded chunk out by shared reference to each session whose
// stream is active. Grounded on the teacher's audio_engine.go
// clients-map-plus-broadcast shape, generalized from a single
// test-tone producer to an arbitrary source/encoder pipeline.
type Hub struct {
	logger *log.Logger

	mu           sync.RWMutex
	sessions     map[*Session]struct{}
	sampleFormat format.SampleFormat
	codecName    codec.Name
	codecHeader  []byte
	bufferMs     int32
}

// NewHub creates a hub with the given negotiated buffer size.
func NewHub(bufferMs int32, logger *log.Logger) *Hub {
	return &Hub{
		logger:   logger,
		sessions: make(map[*Session]struct{}),
		bufferMs: bufferMs,
	}
}

// SetStreamInfo records the active encoder's format, name, and codec
// header, answered verbatim to Request messages from sessions that
// join mid-stream.
func (h *Hub) SetStreamInfo(f format.SampleFormat, name codec.Name, header []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sampleFormat = f
	h.codecName = name
	h.codecHeader = header
}

// StreamInfo returns the hub's current sample format, codec name, and
// codec header.
func (h *Hub) StreamInfo() (format.SampleFormat, codec.Name, []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sampleFormat, h.codecName, h.codecHeader
}

// BufferMs returns the hub's negotiated end-to-end latency.
func (h *Hub) BufferMs() int32 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.bufferMs
}

// AddSession registers a session with the hub.
func (h *Hub) AddSession(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = struct{}{}
}

// RemoveSession unregisters a session, e.g. after its connection is
// torn down.
func (h *Hub) RemoveSession(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s)
}

// Sessions returns a snapshot of currently registered sessions.
func (h *Hub) Sessions() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// Broadcast fans chunk out by shared reference to every session whose
// stream_active flag is set.
func (h *Hub) Broadcast(chunk *EncodedChunk) {
	for _, s := range h.Sessions() {
		if s.StreamActive() {
			s.Enqueue(chunk)
		}
	}
}
