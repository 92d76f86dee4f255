package server

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/snapsync/snapsync-go/internal/format"
	"github.com/snapsync/snapsync-go/internal/netio"
	"github.com/snapsync/snapsync-go/internal/wire"
)

// queueCapacity is the soft cap on a session's outbound FIFO
// (spec.md §4.4).
const queueCapacity = 2000

// writeTimeout is how long a single chunk write may take before the
// session is marked inactive and torn down.
const writeTimeout = 5 * time.Second

// Session is a server-side ClientSession: one TCP connection, its
// negotiated buffer size, and the bounded outbound queue the hub fans
// encoded chunks into. Grounded on the teacher's internal/server/server.go
// Client struct and audio_engine.go's per-client sendChan, generalized
// from a map-of-clients keyed by string ID to the framed netio.Connection
// and the age-based drop rule spec.md §4.4 requires.
type Session struct {
	conn   *netio.Connection
	logger *log.Logger

	id       string
	mac      string
	bufferMs int32

	active atomic.Bool
	queue  chan *EncodedChunk
}

// NewSession wraps an accepted connection. The session starts
// inactive; the hub activates it once Command("startStream") arrives.
// id is a random identifier for log correlation, independent of the
// client-supplied MAC (which is the wire protocol's session identity).
func NewSession(conn *netio.Connection, bufferMs int32, logger *log.Logger) *Session {
	return &Session{
		conn:     conn,
		logger:   logger,
		id:       uuid.NewString(),
		bufferMs: bufferMs,
		queue:    make(chan *EncodedChunk, queueCapacity),
	}
}

func (s *Session) ID() string                    { return s.id }
func (s *Session) Mac() string                   { return s.mac }
func (s *Session) SetMac(mac string)             { s.mac = mac }
func (s *Session) StreamActive() bool            { return s.active.Load() }
func (s *Session) Activate()                     { s.active.Store(true) }
func (s *Session) Deactivate()                   { s.active.Store(false) }
func (s *Session) Connection() *netio.Connection { return s.conn }

// Enqueue offers chunk to the session's outbound queue by shared
// reference. If the queue is at its soft cap, the newest chunk is
// dropped rather than blocking the hub — age-based dropping in the
// writer loop is the steady-state backpressure; this cap is the
// safety net against unbounded growth.
func (s *Session) Enqueue(chunk *EncodedChunk) {
	select {
	case s.queue <- chunk:
	default:
		s.logger.Debug("session queue full, dropping chunk", "mac", s.mac)
	}
}

// RunWriter drains the session's queue, dropping chunks whose age
// exceeds bufferMs and writing the rest as WireChunk messages. It
// returns when ctx is cancelled or a write fails/times out.
func (s *Session) RunWriter(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.conn.Done():
			return
		case chunk := <-s.queue:
			now := format.Now()
			if chunk.Age(now) > int64(s.bufferMs)*1000 {
				continue
			}
			payload := wire.WireChunkMsg{Timestamp: chunk.Timestamp, Payload: chunk.Payload}.Marshal()
			if err := s.sendWithTimeout(wire.Header{Type: wire.TypeWireChunk}, payload); err != nil {
				s.logger.Debug("session write failed, deactivating", "mac", s.mac, "err", err)
				s.Deactivate()
				s.conn.Close()
				return
			}
		}
	}
}

func (s *Session) sendWithTimeout(header wire.Header, payload []byte) error {
	done := make(chan error, 1)
	go func() { done <- s.conn.Send(header, payload) }()
	select {
	case err := <-done:
		return err
	case <-time.After(writeTimeout):
		s.conn.Close()
		return context.DeadlineExceeded
	}
}
