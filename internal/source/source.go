// Package source implements the PCM source abstraction (spec.md §4.3):
// a poll-driven producer that paces itself to real time, reading one
// period at a time from an underlying byte stream and reporting
// resync events when a read runs long. Grounded on the teacher's
// internal/server/audio_source.go (AudioSource interface, MP3/FLAC
// file readers) and internal/server/audio_engine.go's ticker-driven
// production loop, generalized from a file-only reader to the pipe /
// looped-file / subprocess trio spec.md names.
package source

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/snapsync/snapsync-go/internal/errs"
	"github.com/snapsync/snapsync-go/internal/format"
)

// State is the source's published lifecycle state.
type State int

const (
	Idle State = iota
	Playing
	Disabled
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Disabled:
		return "disabled"
	default:
		return "idle"
	}
}

// Event reports a state transition or a resync (the source's read for
// one period finished later than the period's nominal duration by
// more than resyncThreshold).
type Event struct {
	State     State
	ResyncMs  float64
}

// Source produces timestamped PCM periods at real time.
type Source interface {
	SampleFormat() format.SampleFormat
	// Run drives the source until ctx is cancelled or the underlying
	// reader fails permanently. It is meant to run in its own
	// goroutine; chunks and events are delivered on the channels
	// returned by Chunks/Events.
	Run(ctx context.Context)
	Chunks() <-chan *format.Chunk
	Events() <-chan Event
	Close() error
}

const resyncThreshold = 5 * time.Millisecond

// reader is the minimal capability a concrete source transport needs:
// read exactly len(buf) bytes, blocking, or report that the stream
// ended (SourceError, caller decides whether to loop or go Idle).
type reader interface {
	io.ReadCloser
}

// stream is the shared poll-driven engine behind NewPipeSource,
// NewFileSource, NewProcessSource and NewMP3FileSource: it owns the pacing clock and resync detection,
// and differs between transports only in how end-of-stream is handled.
type stream struct {
	r            reader
	sampleFormat format.SampleFormat
	periodMs     int
	onEOF        func() (reader, error) // nil: EOF is terminal, go Idle
	logger       *log.Logger

	chunks chan *format.Chunk
	events chan Event
}

func newStream(r reader, f format.SampleFormat, periodMs int, onEOF func() (reader, error), logger *log.Logger) *stream {
	return &stream{
		r:            r,
		sampleFormat: f,
		periodMs:     periodMs,
		onEOF:        onEOF,
		logger:       logger,
		chunks:       make(chan *format.Chunk, 8),
		events:       make(chan Event, 8),
	}
}

func (s *stream) SampleFormat() format.SampleFormat { return s.sampleFormat }
func (s *stream) Chunks() <-chan *format.Chunk      { return s.chunks }
func (s *stream) Events() <-chan Event              { return s.events }
func (s *stream) Close() error                      { return s.r.Close() }

func (s *stream) publish(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

// Run reads one period_ms worth of PCM per iteration, pacing to real
// time: next_tick is computed before the blocking read, and if the
// read completes more than resyncThreshold late, a resync event is
// published carrying the overrun.
func (s *stream) Run(ctx context.Context) {
	period := time.Duration(s.periodMs) * time.Millisecond
	frameSize := s.sampleFormat.FrameSize()
	periodFrames := s.sampleFormat.DurationToFrames(period)
	bufSize := periodFrames * frameSize

	s.publish(Event{State: Playing})
	defer s.publish(Event{State: Idle})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		nextTick := time.Now().Add(period)
		buf := make([]byte, bufSize)
		_, err := io.ReadFull(s.r, buf)
		if err != nil {
			if s.onEOF == nil {
				s.publish(Event{State: Idle})
				return
			}
			newR, rerr := s.onEOF()
			if rerr != nil {
				s.logger.Error("source reopen failed", "err", errs.Source("reopen: %v", rerr))
				s.publish(Event{State: Idle})
				return
			}
			s.r = newR
			continue
		}

		if overrun := time.Since(nextTick); overrun > resyncThreshold {
			s.publish(Event{ResyncMs: float64(overrun.Microseconds()) / 1000.0})
		}

		chunk := &format.Chunk{
			Timestamp: format.Now(),
			Format:    s.sampleFormat,
			Payload:   buf,
		}
		select {
		case s.chunks <- chunk:
		case <-ctx.Done():
			return
		}

		if sleep := time.Until(nextTick); sleep > 0 {
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return
			}
		}
	}
}
