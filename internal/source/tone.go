package source

import (
	"context"
	"math"
	"time"

	"github.com/snapsync/snapsync-go/internal/format"
)

// ToneSource generates a sine wave test tone, used when no real PCM
// source is configured. Grounded on the teacher's
// internal/server/test_tone_source.go, adapted to the Source
// interface (producing timestamped periods on a channel) instead of a
// blocking Read method.
type ToneSource struct {
	sampleFormat format.SampleFormat
	periodMs     int
	frequencyHz  float64
	amplitude    float64

	chunks chan *format.Chunk
	events chan Event

	sampleIndex uint64
}

// NewToneSource creates a 440 Hz (A4) test tone source at the given
// format and period.
func NewToneSource(f format.SampleFormat, periodMs int) *ToneSource {
	return &ToneSource{
		sampleFormat: f,
		periodMs:     periodMs,
		frequencyHz:  440.0,
		amplitude:    0.5,
		chunks:       make(chan *format.Chunk, 8),
		events:       make(chan Event, 8),
	}
}

func (s *ToneSource) SampleFormat() format.SampleFormat { return s.sampleFormat }
func (s *ToneSource) Chunks() <-chan *format.Chunk      { return s.chunks }
func (s *ToneSource) Events() <-chan Event              { return s.events }
func (s *ToneSource) Close() error                      { return nil }

func (s *ToneSource) Run(ctx context.Context) {
	period := time.Duration(s.periodMs) * time.Millisecond
	periodFrames := s.sampleFormat.DurationToFrames(period)
	max := float64(int32(1)<<(s.sampleFormat.Bits-1) - 1)

	select {
	case s.events <- Event{State: Playing}:
	default:
	}
	defer func() {
		select {
		case s.events <- Event{State: Idle}:
		default:
		}
	}()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			samples := make([]int32, periodFrames*int(s.sampleFormat.Channels))
			for i := 0; i < periodFrames; i++ {
				t := float64(s.sampleIndex+uint64(i)) / float64(s.sampleFormat.Rate)
				value := int32(math.Sin(2*math.Pi*s.frequencyHz*t) * max * s.amplitude)
				for ch := 0; ch < int(s.sampleFormat.Channels); ch++ {
					samples[i*int(s.sampleFormat.Channels)+ch] = value
				}
			}
			s.sampleIndex += uint64(periodFrames)

			chunk := &format.Chunk{
				Timestamp: format.Now(),
				Format:    s.sampleFormat,
				Payload:   packSamples(samples, s.sampleFormat),
			}
			select {
			case s.chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}
}

// packSamples writes int32 logical samples into their wire container
// size (16 or 24-in-32 bits), little-endian.
func packSamples(samples []int32, f format.SampleFormat) []byte {
	out := make([]byte, len(samples)*f.SampleSize())
	switch f.Bits {
	case 16:
		for i, v := range samples {
			out[i*2] = byte(v)
			out[i*2+1] = byte(v >> 8)
		}
	case 24:
		for i, v := range samples {
			out[i*4] = byte(v)
			out[i*4+1] = byte(v >> 8)
			out[i*4+2] = byte(v >> 16)
		}
	}
	return out
}
