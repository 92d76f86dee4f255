// Package sink implements the audio output abstraction of spec.md
// §4.8: init against a negotiated sample format, a period-paced pull
// callback, and post-jitter-buffer volume/mute. Grounded on the
// teacher's pkg/audio/output/oto.go persistent-pipe-player pattern,
// built on github.com/ebitengine/oto/v3.
package sink

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
	"github.com/snapsync/snapsync-go/internal/errs"
	"github.com/snapsync/snapsync-go/internal/format"
)

// periodDuration is the pull callback's cadence. oto has no native
// period-size concept (it is fed through a Writer), so this picks a
// period in the 480-4800 frame range spec.md §4.8 describes for a
// typical sound card at common sample rates.
const periodDuration = 20 * time.Millisecond

// xrunBudget is how long a streak of failed pulls is tolerated before
// the sink reports itself broken, per spec.md §4.8's "five consecutive
// seconds" rule.
const xrunBudget = 5 * time.Second

// Oto is the ebitengine/oto-backed sink. It only supports 16-bit
// output, matching oto's own Format options; the jitter buffer emits
// the negotiated sample format's native container, so Init reports the
// period in that format's frames and Run narrows 24- and 32-bit samples
// to int16 on the way out (other depths play as silence).
type Oto struct {
	logger *log.Logger

	ctx    *oto.Context
	player *oto.Player
	writer *io.PipeWriter

	sampleFormat format.SampleFormat
	periodFrames int

	volumeBits uint64 // math.Float64bits, atomic
	muted      atomic.Bool
}

// New creates an unopened sink.
func New(logger *log.Logger) *Oto {
	s := &Oto{logger: logger}
	s.SetVolume(1.0)
	return s
}

// Init opens the oto context for f and returns the pull period in
// frames.
func (s *Oto) Init(f format.SampleFormat) (int, error) {
	op := &oto.NewContextOptions{
		SampleRate:   int(f.Rate),
		ChannelCount: int(f.Channels),
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return 0, errs.Sink("oto: new context: %w", err)
	}
	<-ready

	r, w := io.Pipe()
	player := ctx.NewPlayer(r)
	player.Play()

	s.ctx = ctx
	s.player = player
	s.writer = w
	s.sampleFormat = f
	s.periodFrames = f.DurationToFrames(periodDuration)
	return s.periodFrames, nil
}

// Run pulls one period of PCM at a time from pull, applies volume, and
// writes it to the device, pacing itself to periodDuration. It returns
// when ctx is cancelled or a streak of failed writes exceeds xrunBudget.
func (s *Oto) Run(ctx context.Context, pull func(buf []byte, playoutDelay time.Duration)) error {
	frameSize := s.sampleFormat.FrameSize()
	buf := make([]byte, s.periodFrames*frameSize)
	out := make([]byte, s.periodFrames*int(s.sampleFormat.Channels)*2)

	ticker := time.NewTicker(periodDuration)
	defer ticker.Stop()

	var failingSince time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pull(buf, periodDuration)
			s.render(buf, out)

			if _, err := s.writer.Write(out); err != nil {
				if failingSince.IsZero() {
					failingSince = time.Now()
				}
				s.logger.Warn("sink write failed", "err", err)
				if time.Since(failingSince) > xrunBudget {
					return errs.Sink("write failures exceeded %s: %w", xrunBudget, err)
				}
				continue
			}
			failingSince = time.Time{}
		}
	}
}

// render applies the volume curve to buf's native samples and packs
// the result as 16-bit little-endian into out, the format oto expects.
func (s *Oto) render(buf, out []byte) {
	mult := s.volumeMultiplier()
	bits := s.sampleFormat.Bits

	for i, o := 0, 0; i+s.sampleFormat.SampleSize() <= len(buf); i, o = i+s.sampleFormat.SampleSize(), o+2 {
		var sample int32
		switch bits {
		case 16:
			sample = int32(int16(binary.LittleEndian.Uint16(buf[i : i+2])))
		case 24:
			raw := int32(buf[i]) | int32(buf[i+1])<<8 | int32(buf[i+2])<<16
			sample = raw << 8 >> 8 // sign-extend 24 -> 32
		case 32:
			sample = int32(binary.LittleEndian.Uint32(buf[i : i+4]))
		default:
			sample = 0
		}

		scaled := int64(float64(sample) * mult)
		// narrow to the int16 oto expects, saturating rather than wrapping
		if bits != 16 {
			scaled >>= uint(bits - 16)
		}
		if scaled > math.MaxInt16 {
			scaled = math.MaxInt16
		} else if scaled < math.MinInt16 {
			scaled = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[o:o+2], uint16(int16(scaled)))
	}
}

// SetVolume sets the output level in [0,1], applying the perceptual
// curve (10^v - 1) / (10 - 1) spec.md §4.8 specifies.
func (s *Oto) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	curved := (math.Pow(10, v) - 1) / (10 - 1)
	atomic.StoreUint64(&s.volumeBits, math.Float64bits(curved))
}

func (s *Oto) volumeMultiplier() float64 {
	if s.muted.Load() {
		return 0
	}
	return math.Float64frombits(atomic.LoadUint64(&s.volumeBits))
}

// SetMute toggles mute, which overrides SetVolume to silence.
func (s *Oto) SetMute(m bool) { s.muted.Store(m) }

// Close releases the player, pipe, and oto context.
func (s *Oto) Close() error {
	if s.writer != nil {
		s.writer.Close()
	}
	if s.player != nil {
		s.player.Close()
	}
	if s.ctx != nil {
		s.ctx.Suspend()
	}
	return nil
}
