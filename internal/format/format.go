// Package format holds the audio data model shared between the wire
// protocol, the codecs, and the jitter buffer: sample format, the
// wall-clock timestamp pair, and the PCM chunk with its read cursor.
package format

import "time"

// SampleFormat describes a PCM stream's rate, bit depth, and channel
// count, and the values derived from them.
type SampleFormat struct {
	Rate     uint32
	Bits     uint16
	Channels uint16
}

// SampleSize returns the size in bytes of a single sample. 24-bit audio
// is always carried in a 4-byte container.
func (f SampleFormat) SampleSize() int {
	if f.Bits == 24 {
		return 4
	}
	return int(f.Bits) / 8
}

// FrameSize returns the size in bytes of one frame (one sample per
// channel).
func (f SampleFormat) FrameSize() int {
	return int(f.Channels) * f.SampleSize()
}

// MsRate returns the sample rate expressed in samples per millisecond.
func (f SampleFormat) MsRate() float64 {
	return float64(f.Rate) / 1000.0
}

// DurationToFrames converts a duration to a whole number of frames at
// this format's rate, truncating any remainder.
func (f SampleFormat) DurationToFrames(d time.Duration) int {
	return int(d.Seconds() * float64(f.Rate))
}

// FramesToDuration converts a frame count to a duration at this
// format's rate.
func (f SampleFormat) FramesToDuration(frames int) time.Duration {
	return time.Duration(float64(frames) / float64(f.Rate) * float64(time.Second))
}

// WallClock is a (sec, usec) pair in the server's wall clock, sent on
// the wire as two fixed 32-bit fields so the framing stays stable.
type WallClock struct {
	Sec  int32
	Usec int32
}

// Micros returns the timestamp as a signed count of microseconds since
// the Unix epoch.
func (w WallClock) Micros() int64 {
	return int64(w.Sec)*1_000_000 + int64(w.Usec)
}

// FromMicros builds a WallClock from a signed microsecond count,
// normalizing usec into [0, 1e6).
func FromMicros(us int64) WallClock {
	sec := us / 1_000_000
	usec := us % 1_000_000
	if usec < 0 {
		usec += 1_000_000
		sec--
	}
	return WallClock{Sec: int32(sec), Usec: int32(usec)}
}

// Now returns the current wall-clock time as a WallClock.
func Now() WallClock {
	return FromMicros(time.Now().UnixMicro())
}

// Add returns w + d, normalizing the usec field.
func (w WallClock) Add(d time.Duration) WallClock {
	return FromMicros(w.Micros() + d.Microseconds())
}

// Sub returns the duration w - other.
func (w WallClock) Sub(other WallClock) time.Duration {
	return time.Duration(w.Micros()-other.Micros()) * time.Microsecond
}

// Chunk is a contiguous block of raw PCM frames carrying a start
// timestamp and a read cursor, idx, measured in frames.
//
// Invariants: 0 <= idx <= FrameCount; len(Payload) is an integral
// multiple of Format.FrameSize().
type Chunk struct {
	Timestamp WallClock
	Format    SampleFormat
	Payload   []byte
	Idx       int
}

// FrameCount returns the total number of frames in the chunk's payload.
func (c *Chunk) FrameCount() int {
	fs := c.Format.FrameSize()
	if fs == 0 {
		return 0
	}
	return len(c.Payload) / fs
}

// RemainingFrames returns the number of frames not yet consumed from
// the read cursor.
func (c *Chunk) RemainingFrames() int {
	return c.FrameCount() - c.Idx
}

// Start returns the wall-clock time of the sample at the current read
// cursor.
func (c *Chunk) Start() WallClock {
	return c.Timestamp.Add(c.Format.FramesToDuration(c.Idx))
}

// End returns the wall-clock time just past the chunk's last sample.
func (c *Chunk) End() WallClock {
	return c.Timestamp.Add(c.Format.FramesToDuration(c.FrameCount()))
}

// Seek advances the read cursor by n frames, clamping to
// [0, FrameCount()].
func (c *Chunk) Seek(n int) {
	c.Idx += n
	if c.Idx < 0 {
		c.Idx = 0
	}
	if fc := c.FrameCount(); c.Idx > fc {
		c.Idx = fc
	}
}

// BytesAt returns the byte offset into Payload corresponding to frame
// index idx.
func (c *Chunk) BytesAt(idx int) int {
	return idx * c.Format.FrameSize()
}
