// Package opus implements the Opus codec pair. Opus only accepts
// 5/10/20/40/60 ms periods at its forced 48 kHz stereo operating rate
// (spec.md §4.2); the encoder greedily splits input into the largest
// encodable period that fits and carries any remainder (<10 ms) in a
// residual buffer prepended to the next input, and resamples non-48kHz
// input internally. Grounded on the teacher's internal/server/opus_encoder.go
// and pkg/audio/{encode,decode}/opus.go, both built on gopkg.in/hraban/opus.v2.
package opus

import (
	"fmt"

	"github.com/snapsync/snapsync-go/internal/codec"
	"github.com/snapsync/snapsync-go/internal/format"
	"github.com/snapsync/snapsync-go/internal/resample"
	goopus "gopkg.in/hraban/opus.v2"
)

// TargetRate and TargetChannels are what Opus always operates at; the
// encoder duplicates mono input to stereo and resamples non-48kHz
// input. Input with more than two channels is not downmixed.
const (
	TargetRate     = 48000
	TargetChannels = 2
)

// Supported frame durations in samples-per-channel at 48 kHz. 5ms
// (240) is deliberately excluded: the encoder's greedy split stops at
// 10ms so any sub-10ms remainder is retained in e.residual rather than
// emitted as its own tiny frame, per spec.md §4.2.
var frameSizes = []int{2880, 1920, 960, 480} // 60, 40, 20, 10 ms, largest first

// BitrateAuto and BitrateMax select Opus's automatic or maximum
// bitrate modes instead of a fixed bps value.
const (
	BitrateAuto = -1000
	BitrateMax  = -1
)

// Options configures the encoder.
type Options struct {
	// Bitrate in bits/sec, 6000..512000, or BitrateAuto/BitrateMax.
	Bitrate int
	// Complexity 1-10; 0 leaves the library default.
	Complexity int
}

// Encoder is the Opus encoder.
type Encoder struct {
	enc        *goopus.Encoder
	sourceRate int
	channels   int
	resampler  *resample.Resampler
	residual   []int16 // leftover samples (<10ms) at 48kHz stereo, interleaved
}

// NewEncoder creates an Opus encoder for a source of the given rate
// and channel count, forcing Opus's own 48kHz stereo operating point.
func NewEncoder(sourceRate, channels int, opts Options) (*Encoder, error) {
	enc, err := goopus.NewEncoder(TargetRate, TargetChannels, goopus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("opus: new encoder: %w", err)
	}

	switch {
	case opts.Bitrate == BitrateAuto:
		_ = enc.SetBitrateToAuto()
	case opts.Bitrate == BitrateMax:
		_ = enc.SetBitrateToMax()
	case opts.Bitrate > 0:
		_ = enc.SetBitrate(opts.Bitrate)
	}
	if opts.Complexity > 0 {
		_ = enc.SetComplexity(opts.Complexity)
	}

	e := &Encoder{
		enc:        enc,
		sourceRate: sourceRate,
		channels:   channels,
	}
	if sourceRate != TargetRate || channels != TargetChannels {
		resampleChannels := channels
		if channels == 1 {
			// Encode upmixes mono to stereo before resampling.
			resampleChannels = TargetChannels
		}
		e.resampler = resample.New(sourceRate, TargetRate, resampleChannels)
	}
	return e, nil
}

func (e *Encoder) Header() []byte { return nil }

// Encode greedily splits the conditioned input into the largest
// encodable Opus frame sizes, emitting one EncodedChunk per frame and
// carrying any sub-10ms remainder forward in e.residual.
func (e *Encoder) Encode(pcm *format.Chunk) ([]codec.EncodedChunk, error) {
	samples16 := bytesToInt16(pcm.Payload, pcm.Format.Bits)

	if e.channels == 1 && TargetChannels == 2 {
		samples16 = monoToStereo(samples16)
	}
	if e.resampler != nil {
		samples16 = e.resampler.Resample(samples16)
	}

	buf := append(e.residual, samples16...)
	e.residual = nil

	var out []codec.EncodedChunk
	frames := len(buf) / TargetChannels
	offset := 0

	for frames-offset > 0 {
		size := largestFittingFrame(frames - offset)
		if size == 0 {
			break
		}
		window := buf[offset*TargetChannels : (offset+size)*TargetChannels]
		payload := make([]byte, 4000)
		n, err := e.enc.Encode(window, payload)
		if err != nil {
			return nil, fmt.Errorf("opus: encode: %w", err)
		}
		out = append(out, codec.EncodedChunk{Payload: payload[:n], Frames: size, Rate: TargetRate})
		offset += size
	}

	e.residual = append(e.residual, buf[offset*TargetChannels:]...)
	return out, nil
}

func (e *Encoder) Close() error { return nil }

// largestFittingFrame returns the largest supported Opus frame size
// (in samples-per-channel) that is <= available, or 0 if none fits.
func largestFittingFrame(available int) int {
	for _, size := range frameSizes {
		if size <= available {
			return size
		}
	}
	return 0
}

// Decoder is the Opus decoder.
type Decoder struct {
	dec      *goopus.Decoder
	channels int
}

// NewDecoder creates an Opus decoder for the given channel count. Opus
// decode always happens at 48 kHz.
func NewDecoder(channels int) (*Decoder, error) {
	dec, err := goopus.NewDecoder(TargetRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus: new decoder: %w", err)
	}
	return &Decoder{dec: dec, channels: channels}, nil
}

func (d *Decoder) SetHeader(header []byte) (format.SampleFormat, error) {
	return format.SampleFormat{Rate: TargetRate, Bits: 16, Channels: uint16(d.channels)}, nil
}

func (d *Decoder) Decode(chunk *format.Chunk) error {
	pcm := make([]int16, 5760*d.channels) // max frame size (120ms @ 48kHz)
	n, err := d.dec.Decode(chunk.Payload, pcm)
	if err != nil {
		return fmt.Errorf("opus: decode: %w", err)
	}
	chunk.Payload = int16ToBytes(pcm[:n*d.channels])
	chunk.Format = format.SampleFormat{Rate: TargetRate, Bits: 16, Channels: uint16(d.channels)}
	chunk.Idx = 0
	return nil
}

func (d *Decoder) Close() error { return nil }

func bytesToInt16(data []byte, bits uint16) []int16 {
	switch bits {
	case 24:
		n := len(data) / 4
		out := make([]int16, n)
		for i := 0; i < n; i++ {
			// top 24 bits of the 32-bit container carry the data; take
			// the most significant 16 bits as the down-converted sample.
			out[i] = int16(int32(data[i*4+2]) | int32(data[i*4+3])<<8)
		}
		return out
	default:
		n := len(data) / 2
		out := make([]int16, n)
		for i := 0; i < n; i++ {
			out[i] = int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
		}
		return out
	}
}

func int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func monoToStereo(mono []int16) []int16 {
	out := make([]int16, len(mono)*2)
	for i, s := range mono {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}
