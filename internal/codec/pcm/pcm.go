// Package pcm implements the no-op passthrough codec: encode copies
// PCM bytes verbatim, decode is the identity function. Grounded on the
// teacher's pkg/audio/encode/pcm.go and decode/pcm.go, generalized from
// fixed int32-sample conversion to byte-for-byte passthrough so any
// supported bit depth works without a conversion step.
package pcm

import (
	"github.com/snapsync/snapsync-go/internal/codec"
	"github.com/snapsync/snapsync-go/internal/format"
)

// Encoder is the PCM passthrough encoder.
type Encoder struct {
	sampleFormat format.SampleFormat
}

// NewEncoder creates a PCM encoder for the given sample format.
func NewEncoder(f format.SampleFormat) *Encoder {
	return &Encoder{sampleFormat: f}
}

func (e *Encoder) Header() []byte { return nil }

func (e *Encoder) Encode(pcm *format.Chunk) ([]codec.EncodedChunk, error) {
	payload := make([]byte, len(pcm.Payload))
	copy(payload, pcm.Payload)
	return []codec.EncodedChunk{{Payload: payload, Frames: pcm.FrameCount(), Rate: pcm.Format.Rate}}, nil
}

func (e *Encoder) Close() error { return nil }

// Decoder is the PCM passthrough decoder.
type Decoder struct {
	sampleFormat format.SampleFormat
}

// NewDecoder creates a PCM decoder. The sample format must be learned
// via SetHeader before Decode is called; for PCM, SetHeader's header
// bytes are ignored and the caller is expected to have already told
// the decoder its format out of band (the PCM codec carries no header
// of its own, so callers typically call SetFormat directly).
func NewDecoder() *Decoder {
	return &Decoder{}
}

// SetFormat tells the decoder the sample format out of band, since PCM
// carries no codec header on the wire.
func (d *Decoder) SetFormat(f format.SampleFormat) {
	d.sampleFormat = f
}

func (d *Decoder) SetHeader(header []byte) (format.SampleFormat, error) {
	return d.sampleFormat, nil
}

func (d *Decoder) Decode(chunk *format.Chunk) error {
	chunk.Format = d.sampleFormat
	return nil
}

func (d *Decoder) Close() error { return nil }
