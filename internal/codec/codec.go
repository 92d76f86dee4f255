// Package codec defines the Encoder/Decoder capability set used by the
// concrete pcm, flac, opus, vorbis, and null codecs (spec.md §4.2).
package codec

import "github.com/snapsync/snapsync-go/internal/format"

// Encoder turns PCM periods into self-describing encoded chunks plus a
// one-time codec header.
type Encoder interface {
	// Header returns the codec header bytes to send once, before any
	// chunk, or nil if this codec has none.
	Header() []byte

	// Encode consumes one PCM period and returns zero or more encoded
	// payloads. Each returned payload corresponds to one outbound
	// WireChunk; the caller stamps its timestamp using the duration
	// reported alongside it.
	Encode(pcm *format.Chunk) ([]EncodedChunk, error)

	// Close releases encoder resources.
	Close() error
}

// EncodedChunk is one unit of encoder output: a payload ready to ship
// on the wire, plus the frame count and the rate it was encoded at so
// the caller can advance a running timestamp across multiple chunks
// produced from one PCM period (format.SampleFormat{Rate:
// Rate}.FramesToDuration(Frames)). Rate is the encoder's own output
// rate, which for Opus is its forced 48kHz operating point rather than
// the source format's rate.
type EncodedChunk struct {
	Payload []byte
	Frames  int
	Rate    uint32
}

// Decoder is the inverse of Encoder, run on the client.
type Decoder interface {
	// SetHeader processes the codec header and returns the effective
	// sample format the decoded stream will have.
	SetHeader(header []byte) (format.SampleFormat, error)

	// Decode replaces chunk's payload with decoded PCM in place and
	// shifts its timestamp backward by the decoder's internal preroll,
	// so the chunk's start time lines up with the first emitted sample.
	Decode(chunk *format.Chunk) error

	// Close releases decoder resources.
	Close() error
}

// Name identifies a codec by its ASCII wire name.
type Name string

const (
	PCM    Name = "pcm"
	FLAC   Name = "flac"
	Ogg    Name = "ogg"
	Opus   Name = "opus"
	Null   Name = "null"
)
