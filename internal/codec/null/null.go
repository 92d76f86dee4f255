// Package null implements the drop-everything codec used for
// per-client stream composition (a disabled output still needs an
// Encoder to satisfy the session's codec slot). Grounded on the
// original snapcast's server/encoder/null_encoder.hpp.
package null

import (
	"github.com/snapsync/snapsync-go/internal/codec"
	"github.com/snapsync/snapsync-go/internal/format"
)

// Encoder discards all input and emits nothing.
type Encoder struct{}

// NewEncoder creates a null encoder.
func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) Header() []byte { return nil }

func (e *Encoder) Encode(pcm *format.Chunk) ([]codec.EncodedChunk, error) {
	return nil, nil
}

func (e *Encoder) Close() error { return nil }
