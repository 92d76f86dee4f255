// Package vorbis stubs the ogg/vorbis codec pair. No pure-Go
// ogg/vorbis encoder or decoder turned up anywhere in the examples
// corpus (the teacher's own decode/opus.go and decode/flac.go show
// the same gap pattern for codecs without a reachable library: a
// stub returning a decode error rather than a fabricated dependency).
// The client accepts "ogg" as a negotiated codec name so the wire enum
// stays complete; NewDecoder succeeds, and the decoder then fails as
// soon as it is handed the codec header. The server has no ogg encoder
// to select.
// See DESIGN.md.
package vorbis

import (
	"github.com/snapsync/snapsync-go/internal/codec"
	"github.com/snapsync/snapsync-go/internal/errs"
	"github.com/snapsync/snapsync-go/internal/format"
)

// Decoder satisfies codec.Decoder but fails every call; its only
// purpose is letting "ogg" appear in a codec list without a type
// assertion panic elsewhere.
type Decoder struct{}

// NewDecoder returns an always-failing ogg/vorbis decoder.
func NewDecoder() *Decoder { return &Decoder{} }

func (d *Decoder) SetHeader(header []byte) (format.SampleFormat, error) {
	return format.SampleFormat{}, errs.Decode("vorbis: decoding is not implemented")
}

func (d *Decoder) Decode(chunk *format.Chunk) error {
	return errs.Decode("vorbis: decoding is not implemented")
}

func (d *Decoder) Close() error { return nil }

var _ codec.Decoder = (*Decoder)(nil)
