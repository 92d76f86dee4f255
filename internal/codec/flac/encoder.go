// Package flac implements the FLAC codec pair. mewkiz/flac, the only
// FLAC library reachable from the examples, is decode-only, so the
// encoder here writes frames with verbatim (uncompressed) subframes: a
// valid, lossless FLAC bitstream that any conforming decoder — this
// package's own Decoder, or mewkiz/flac's Stream — reads back exactly,
// at a lower compression ratio than libFLAC's predictive subframes.
// Grounded on the frame/subframe layout in original_source's
// server/encoder/flacEncoder.cpp and the FLAC stream format it targets,
// and on the teacher's internal/server/audio_source.go for the
// mewkiz/flac decode-side API shape.
package flac

import (
	"fmt"

	"github.com/snapsync/snapsync-go/internal/codec"
	"github.com/snapsync/snapsync-go/internal/format"
)

const streamMarker = "fLaC"

// blockSizeCode 0111 means "16-bit (blocksize-1) follows the header"
// (0110 is the 8-bit form); we always use the 16-bit variant so block
// sizes up to 65536 are representable without a lookup table.
const blockSizeCode = 0b0111

// sampleRateCode 0000 means "get the rate from STREAMINFO", which
// every decoder has after reading the codec header once.
const sampleRateCode = 0b0000

// Encoder emits a FLAC codec header (STREAMINFO) once, then one FLAC
// frame per chunk.
type Encoder struct {
	sampleFormat format.SampleFormat
	compression  int // 0-8, accepted for API compatibility; verbatim subframes ignore it
	header       []byte
	frameNum     uint64
}

// NewEncoder creates a FLAC encoder for the given format and
// compression level (0-8; clamped, currently has no effect on the
// verbatim-subframe encoding this package produces).
func NewEncoder(f format.SampleFormat, compression int) (*Encoder, error) {
	if f.Channels == 0 || f.Channels > 8 {
		return nil, fmt.Errorf("flac: unsupported channel count %d", f.Channels)
	}
	if compression < 0 {
		compression = 0
	}
	if compression > 8 {
		compression = 8
	}
	return &Encoder{
		sampleFormat: f,
		compression:  compression,
		header:       buildStreamInfo(f),
	}, nil
}

// Header returns the FLAC stream marker plus the STREAMINFO metadata
// block. Per the FLAC streaming rule, this is sent once as a
// CodecHeader message before any WireChunk.
func (e *Encoder) Header() []byte { return e.header }

// Encode writes the chunk's frames as a single FLAC frame with
// verbatim subframes, one per channel.
func (e *Encoder) Encode(pcm *format.Chunk) ([]codec.EncodedChunk, error) {
	blockSize := pcm.FrameCount()
	if blockSize == 0 {
		return nil, nil
	}
	samples := bytesToSamples(pcm.Payload, e.sampleFormat)
	planes := deinterleave(samples, int(e.sampleFormat.Channels))

	frame := e.encodeFrame(planes, blockSize)
	e.frameNum++

	return []codec.EncodedChunk{{Payload: frame, Frames: blockSize, Rate: e.sampleFormat.Rate}}, nil
}

func (e *Encoder) encodeFrame(planes [][]int32, blockSize int) []byte {
	var hdr bitWriter
	hdr.writeBits(0x3FFE, 14) // sync code
	hdr.writeBits(0, 1)       // reserved
	hdr.writeBits(0, 1)       // fixed blocksize
	hdr.writeBits(blockSizeCode, 4)
	hdr.writeBits(sampleRateCode, 4)
	hdr.writeBits(uint64(e.sampleFormat.Channels-1), 4)
	hdr.writeBits(uint64(sampleSizeCode(e.sampleFormat.Bits)), 3)
	hdr.writeBits(0, 1) // reserved

	headerBytes := hdr.bytes()
	headerBytes = append(headerBytes, utf8Encode(e.frameNum)...)
	// blockSizeCode 0111: 16-bit (blocksize-1) follows.
	headerBytes = append(headerBytes, byte((blockSize-1)>>8), byte(blockSize-1))
	headerBytes = append(headerBytes, crc8(headerBytes))

	var body bitWriter
	for _, plane := range planes {
		body.writeBits(0b000001<<1, 8) // subframe header: VERBATIM, no wasted bits
		for _, s := range plane {
			body.writeSigned(s, uint(e.sampleFormat.Bits))
		}
	}
	bodyBytes := body.bytes()

	frame := append(headerBytes, bodyBytes...)
	checksum := crc16(frame)
	frame = append(frame, byte(checksum>>8), byte(checksum))
	return frame
}

func (e *Encoder) Close() error { return nil }

// sampleSizeCode maps a bit depth to FLAC's 3-bit sample-size field,
// falling back to "get from STREAMINFO" for depths without a code.
func sampleSizeCode(bits uint16) int {
	switch bits {
	case 8:
		return 0b001
	case 12:
		return 0b010
	case 16:
		return 0b100
	case 20:
		return 0b101
	case 24:
		return 0b110
	default:
		return 0b000
	}
}

// utf8Encode encodes n using FLAC's UTF-8-like variable-length scheme,
// the same structure as UTF-8 continuation bytes extended to 7 bytes
// for frame/sample numbers up to 36 bits.
func utf8Encode(n uint64) []byte {
	switch {
	case n < 0x80:
		return []byte{byte(n)}
	case n < 0x800:
		return []byte{0xC0 | byte(n>>6), 0x80 | byte(n&0x3F)}
	case n < 0x10000:
		return []byte{0xE0 | byte(n>>12), 0x80 | byte((n>>6)&0x3F), 0x80 | byte(n&0x3F)}
	case n < 0x200000:
		return []byte{0xF0 | byte(n>>18), 0x80 | byte((n>>12)&0x3F), 0x80 | byte((n>>6)&0x3F), 0x80 | byte(n&0x3F)}
	case n < 0x4000000:
		return []byte{0xF8 | byte(n>>24), 0x80 | byte((n>>18)&0x3F), 0x80 | byte((n>>12)&0x3F), 0x80 | byte((n>>6)&0x3F), 0x80 | byte(n&0x3F)}
	case n < 0x80000000:
		return []byte{0xFC | byte(n>>30), 0x80 | byte((n>>24)&0x3F), 0x80 | byte((n>>18)&0x3F), 0x80 | byte((n>>12)&0x3F), 0x80 | byte((n>>6)&0x3F), 0x80 | byte(n&0x3F)}
	default:
		return []byte{0xFE, 0x80 | byte((n>>30)&0x3F), 0x80 | byte((n>>24)&0x3F), 0x80 | byte((n>>18)&0x3F), 0x80 | byte((n>>12)&0x3F), 0x80 | byte((n>>6)&0x3F), 0x80 | byte(n&0x3F)}
	}
}

// buildStreamInfo writes the "fLaC" marker and a single, last,
// STREAMINFO metadata block.
func buildStreamInfo(f format.SampleFormat) []byte {
	var w bitWriter
	w.writeBits(16, 16) // min block size (placeholder, variable in practice)
	w.writeBits(65535, 16)
	w.writeBits(0, 24) // min frame size, 0 = unknown
	w.writeBits(0, 24) // max frame size, 0 = unknown
	w.writeBits(uint64(f.Rate), 20)
	w.writeBits(uint64(f.Channels-1), 3)
	w.writeBits(uint64(f.Bits-1), 5)
	w.writeBits(0, 36) // total samples, 0 = unknown (streaming source)
	body := w.bytes()
	body = append(body, make([]byte, 16)...) // MD5 signature, unchecked for streaming input

	out := []byte(streamMarker)
	out = append(out, 0x80) // last-metadata-block flag set, type 0 (STREAMINFO)
	length := len(body)
	out = append(out, byte(length>>16), byte(length>>8), byte(length))
	out = append(out, body...)
	return out
}
