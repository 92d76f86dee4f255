package flac

import (
	"github.com/snapsync/snapsync-go/internal/errs"
	"github.com/snapsync/snapsync-go/internal/format"
)

// Decoder parses the STREAMINFO codec header once, then one FLAC
// frame per Decode call.
type Decoder struct {
	sampleFormat format.SampleFormat
}

// NewDecoder creates a FLAC decoder. SetHeader must be called with the
// encoder's CodecHeader payload before the first Decode.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// SetHeader parses the "fLaC" marker and STREAMINFO block, returning
// the stream's sample format.
func (d *Decoder) SetHeader(header []byte) (format.SampleFormat, error) {
	if len(header) < 4+4+34 || string(header[:4]) != streamMarker {
		return format.SampleFormat{}, errs.Decode("flac: bad stream header")
	}
	body := header[8:] // skip marker + metadata-block header
	var r bitReader
	r.data = body
	r.readBits(16) // min block size
	r.readBits(16) // max block size
	r.readBits(24) // min frame size
	r.readBits(24) // max frame size
	rate := uint32(r.readBits(20))
	channels := uint16(r.readBits(3)) + 1
	bits := uint16(r.readBits(5)) + 1

	d.sampleFormat = format.SampleFormat{Rate: rate, Bits: bits, Channels: channels}
	return d.sampleFormat, nil
}

// Decode parses one FLAC frame from chunk.Payload and replaces it with
// the decoded PCM.
func (d *Decoder) Decode(chunk *format.Chunk) error {
	data := chunk.Payload
	if len(data) < 5 {
		return errs.Decode("flac: frame too short")
	}

	var r bitReader
	r.data = data
	sync := r.readBits(14)
	if sync != 0x3FFE {
		return errs.Decode("flac: bad frame sync")
	}
	r.readBits(1) // reserved
	r.readBits(1) // blocking strategy
	bsCode := r.readBits(4)
	r.readBits(4) // sample rate code, we always trust STREAMINFO
	chCode := r.readBits(4)
	r.readBits(3) // sample size code, we trust STREAMINFO's bit depth
	r.readBits(1) // reserved

	channels := int(chCode) + 1

	// Skip the UTF-8-coded frame number by walking its continuation
	// bytes from the header's byte 4 onward.
	bytePos := 4
	bytePos += utf8Len(data[bytePos])

	var blockSize int
	switch bsCode {
	case 0b0110:
		blockSize = int(data[bytePos]) + 1
		bytePos++
	case 0b0111:
		blockSize = int(data[bytePos])<<8 | int(data[bytePos+1]) + 1
		bytePos += 2
	default:
		return errs.Decode("flac: unsupported block size code")
	}
	bytePos++ // CRC-8 byte

	bodyReader := &bitReader{data: data[bytePos : len(data)-2]}
	planes := make([][]int32, channels)
	for ch := 0; ch < channels; ch++ {
		subHeader := bodyReader.readBits(8)
		subType := (subHeader >> 1) & 0x3F
		if subType != 0b000001 {
			return errs.Decode("flac: unsupported subframe type")
		}
		samples := make([]int32, blockSize)
		for i := range samples {
			samples[i] = bodyReader.readSigned(uint(d.sampleFormat.Bits))
		}
		planes[ch] = samples
	}

	chunk.Payload = samplesToBytes(interleave(planes), d.sampleFormat)
	chunk.Format = d.sampleFormat
	chunk.Idx = 0
	return nil
}

func (d *Decoder) Close() error { return nil }

// utf8Len returns the total byte length (including the lead byte) of a
// FLAC/UTF-8-style variable-length value given its lead byte.
func utf8Len(lead byte) int {
	switch {
	case lead&0x80 == 0:
		return 1
	case lead&0xE0 == 0xC0:
		return 2
	case lead&0xF0 == 0xE0:
		return 3
	case lead&0xF8 == 0xF0:
		return 4
	case lead&0xFC == 0xF8:
		return 5
	case lead&0xFE == 0xFC:
		return 6
	default:
		return 7
	}
}
