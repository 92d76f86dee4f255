package flac

import (
	"testing"

	"github.com/snapsync/snapsync-go/internal/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func sine(frames, channels int, bits uint16) []byte {
	f := format.SampleFormat{Rate: 48000, Bits: bits, Channels: uint16(channels)}
	samples := make([]int32, frames*channels)
	max := int32(1)<<(bits-1) - 1
	for i := 0; i < frames; i++ {
		v := int32(float64(max) * 0.25)
		for ch := 0; ch < channels; ch++ {
			samples[i*channels+ch] = v
		}
	}
	return samplesToBytes(samples, f)
}

func TestRoundTrip16Bit(t *testing.T) {
	f := format.SampleFormat{Rate: 48000, Bits: 16, Channels: 2}
	enc, err := NewEncoder(f, 5)
	require.NoError(t, err)

	dec := NewDecoder()
	gotFormat, err := dec.SetHeader(enc.Header())
	require.NoError(t, err)
	assert.Equal(t, f, gotFormat)

	chunk := &format.Chunk{Format: f, Payload: sine(960, 2, 16)}
	encoded, err := enc.Encode(chunk)
	require.NoError(t, err)
	require.Len(t, encoded, 1)

	out := &format.Chunk{Payload: encoded[0].Payload}
	require.NoError(t, dec.Decode(out))
	assert.Equal(t, chunk.Payload, out.Payload)
}

func TestRoundTrip24Bit(t *testing.T) {
	f := format.SampleFormat{Rate: 44100, Bits: 24, Channels: 1}
	enc, err := NewEncoder(f, 0)
	require.NoError(t, err)

	dec := NewDecoder()
	_, err = dec.SetHeader(enc.Header())
	require.NoError(t, err)

	chunk := &format.Chunk{Format: f, Payload: sine(441, 1, 24)}
	encoded, err := enc.Encode(chunk)
	require.NoError(t, err)

	out := &format.Chunk{Payload: encoded[0].Payload}
	require.NoError(t, dec.Decode(out))
	assert.Equal(t, chunk.Payload, out.Payload)
}

func TestFrameNumberIncrements(t *testing.T) {
	f := format.SampleFormat{Rate: 48000, Bits: 16, Channels: 2}
	enc, err := NewEncoder(f, 0)
	require.NoError(t, err)
	dec := NewDecoder()
	_, err = dec.SetHeader(enc.Header())
	require.NoError(t, err)

	for i := 0; i < 300; i++ {
		chunk := &format.Chunk{Format: f, Payload: sine(64, 2, 16)}
		encoded, err := enc.Encode(chunk)
		require.NoError(t, err)
		out := &format.Chunk{Payload: encoded[0].Payload}
		require.NoErrorf(t, dec.Decode(out), "frame %d", i)
	}
}

func TestRoundTripRandomSamples(t *testing.T) {
	f := format.SampleFormat{Rate: 48000, Bits: 16, Channels: 2}

	rapid.Check(t, func(t *rapid.T) {
		frames := rapid.IntRange(1, 500).Draw(t, "frames")
		samples := make([]int32, frames*2)
		for i := range samples {
			samples[i] = int32(rapid.IntRange(-32768, 32767).Draw(t, "sample"))
		}
		payload := samplesToBytes(samples, f)

		enc, err := NewEncoder(f, 0)
		require.NoError(t, err)
		dec := NewDecoder()
		_, err = dec.SetHeader(enc.Header())
		require.NoError(t, err)

		chunk := &format.Chunk{Format: f, Payload: payload}
		encoded, err := enc.Encode(chunk)
		require.NoError(t, err)

		out := &format.Chunk{Payload: encoded[0].Payload}
		require.NoError(t, dec.Decode(out))
		assert.Equal(t, payload, out.Payload)
	})
}

func TestCRC8KnownVector(t *testing.T) {
	// A single zero byte has CRC-8 (poly 0x07) equal to 0.
	assert.Equal(t, byte(0), crc8([]byte{0x00}))
}

func TestUTF8EncodeLengthMatchesLeadByte(t *testing.T) {
	for _, n := range []uint64{0, 1, 0x7F, 0x80, 0x7FF, 0x800, 0xFFFF, 0x10000, 1 << 20} {
		encoded := utf8Encode(n)
		assert.Equal(t, utf8Len(encoded[0]), len(encoded))
	}
}
