package flac

import "github.com/snapsync/snapsync-go/internal/format"

// bytesToSamples unpacks a chunk's little-endian container bytes into
// one int32 per sample at its logical bit depth. 24-bit samples are
// carried in a 4-byte container with the sign-extension byte last.
func bytesToSamples(data []byte, f format.SampleFormat) []int32 {
	size := f.SampleSize()
	n := len(data) / size
	out := make([]int32, n)
	switch f.Bits {
	case 8:
		for i := 0; i < n; i++ {
			out[i] = int32(int8(data[i]))
		}
	case 16:
		for i := 0; i < n; i++ {
			out[i] = int32(int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8))
		}
	case 24:
		for i := 0; i < n; i++ {
			v := int32(data[i*4]) | int32(data[i*4+1])<<8 | int32(data[i*4+2])<<16
			if v&0x800000 != 0 {
				v |= ^int32(0xFFFFFF)
			}
			out[i] = v
		}
	case 32:
		for i := 0; i < n; i++ {
			out[i] = int32(uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24)
		}
	}
	return out
}

// samplesToBytes is the inverse of bytesToSamples.
func samplesToBytes(samples []int32, f format.SampleFormat) []byte {
	size := f.SampleSize()
	out := make([]byte, len(samples)*size)
	switch f.Bits {
	case 8:
		for i, s := range samples {
			out[i] = byte(s)
		}
	case 16:
		for i, s := range samples {
			out[i*2] = byte(s)
			out[i*2+1] = byte(s >> 8)
		}
	case 24:
		for i, s := range samples {
			out[i*4] = byte(s)
			out[i*4+1] = byte(s >> 8)
			out[i*4+2] = byte(s >> 16)
			if s < 0 {
				out[i*4+3] = 0xFF
			}
		}
	case 32:
		for i, s := range samples {
			out[i*4] = byte(s)
			out[i*4+1] = byte(s >> 8)
			out[i*4+2] = byte(s >> 16)
			out[i*4+3] = byte(s >> 24)
		}
	}
	return out
}

// deinterleave splits an interleaved sample buffer into one slice per
// channel.
func deinterleave(samples []int32, channels int) [][]int32 {
	frames := len(samples) / channels
	planes := make([][]int32, channels)
	for ch := range planes {
		planes[ch] = make([]int32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			planes[ch][i] = samples[i*channels+ch]
		}
	}
	return planes
}

// interleave is the inverse of deinterleave.
func interleave(planes [][]int32) []int32 {
	if len(planes) == 0 {
		return nil
	}
	channels := len(planes)
	frames := len(planes[0])
	out := make([]int32, frames*channels)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = planes[ch][i]
		}
	}
	return out
}
