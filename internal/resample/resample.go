// Package resample implements a linear-interpolation sample-rate
// converter, used by the Opus encoder to condition input to the
// 48 kHz stereo rate Opus requires (spec.md §9 open question: "the
// spec requires some high-quality resampler but not a specific
// design"). Grounded on the teacher's pkg/audio/resample/resampler.go,
// generalized to operate on int16 interleaved samples (Opus's native
// sample width) instead of int32.
package resample

// Resampler converts interleaved PCM between sample rates using linear
// interpolation, carrying fractional position across calls so a stream
// of chunks resamples continuously without clicks at chunk boundaries.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64
}

// New creates a resampler from inputRate to outputRate for the given
// channel count. If the rates are equal, Resample still works but is
// a straight copy.
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
	}
}

// Resample converts interleaved input samples to the output rate,
// appending to and returning a growable output slice.
func (r *Resampler) Resample(input []int16) []int16 {
	if r.inputRate == r.outputRate {
		out := make([]int16, len(input))
		copy(out, input)
		return out
	}
	if len(input) == 0 {
		return nil
	}

	inputFrames := len(input) / r.channels
	var output []int16

	for {
		inputIdx := int(r.position)
		if inputIdx >= inputFrames-1 {
			break
		}
		frac := r.position - float64(inputIdx)

		for ch := 0; ch < r.channels; ch++ {
			s1 := float64(input[inputIdx*r.channels+ch])
			s2 := float64(input[(inputIdx+1)*r.channels+ch])
			output = append(output, int16(s1*(1-frac)+s2*frac))
		}
		r.position += r.ratio
	}

	// Carry the fractional offset into the next call so a continuous
	// stream of chunks resamples without a seam at chunk boundaries.
	r.position -= float64(inputFrames - 1)
	return output
}

// Reset clears the resampler's fractional carry-over state.
func (r *Resampler) Reset() {
	r.position = 0
}
