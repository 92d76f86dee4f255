package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/snapsync/snapsync-go/internal/format"
)

func testFormat() format.SampleFormat {
	return format.SampleFormat{Rate: 48000, Bits: 16, Channels: 2}
}

func sineChunk(start format.WallClock, f format.SampleFormat, frames int) *format.Chunk {
	payload := make([]byte, frames*f.FrameSize())
	for i := range payload {
		payload[i] = byte(i)
	}
	return &format.Chunk{Timestamp: start, Format: f, Payload: payload}
}

func TestJitterBufferFillsSilenceWhenEmpty(t *testing.T) {
	f := testFormat()
	b := NewJitterBuffer(f, 1000, 100, 0)

	buf := make([]byte, 480*f.FrameSize())
	for i := range buf {
		buf[i] = 0xFF
	}
	b.GetPlayerChunk(buf, 0, func() time.Time { return time.Now() })

	for _, v := range buf {
		require.Equal(t, byte(0), v)
	}
}

func TestJitterBufferReadsInWindowChunk(t *testing.T) {
	f := testFormat()
	now := format.Now()
	chunk := sineChunk(now, f, 960)

	buf := make([]byte, 480*f.FrameSize())
	// target_server_time lands right at the chunk's start: playout
	// delay and bufferMs are both zero for this check.
	b := NewJitterBuffer(f, 0, 100, 0)
	b.Push(chunk, now)
	b.GetPlayerChunk(buf, 0, func() time.Time { return time.UnixMicro(now.Micros()) })

	assert.Equal(t, chunk.Payload[:len(buf)], buf)
}

func TestJitterBufferDropsChunkTooFarInFuture(t *testing.T) {
	f := testFormat()
	b := NewJitterBuffer(f, 1000, 100, 0)

	now := format.Now()
	future := now.Add(5 * time.Second)
	chunk := sineChunk(future, f, 960)
	b.Push(chunk, now)

	assert.Empty(t, b.queue)
}

func TestJitterBufferResetClearsState(t *testing.T) {
	f := testFormat()
	b := NewJitterBuffer(f, 1000, 100, 0)
	now := format.Now()
	b.Push(sineChunk(now, f, 960), now)
	require.NotEmpty(t, b.queue)

	b.Reset()
	assert.Empty(t, b.queue)
	assert.Equal(t, int64(0), b.long.median())
}

func TestDriftDecisionSkipsWhenLate(t *testing.T) {
	f := testFormat()
	b := NewJitterBuffer(f, 1000, 100, 0)
	for i := 0; i < 1000; i++ {
		b.medium.push(500)
	}

	var got driftCorrection
	for i := 0; i < 10000; i++ {
		got = b.driftDecision(480)
		if got != driftNone {
			break
		}
	}
	assert.Equal(t, driftSkip, got)
	assert.Equal(t, 0, b.correctionCounter, "counter resets once a correction fires")
}

func TestDriftDecisionDuplicatesWhenEarly(t *testing.T) {
	f := testFormat()
	b := NewJitterBuffer(f, 1000, 100, 0)
	for i := 0; i < 1000; i++ {
		b.medium.push(-500)
	}

	var got driftCorrection
	for i := 0; i < 10000; i++ {
		got = b.driftDecision(480)
		if got != driftNone {
			break
		}
	}
	assert.Equal(t, driftDuplicate, got)
}

func TestReadAndCorrectSkipConsumesExtraFrame(t *testing.T) {
	f := testFormat()
	now := format.Now()
	b := NewJitterBuffer(f, 0, 100, 0)
	b.Push(sineChunk(now, f, 10), now)
	for i := 0; i < 1000; i++ {
		b.medium.push(500)
	}
	b.correctionCounter = 1 << 30 // force the correction to fire now

	buf := make([]byte, 4*f.FrameSize())
	b.readAndCorrect(buf, 4, f.FrameSize())

	// a skip pulls 4+1 frames from a 10-frame chunk, leaving 5.
	require.Len(t, b.queue, 1)
	assert.Equal(t, 5, b.queue[0].RemainingFrames())
}

func TestReadAndCorrectDuplicateRepeatsFrame(t *testing.T) {
	f := testFormat()
	now := format.Now()
	b := NewJitterBuffer(f, 0, 100, 0)
	b.Push(sineChunk(now, f, 10), now)
	for i := 0; i < 1000; i++ {
		b.medium.push(-500)
	}
	b.correctionCounter = 1 << 30

	fs := f.FrameSize()
	buf := make([]byte, 4*fs)
	b.readAndCorrect(buf, 4, fs)

	// a duplicate pulls only 3 frames from a 10-frame chunk, leaving 7,
	// and repeats the 3rd frame into the 4th slot.
	require.Len(t, b.queue, 1)
	assert.Equal(t, 7, b.queue[0].RemainingFrames())
	assert.Equal(t, buf[2*fs:3*fs], buf[3*fs:4*fs])
}

func TestRollingMedianOddEvenCounts(t *testing.T) {
	r := newRollingMedian(5)
	for _, v := range []int64{5, 1, 3} {
		r.push(v)
	}
	assert.Equal(t, int64(3), r.median())

	// even count: sorted [1 3 5 7], the upper of the two middle values
	r.push(7)
	assert.Equal(t, int64(5), r.median())
}
