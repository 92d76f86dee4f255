package client

import (
	"sort"
	"sync"
	"time"

	"github.com/snapsync/snapsync-go/internal/format"
)

// ageWindow is the tolerance spec.md §4.7 allows before a buffer head
// is considered "too new" (fill with silence) or "too old" (seek/drop).
const ageWindow = 5 * time.Millisecond

// fineDriftThreshold is the medium-median magnitude below which the
// scheduler applies single-frame skip/duplicate correction rather than
// a coarse resync.
const fineDriftThreshold = 1 * time.Millisecond

// coarseResyncThreshold is the long-median magnitude that triggers
// discarding the buffer and restarting playout from silence.
const coarseResyncThreshold = 100 * time.Millisecond

// JitterBuffer is the client's playout scheduler: the centerpiece of
// spec.md §4.7. It holds decoded PCM chunks in server-timestamp order
// and serves fixed-size frame windows aligned to a computed target
// server time, correcting for clock and network jitter via three
// rolling medians of the observed age. Grounded on the teacher's
// audio_engine.go ticker-paced production loop, generalized from a
// single-writer broadcast loop to a buffer read by an audio callback
// running on its own schedule.
type JitterBuffer struct {
	mu           sync.Mutex
	queue        []*format.Chunk
	sampleFormat format.SampleFormat
	bufferMs     int32
	graceMs      int32
	latencyOffset time.Duration

	short  rollingMedian
	medium rollingMedian
	long   rollingMedian

	correctionCounter int
	started           bool
}

// NewJitterBuffer creates an empty buffer for the given sample format
// and negotiated end-to-end buffer size.
func NewJitterBuffer(f format.SampleFormat, bufferMs, graceMs int32, latencyOffset time.Duration) *JitterBuffer {
	return &JitterBuffer{
		sampleFormat:  f,
		bufferMs:      bufferMs,
		graceMs:       graceMs,
		latencyOffset: latencyOffset,
		short:         newRollingMedian(100),
		medium:        newRollingMedian(1000),
		long:          newRollingMedian(5000),
	}
}

// Push enqueues a decoded chunk, dropping it outright if its start
// time is more than bufferMs+grace into the future relative to now.
func (b *JitterBuffer) Push(chunk *format.Chunk, now format.WallClock) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bound := time.Duration(b.bufferMs+b.graceMs) * time.Millisecond
	if chunk.Start().Sub(now) > bound {
		return
	}
	b.queue = append(b.queue, chunk)
}

// GetPlayerChunk writes exactly len(buf)/frameSize frames of PCM into
// buf for a callback happening at playoutDelay from now. It implements
// the fill/seek/read decision and drift-correction steps of spec.md
// §4.7's algorithm.
func (b *JitterBuffer) GetPlayerChunk(buf []byte, playoutDelay time.Duration, serverNow func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameSize := b.sampleFormat.FrameSize()
	frames := len(buf) / frameSize

	targetServerTime := format.FromMicros(serverNow().Add(playoutDelay).UnixMicro()).
		Add(-time.Duration(b.bufferMs)*time.Millisecond + b.latencyOffset)

	if len(b.queue) == 0 {
		zero(buf)
		return
	}

	head := b.queue[0]
	age := head.Start().Sub(targetServerTime)
	b.recordAge(age)

	switch {
	case age > ageWindow:
		// Head is newer than the playout target: nothing to play yet.
		zero(buf)
		return

	case age < -ageWindow:
		// Head is stale: drop whole expired chunks, then seek into
		// the surviving head by the remaining overshoot.
		for len(b.queue) > 0 && b.queue[0].End().Sub(targetServerTime) < 0 {
			b.queue = b.queue[1:]
		}
		if len(b.queue) == 0 {
			zero(buf)
			return
		}
		overshoot := targetServerTime.Sub(b.queue[0].Start())
		b.queue[0].Seek(b.sampleFormat.DurationToFrames(overshoot))
	}

	b.started = true
	b.readAndCorrect(buf, frames, frameSize)
}

// readFrames copies frames worth of PCM from the queue into buf,
// crossing chunk boundaries and popping exhausted chunks. Any
// shortfall (buffer ran dry) is filled with silence.
func (b *JitterBuffer) readFrames(buf []byte, frames, frameSize int) {
	written := 0
	for written < frames && len(b.queue) > 0 {
		chunk := b.queue[0]
		avail := chunk.RemainingFrames()
		if avail == 0 {
			b.queue = b.queue[1:]
			continue
		}
		want := frames - written
		if want > avail {
			want = avail
		}
		src := chunk.Payload[chunk.BytesAt(chunk.Idx):chunk.BytesAt(chunk.Idx + want)]
		copy(buf[written*frameSize:], src)
		chunk.Seek(want)
		written += want
		if chunk.RemainingFrames() == 0 {
			b.queue = b.queue[1:]
		}
	}
	if written < frames {
		zero(buf[written*frameSize:])
	}
}

// readAndCorrect fills buf from the queue, applying step 5 of spec.md
// §4.7: a small, steady clock offset (medium median) is absorbed by
// skipping or duplicating a single frame every N frames rather than a
// disruptive seek, spread thin enough that it is inaudible.
//
// skip (we're late, consuming too slowly) pulls one extra frame from
// the queue beyond what the period needs, catching the buffer up by a
// frame. duplicate (we're early) pulls one fewer frame and repeats the
// last one, stretching the period by a frame. Both need the decision
// made before the read, since the correction changes how many frames
// come from the queue.
func (b *JitterBuffer) readAndCorrect(buf []byte, frames, frameSize int) {
	switch b.driftDecision(frames) {
	case driftSkip:
		b.readFrames(buf, frames, frameSize)
		if frames < 2 {
			return
		}
		copy(buf[:(frames-1)*frameSize], buf[frameSize:frames*frameSize])
		b.readFrames(buf[(frames-1)*frameSize:], 1, frameSize)

	case driftDuplicate:
		if frames < 2 {
			b.readFrames(buf, frames, frameSize)
			return
		}
		b.readFrames(buf, frames-1, frameSize)
		copy(buf[(frames-1)*frameSize:frames*frameSize], buf[(frames-2)*frameSize:(frames-1)*frameSize])

	default:
		b.readFrames(buf, frames, frameSize)
	}
}

type driftCorrection int

const (
	driftNone driftCorrection = iota
	driftSkip
	driftDuplicate
)

// driftDecision reports whether this period should skip or duplicate a
// frame, pacing corrections to one per roughly N frames of accumulated
// drift (N = sample_rate * 1000 / abs(medium_median_us), per spec.md
// §4.7) rather than one per period: correctionCounter counts periods,
// so N is converted from a frame count to a period count using this
// call's period size before being compared against it.
func (b *JitterBuffer) driftDecision(framesPerPeriod int) driftCorrection {
	medianUs := b.medium.median()
	if medianUs == 0 || time.Duration(abs(medianUs))*time.Microsecond >= fineDriftThreshold || framesPerPeriod == 0 {
		return driftNone
	}

	n := int(float64(b.sampleFormat.Rate) * 1000.0 / float64(abs(medianUs)))
	if n <= 0 {
		return driftNone
	}
	periodsNeeded := n / framesPerPeriod
	if periodsNeeded < 1 {
		periodsNeeded = 1
	}

	b.correctionCounter++
	if b.correctionCounter < periodsNeeded {
		return driftNone
	}
	b.correctionCounter = 0

	if medianUs > 0 {
		return driftSkip
	}
	return driftDuplicate
}

// Depth returns the number of chunks currently queued, for status
// reporting.
func (b *JitterBuffer) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// SyncQuality returns the long-term median age, a proxy for how well
// playout is tracking the server's clock.
func (b *JitterBuffer) SyncQuality() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Duration(b.long.median()) * time.Microsecond
}

// Reset discards the queue and rolling medians, per the coarse resync
// step: the next in-window chunk reseeds the scheduler from silence.
func (b *JitterBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = nil
	b.short = newRollingMedian(b.short.cap)
	b.medium = newRollingMedian(b.medium.cap)
	b.long = newRollingMedian(b.long.cap)
	b.correctionCounter = 0
	b.started = false
}

// recordAge feeds one age sample (in microseconds) into all three
// rolling medians and triggers a coarse resync if the long median has
// drifted past its threshold. Caller holds mu.
func (b *JitterBuffer) recordAge(age time.Duration) {
	us := age.Microseconds()
	b.short.push(us)
	b.medium.push(us)
	b.long.push(us)

	if long := b.long.median(); time.Duration(abs(long))*time.Microsecond > coarseResyncThreshold {
		b.queue = nil
		b.short.clear()
		b.medium.clear()
		b.long.clear()
		b.correctionCounter = 0
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}

// rollingMedian is a fixed-capacity ring buffer of recent samples with
// an on-demand median, used for the short/medium/long age trackers.
type rollingMedian struct {
	cap     int
	samples []int64
	next    int
	count   int
}

func newRollingMedian(capacity int) rollingMedian {
	return rollingMedian{cap: capacity, samples: make([]int64, capacity)}
}

func (r *rollingMedian) push(v int64) {
	r.samples[r.next] = v
	r.next = (r.next + 1) % r.cap
	if r.count < r.cap {
		r.count++
	}
}

func (r *rollingMedian) clear() {
	r.next = 0
	r.count = 0
}

func (r *rollingMedian) median() int64 {
	if r.count == 0 {
		return 0
	}
	sorted := append([]int64(nil), r.samples[:r.count]...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}
