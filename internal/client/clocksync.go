package client

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snapsync/snapsync-go/internal/wire"
)

// estimatorSize is the ring buffer's capacity (spec.md §4.6).
const estimatorSize = 200

// staleAfter clears the estimator and rebaselines on the next sample
// if this much time passes without one, so a network outage doesn't
// leave playout synced to a clock offset that no longer holds.
const staleAfter = 60 * time.Second

// TimeEstimator tracks the offset between the server's wall clock and
// this client's, server_clock - local_clock, in microseconds.
// Grounded on spec.md §4.6; the exposed offset is kept as a single
// atomic integer so the jitter buffer's hot path never blocks on the
// estimator's ring buffer mutex.
type TimeEstimator struct {
	offsetUs atomic.Int64

	mu       sync.Mutex
	samples  [estimatorSize]int64
	count    int
	next     int
	lastSeen time.Time
}

// NewTimeEstimator creates an empty estimator.
func NewTimeEstimator() *TimeEstimator {
	return &TimeEstimator{}
}

// OffsetUs returns the current estimated server_clock - local_clock,
// in microseconds. Zero before the first sample arrives.
func (e *TimeEstimator) OffsetUs() int64 { return e.offsetUs.Load() }

// Observe records one Time round trip. sentAt and recvAt are this
// client's own clock readings around the request; reply carries the
// server's observed one-way latency for that exchange.
func (e *TimeEstimator) Observe(sentAt, recvAt time.Time, reply wire.TimeMsg) {
	localRttUs := recvAt.Sub(sentAt).Microseconds()
	serverRttUs := reply.LatencyMicros()
	halfDiffUs := (serverRttUs - localRttUs) / 2

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.count > 0 && time.Since(e.lastSeen) > staleAfter {
		e.count = 0
		e.next = 0
	}
	e.lastSeen = time.Now()

	e.samples[e.next] = halfDiffUs
	e.next = (e.next + 1) % estimatorSize
	if e.count < estimatorSize {
		e.count++
	}

	e.offsetUs.Store(e.median())
}

// median returns the mean of the 3 values around the middle of the
// sorted sample set, the estimator's exposed offset per spec.md §4.6.
// Caller holds mu.
func (e *TimeEstimator) median() int64 {
	sorted := append([]int64(nil), e.samples[:e.count]...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mid := len(sorted) / 2
	switch {
	case len(sorted) == 0:
		return 0
	case len(sorted) < 3:
		return sorted[mid]
	default:
		lo := mid - 1
		if lo < 0 {
			lo = 0
		}
		hi := lo + 3
		if hi > len(sorted) {
			hi = len(sorted)
			lo = hi - 3
		}
		var sum int64
		for _, v := range sorted[lo:hi] {
			sum += v
		}
		return sum / 3
	}
}

// ServerNow returns the server's current wall-clock time as estimated
// from local time plus the estimator's offset.
func (e *TimeEstimator) ServerNow() time.Time {
	return time.Now().Add(time.Duration(e.OffsetUs()) * time.Microsecond)
}
