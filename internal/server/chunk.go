package server

import "github.com/snapsync/snapsync-go/internal/format"

// EncodedChunk is one codec-encoded period ready to fan out to every
// session by shared reference (spec.md §9's shared-ownership PcmChunk
// design note): immutable once created, so many sessions can hold the
// same pointer without synchronization.
type EncodedChunk struct {
	Timestamp format.WallClock
	Payload   []byte
}

// Age returns now - c.Timestamp, the staleness the hub and each
// session's writer use to decide whether to drop the chunk.
func (c *EncodedChunk) Age(now format.WallClock) int64 {
	return now.Sub(c.Timestamp).Microseconds()
}
