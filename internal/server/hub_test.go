package server

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/snapsync/snapsync-go/internal/codec"
	"github.com/snapsync/snapsync-go/internal/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestHubBroadcastsOnlyToActiveSessions(t *testing.T) {
	h := NewHub(1000, testLogger())

	active := NewSession(nil, 1000, testLogger())
	active.Activate()
	idle := NewSession(nil, 1000, testLogger())

	h.AddSession(active)
	h.AddSession(idle)

	chunk := &EncodedChunk{Timestamp: format.Now(), Payload: []byte{1, 2, 3}}
	h.Broadcast(chunk)

	require.Len(t, active.queue, 1)
	assert.Equal(t, chunk, <-active.queue)
	assert.Len(t, idle.queue, 0)
}

func TestHubRemoveSessionStopsDelivery(t *testing.T) {
	h := NewHub(1000, testLogger())
	s := NewSession(nil, 1000, testLogger())
	s.Activate()
	h.AddSession(s)
	h.RemoveSession(s)

	h.Broadcast(&EncodedChunk{Timestamp: format.Now(), Payload: []byte{1}})
	assert.Len(t, s.queue, 0)
	assert.Empty(t, h.Sessions())
}

func TestHubStreamInfoRoundTrips(t *testing.T) {
	h := NewHub(500, testLogger())
	f := format.SampleFormat{Rate: 48000, Bits: 16, Channels: 2}
	h.SetStreamInfo(f, codec.FLAC, []byte{0xAA})

	gotFormat, gotName, gotHeader := h.StreamInfo()
	assert.Equal(t, f, gotFormat)
	assert.Equal(t, codec.FLAC, gotName)
	assert.Equal(t, []byte{0xAA}, gotHeader)
	assert.Equal(t, int32(500), h.BufferMs())
}

func TestSessionEnqueueDropsWhenQueueFull(t *testing.T) {
	s := NewSession(nil, 1000, testLogger())
	for i := 0; i < queueCapacity; i++ {
		s.Enqueue(&EncodedChunk{Timestamp: format.Now()})
	}
	require.Len(t, s.queue, queueCapacity)

	// one more must be dropped, not block
	s.Enqueue(&EncodedChunk{Timestamp: format.Now()})
	assert.Len(t, s.queue, queueCapacity)
}
