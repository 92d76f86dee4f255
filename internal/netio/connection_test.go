package netio

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/snapsync/snapsync-go/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestRequestCorrelatesReply(t *testing.T) {
	clientSide, serverSide := pipePair(t)
	logger := log.New(io.Discard)

	client := New(clientSide, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	go func() {
		h, _, err := wire.ReadMessage(serverSide)
		if err != nil {
			return
		}
		reply := wire.Header{Type: wire.TypeServerSettings, RefersTo: h.ID}
		_ = wire.WriteMessage(serverSide, reply, wire.ServerSettingsMsg{BufferMs: 1000}.Marshal())
	}()

	header, payload, err := client.Request(wire.TypeRequest, wire.RequestMsg{Request: wire.TypeServerSettings}.Marshal(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, wire.TypeServerSettings, header.Type)

	settings, err := wire.UnmarshalServerSettings(payload)
	require.NoError(t, err)
	assert.Equal(t, int32(1000), settings.BufferMs)
}

func TestRequestTimesOut(t *testing.T) {
	clientSide, _ := pipePair(t)
	logger := log.New(io.Discard)

	client := New(clientSide, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	_, _, err := client.Request(wire.TypeRequest, wire.RequestMsg{Request: wire.TypeTime}.Marshal(), 50*time.Millisecond)
	assert.Error(t, err)
}

func TestUnsolicitedMessageReachesInbound(t *testing.T) {
	clientSide, serverSide := pipePair(t)
	logger := log.New(io.Discard)

	client := New(clientSide, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	go wire.WriteMessage(serverSide, wire.Header{Type: wire.TypeAck}, nil)

	select {
	case msg := <-client.Inbound():
		assert.Equal(t, wire.TypeAck, msg.Header.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound message")
	}
}
