package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/snapsync/snapsync-go/internal/codec"
	"github.com/snapsync/snapsync-go/internal/format"
	"github.com/snapsync/snapsync-go/internal/netio"
	"github.com/snapsync/snapsync-go/internal/wire"
	"github.com/stretchr/testify/require"
)

// pipedSession wires a Session to a net.Pipe so dispatch's conn.Send
// calls have somewhere to write to.
func pipedSession(t *testing.T, bufferMs int32) (*Session, *netio.Connection) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })

	serverConn := netio.New(server, testLogger())
	clientConn := netio.New(client, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go serverConn.Run(ctx)
	go clientConn.Run(ctx)

	return NewSession(serverConn, bufferMs, testLogger()), clientConn
}

func TestDispatchHelloRecordsMac(t *testing.T) {
	h := NewHub(1000, testLogger())
	s, _ := pipedSession(t, 1000)

	hello := wire.HelloMsg{Mac: "aa:bb:cc", Hostname: "kitchen"}
	err := h.dispatch(s, netio.Inbound{Header: wire.Header{Type: wire.TypeHello}, Payload: hello.Marshal()})
	require.NoError(t, err)
	require.Equal(t, "aa:bb:cc", s.Mac())
}

func TestDispatchStartStreamActivatesAndAcks(t *testing.T) {
	h := NewHub(1000, testLogger())
	s, client := pipedSession(t, 1000)

	cmd := wire.CommandMsg{Command: "startStream"}
	err := h.dispatch(s, netio.Inbound{Header: wire.Header{Type: wire.TypeCommand, ID: 7}, Payload: cmd.Marshal()})
	require.NoError(t, err)
	require.True(t, s.StreamActive())

	select {
	case msg := <-client.Inbound():
		require.Equal(t, wire.TypeAck, msg.Header.Type)
		require.Equal(t, uint16(7), msg.Header.RefersTo)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ack")
	}
}

func TestDispatchAnswersServerSettingsRequest(t *testing.T) {
	h := NewHub(750, testLogger())
	s, client := pipedSession(t, 750)

	req := wire.RequestMsg{Request: wire.TypeServerSettings}
	err := h.dispatch(s, netio.Inbound{Header: wire.Header{Type: wire.TypeRequest, ID: 3}, Payload: req.Marshal()})
	require.NoError(t, err)

	select {
	case msg := <-client.Inbound():
		require.Equal(t, wire.TypeServerSettings, msg.Header.Type)
		settings, err := wire.UnmarshalServerSettings(msg.Payload)
		require.NoError(t, err)
		require.Equal(t, int32(750), settings.BufferMs)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestDispatchAnswersCodecHeaderFromHubState(t *testing.T) {
	h := NewHub(1000, testLogger())
	h.SetStreamInfo(format.SampleFormat{Rate: 48000, Bits: 16, Channels: 2}, codec.FLAC, []byte{1, 2, 3})
	s, client := pipedSession(t, 1000)

	req := wire.RequestMsg{Request: wire.TypeCodecHeader}
	err := h.dispatch(s, netio.Inbound{Header: wire.Header{Type: wire.TypeRequest, ID: 9}, Payload: req.Marshal()})
	require.NoError(t, err)

	select {
	case msg := <-client.Inbound():
		hdr, err := wire.UnmarshalCodecHeader(msg.Payload)
		require.NoError(t, err)
		require.Equal(t, string(codec.FLAC), hdr.Codec)
		require.Equal(t, []byte{1, 2, 3}, hdr.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestDispatchRejectsUnknownType(t *testing.T) {
	h := NewHub(1000, testLogger())
	s, _ := pipedSession(t, 1000)

	err := h.dispatch(s, netio.Inbound{Header: wire.Header{Type: wire.Type(99)}})
	require.Error(t, err)
}
