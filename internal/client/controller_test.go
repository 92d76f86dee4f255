package client

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/snapsync/snapsync-go/internal/format"
	"github.com/snapsync/snapsync-go/internal/netio"
	"github.com/snapsync/snapsync-go/internal/wire"
	"github.com/stretchr/testify/require"
)

// fakeSink is a no-op Sink double: Run blocks until ctx is cancelled,
// pulling one period so the jitter buffer's code path is exercised.
type fakeSink struct {
	initFormat format.SampleFormat
}

func (f *fakeSink) Init(sf format.SampleFormat) (int, error) {
	f.initFormat = sf
	return sf.DurationToFrames(20 * time.Millisecond), nil
}

func (f *fakeSink) Run(ctx context.Context, pull func(buf []byte, playoutDelay time.Duration)) error {
	buf := make([]byte, f.initFormat.FrameSize()*f.initFormat.DurationToFrames(20*time.Millisecond))
	pull(buf, 20*time.Millisecond)
	<-ctx.Done()
	return nil
}

func (f *fakeSink) Close() error { return nil }

// fakeServer plays the minimal handshake a server would, over one
// accepted connection, answering every Request/Time/Command the
// controller's handshake sends.
func fakeServer(t *testing.T, ln net.Listener) {
	t.Helper()
	nc, err := ln.Accept()
	require.NoError(t, err)

	logger := log.New(io.Discard)
	conn := netio.New(nc, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go conn.Run(ctx)

	for {
		select {
		case msg, ok := <-conn.Inbound():
			if !ok {
				return
			}
			switch msg.Header.Type {
			case wire.TypeHello:
				// no reply expected
			case wire.TypeRequest:
				req, err := wire.UnmarshalRequest(msg.Payload)
				require.NoError(t, err)
				switch req.Request {
				case wire.TypeServerSettings:
					conn.Send(wire.Header{Type: wire.TypeServerSettings, RefersTo: msg.Header.ID},
						wire.ServerSettingsMsg{BufferMs: 200}.Marshal())
				case wire.TypeSampleFormat:
					conn.Send(wire.Header{Type: wire.TypeSampleFormat, RefersTo: msg.Header.ID},
						wire.FromFormat(format.SampleFormat{Rate: 48000, Bits: 16, Channels: 2}).Marshal())
				case wire.TypeCodecHeader:
					conn.Send(wire.Header{Type: wire.TypeCodecHeader, RefersTo: msg.Header.ID},
						wire.CodecHeaderMsg{Codec: "pcm"}.Marshal())
				}
			case wire.TypeTime:
				conn.Send(wire.Header{Type: wire.TypeTime, RefersTo: msg.Header.ID}, wire.TimeMsg{LatencyUsec: 500}.Marshal())
			case wire.TypeCommand:
				conn.Send(wire.Header{Type: wire.TypeAck, RefersTo: msg.Header.ID}, nil)
			}
		case <-ctx.Done():
			return
		}
	}
}

func TestControllerReachesStreamingAgainstFakeServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go fakeServer(t, ln)

	sink := &fakeSink{}
	cfg := Config{ServerAddr: ln.Addr().String(), Mac: "aa:bb", Hostname: "test", Version: "1.0", GraceMs: 100}
	ctrl := New(cfg, sink, log.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for ctrl.State() != Streaming {
		select {
		case <-deadline:
			t.Fatalf("controller never reached Streaming, stuck at %s", ctrl.State())
		case <-time.After(10 * time.Millisecond):
		}
	}

	stats := ctrl.Stats()
	require.Equal(t, "pcm", stats.Codec)
	require.Equal(t, uint32(48000), stats.SampleRate)

	cancel()
	<-done
}
