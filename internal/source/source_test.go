package source

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/snapsync/snapsync-go/internal/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	data   []byte
	pos    int
	closed bool
}

func (f *fakeReader) Read(p []byte) (int, error) {
	if f.pos >= len(f.data) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.pos:])
	f.pos += n
	return n, nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func TestStreamEmitsChunksOfPeriodSize(t *testing.T) {
	sampleFormat := format.SampleFormat{Rate: 48000, Bits: 16, Channels: 2}
	periodMs := 20
	periodFrames := sampleFormat.DurationToFrames(time.Duration(periodMs) * time.Millisecond)
	periodBytes := periodFrames * sampleFormat.FrameSize()

	data := make([]byte, periodBytes*3)
	r := &fakeReader{data: data}
	s := newStream(r, sampleFormat, periodMs, nil, log.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	for i := 0; i < 3; i++ {
		select {
		case chunk := <-s.Chunks():
			assert.Equal(t, periodFrames, chunk.FrameCount())
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for chunk")
		}
	}
	cancel()
}

func TestStreamGoesIdleOnTerminalEOF(t *testing.T) {
	sampleFormat := format.SampleFormat{Rate: 48000, Bits: 16, Channels: 2}
	r := &fakeReader{data: nil}
	s := newStream(r, sampleFormat, 20, nil, log.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	var sawIdle bool
	for i := 0; i < 2; i++ {
		select {
		case ev := <-s.Events():
			if ev.State == Idle {
				sawIdle = true
			}
		case <-time.After(time.Second):
		}
	}
	require.True(t, sawIdle)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after terminal EOF")
	}
}

func TestFileSourceLoops(t *testing.T) {
	tmp := t.TempDir() + "/loop.pcm"
	sampleFormat := format.SampleFormat{Rate: 48000, Bits: 16, Channels: 2}
	periodFrames := sampleFormat.DurationToFrames(20 * time.Millisecond)
	payload := make([]byte, periodFrames*sampleFormat.FrameSize())
	require.NoError(t, os.WriteFile(tmp, payload, 0600))

	src, err := NewFileSource(tmp, sampleFormat, 20, log.New(io.Discard))
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go src.Run(ctx)

	for i := 0; i < 3; i++ {
		select {
		case <-src.Chunks():
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for looped chunk")
		}
	}
	cancel()
}
