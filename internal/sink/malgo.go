//go:build malgo

// Alternate audio output using miniaudio via gen2brain/malgo, chosen
// over Oto when the build wants native-bit-depth (24/32-bit) output
// instead of Oto's fixed int16. Grounded on the teacher's
// pkg/audio/output/malgo.go ring-buffer-fed device callback.
package sink

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"
	"github.com/snapsync/snapsync-go/internal/errs"
	"github.com/snapsync/snapsync-go/internal/format"
)

// Malgo is a miniaudio-backed sink preserving the source's native bit
// depth, at the cost of needing the platform's miniaudio backend.
type Malgo struct {
	logger *log.Logger

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	sampleFormat format.SampleFormat
	periodFrames int

	mu    sync.Mutex
	ring  []byte
	muted bool
}

// NewMalgo creates an unopened malgo sink.
func NewMalgo(logger *log.Logger) *Malgo {
	return &Malgo{logger: logger}
}

// Init starts a miniaudio playback device configured for f's native
// format and returns the pull period in frames.
func (m *Malgo) Init(f format.SampleFormat) (int, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return 0, errs.Sink("malgo: init context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = sampleFormatKind(f.Bits)
	deviceConfig.Playback.Channels = uint32(f.Channels)
	deviceConfig.SampleRate = f.Rate
	deviceConfig.PeriodSizeInMilliseconds = 20

	m.sampleFormat = f
	m.periodFrames = f.DurationToFrames(20 * time.Millisecond)
	m.ring = make([]byte, f.FrameSize()*m.periodFrames*4)

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: m.onData,
	})
	if err != nil {
		ctx.Uninit()
		return 0, errs.Sink("malgo: init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		return 0, errs.Sink("malgo: start device: %w", err)
	}

	m.ctx = ctx
	m.device = device
	return m.periodFrames, nil
}

func sampleFormatKind(bits uint16) malgo.FormatType {
	switch bits {
	case 24:
		return malgo.FormatS24
	case 32:
		return malgo.FormatS32
	default:
		return malgo.FormatS16
	}
}

// onData is miniaudio's pull callback, invoked on its own audio
// thread; it copies out whatever Run has written into the ring.
func (m *Malgo) onData(out, _ []byte, frameCount uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := copy(out, m.ring[:min(len(out), len(m.ring))])
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
}

// Run pulls one period at a time and copies it into the ring miniaudio
// drains from, keeping the native bit depth. It applies no volume
// scaling and ignores the mute flag.
func (m *Malgo) Run(ctx context.Context, pull func(buf []byte, playoutDelay time.Duration)) error {
	buf := make([]byte, m.sampleFormat.FrameSize()*m.periodFrames)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pull(buf, 20*time.Millisecond)
			m.mu.Lock()
			copy(m.ring, buf)
			m.mu.Unlock()
		}
	}
}

// SetVolume and SetMute are accepted for interface parity with Oto.
// SetVolume does nothing and SetMute only records the flag; neither
// changes the samples written to the device.
func (m *Malgo) SetVolume(v float64) {}
func (m *Malgo) SetMute(mute bool)   { m.muted = mute }

// Close stops the device and releases the context.
func (m *Malgo) Close() error {
	if m.device != nil {
		m.device.Uninit()
	}
	if m.ctx != nil {
		m.ctx.Uninit()
	}
	return nil
}
