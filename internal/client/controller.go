// Package client implements the client side of the streaming protocol:
// the connection handshake, clock synchronization, the jitter buffer,
// and the top-level state machine that ties them to an audio sink.
// Grounded on the teacher's internal/client/websocket.go connection
// lifecycle, generalized from its JSON/WebSocket handshake to the
// binary Hello/Request/Command sequence spec.md §4.9 describes.
package client

import (
	"context"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/snapsync/snapsync-go/internal/codec"
	"github.com/snapsync/snapsync-go/internal/codec/flac"
	"github.com/snapsync/snapsync-go/internal/codec/opus"
	"github.com/snapsync/snapsync-go/internal/codec/pcm"
	"github.com/snapsync/snapsync-go/internal/codec/vorbis"
	"github.com/snapsync/snapsync-go/internal/errs"
	"github.com/snapsync/snapsync-go/internal/format"
	"github.com/snapsync/snapsync-go/internal/netio"
	"github.com/snapsync/snapsync-go/internal/wire"
)

// State is the controller's place in the spec.md §4.9 state machine.
type State int

const (
	Disconnected State = iota
	Connecting
	Handshaking
	Streaming
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Handshaking:
		return "handshaking"
	case Streaming:
		return "streaming"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

const (
	requestTimeout    = 1000 * time.Millisecond
	reconnectGrace    = 1 * time.Second
	timeBurstCount    = 50
	timeBurstSpacing  = 100 * time.Microsecond
	timeSyncInterval  = 5 * time.Second
	timeoutBudget     = 10 * time.Second
)

// Sink is the audio output abstraction the controller drives; see
// internal/sink for the concrete oto-backed implementation.
type Sink interface {
	Init(f format.SampleFormat) (periodFrames int, err error)
	// Run blocks, invoking pull once per period until ctx is done or
	// the driver fails. pull must write exactly len(buf) bytes.
	Run(ctx context.Context, pull func(buf []byte, playoutDelay time.Duration)) error
	Close() error
}

// Config holds one controller's identity and tuning knobs.
type Config struct {
	ServerAddr    string
	Mac           string
	Hostname      string
	Version       string
	LatencyOffset time.Duration
	GraceMs       int32
}

// Controller drives the client state machine: connect, handshake,
// stream, and reconnect on fatal error, per spec.md §4.9.
type Controller struct {
	cfg    Config
	sink   Sink
	logger *log.Logger

	state     State
	estimator *TimeEstimator
	sess      *session

	accumulatedTimeouts time.Duration
}

// Stats is a point-in-time snapshot of controller state for the
// optional status view.
type Stats struct {
	State        State
	ServerAddr   string
	Codec        string
	SampleRate   uint32
	ClockOffset  time.Duration
	BufferDepth  int
	SyncQuality  time.Duration
}

// Stats returns a snapshot safe to read from another goroutine.
func (c *Controller) Stats() Stats {
	s := Stats{
		State:       c.state,
		ServerAddr:  c.cfg.ServerAddr,
		ClockOffset: time.Duration(c.estimator.OffsetUs()) * time.Microsecond,
	}
	if sess := c.sess; sess != nil {
		s.Codec = string(sess.codecName)
		s.SampleRate = sess.sampleFormat.Rate
		s.BufferDepth = sess.jitter.Depth()
		s.SyncQuality = sess.jitter.SyncQuality()
	}
	return s
}

// New creates a controller for the given sink.
func New(cfg Config, sink Sink, logger *log.Logger) *Controller {
	return &Controller{cfg: cfg, sink: sink, logger: logger, estimator: NewTimeEstimator()}
}

// State returns the controller's current state.
func (c *Controller) State() State { return c.state }

// Run drives the controller until ctx is cancelled, reconnecting after
// any fatal connection error with a grace period between attempts.
func (c *Controller) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.state = Connecting
		conn, err := c.connect(ctx)
		if err != nil {
			c.logger.Warn("connect failed", "err", err)
			if !c.sleep(ctx, reconnectGrace) {
				return ctx.Err()
			}
			continue
		}

		c.state = Handshaking
		sess, err := c.handshake(conn)
		if err != nil {
			c.logger.Warn("handshake failed", "err", err)
			conn.Close()
			c.state = Reconnecting
			if !c.sleep(ctx, reconnectGrace) {
				return ctx.Err()
			}
			continue
		}

		c.state = Streaming
		c.accumulatedTimeouts = 0
		c.sess = sess
		err = c.stream(ctx, conn, sess)
		c.logger.Info("stream ended, reconnecting", "err", err)
		c.teardown(sess)
		c.sess = nil
		conn.Close()

		c.state = Reconnecting
		if !c.sleep(ctx, reconnectGrace) {
			return ctx.Err()
		}
	}
}

func (c *Controller) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Controller) connect(ctx context.Context) (*netio.Connection, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", c.cfg.ServerAddr)
	if err != nil {
		return nil, errs.Transport("dial %s: %w", c.cfg.ServerAddr, err)
	}
	conn := netio.New(nc, c.logger)
	go conn.Run(ctx)
	return conn, nil
}

// session holds everything the handshake negotiates, handed off to
// the streaming loop.
type session struct {
	sampleFormat format.SampleFormat
	bufferMs     int32
	codecName    codec.Name
	decoder      codec.Decoder
	jitter       *JitterBuffer
	periodFrames int
}

func (c *Controller) handshake(conn *netio.Connection) (*session, error) {
	hello := wire.HelloMsg{Mac: c.cfg.Mac, Hostname: c.cfg.Hostname, Version: c.cfg.Version}
	if err := conn.Send(wire.Header{Type: wire.TypeHello}, hello.Marshal()); err != nil {
		return nil, err
	}

	_, settingsPayload, err := conn.Request(wire.TypeRequest, wire.RequestMsg{Request: wire.TypeServerSettings}.Marshal(), requestTimeout)
	if err != nil {
		return nil, err
	}
	settings, err := wire.UnmarshalServerSettings(settingsPayload)
	if err != nil {
		return nil, err
	}

	_, formatPayload, err := conn.Request(wire.TypeRequest, wire.RequestMsg{Request: wire.TypeSampleFormat}.Marshal(), requestTimeout)
	if err != nil {
		return nil, err
	}
	sampleFormatMsg, err := wire.UnmarshalSampleFormat(formatPayload)
	if err != nil {
		return nil, err
	}
	sampleFormat := sampleFormatMsg.ToFormat()

	_, headerPayload, err := conn.Request(wire.TypeRequest, wire.RequestMsg{Request: wire.TypeCodecHeader}.Marshal(), requestTimeout)
	if err != nil {
		return nil, err
	}
	codecHeader, err := wire.UnmarshalCodecHeader(headerPayload)
	if err != nil {
		return nil, err
	}

	decoder, err := newDecoder(codec.Name(codecHeader.Codec), sampleFormat)
	if err != nil {
		return nil, err
	}
	if decodedFormat, err := decoder.SetHeader(codecHeader.Payload); err != nil {
		return nil, err
	} else if decodedFormat.Rate != 0 {
		sampleFormat = decodedFormat
	}

	if err := c.timeBurst(conn); err != nil {
		return nil, err
	}

	if _, _, err := conn.Request(wire.TypeCommand, wire.CommandMsg{Command: "startStream"}.Marshal(), requestTimeout); err != nil {
		return nil, err
	}

	periodFrames, err := c.sink.Init(sampleFormat)
	if err != nil {
		return nil, errs.Sink("init: %w", err)
	}

	return &session{
		sampleFormat: sampleFormat,
		bufferMs:     settings.BufferMs,
		codecName:    codec.Name(codecHeader.Codec),
		decoder:      decoder,
		jitter:       NewJitterBuffer(sampleFormat, settings.BufferMs, c.cfg.GraceMs, c.cfg.LatencyOffset),
		periodFrames: periodFrames,
	}, nil
}

func newDecoder(name codec.Name, f format.SampleFormat) (codec.Decoder, error) {
	switch name {
	case codec.PCM, "":
		d := pcm.NewDecoder()
		d.SetFormat(f)
		return d, nil
	case codec.FLAC:
		return flac.NewDecoder(), nil
	case codec.Opus:
		return opus.NewDecoder(int(f.Channels))
	case codec.Ogg:
		return vorbis.NewDecoder(), nil
	default:
		return nil, errs.Protocol("unsupported codec %q", name)
	}
}

// timeBurst seeds the estimator with timeBurstCount closely spaced
// samples, per spec.md §4.6.
func (c *Controller) timeBurst(conn *netio.Connection) error {
	for i := 0; i < timeBurstCount; i++ {
		if err := c.syncOnce(conn); err != nil {
			return err
		}
		time.Sleep(timeBurstSpacing)
	}
	return nil
}

func (c *Controller) syncOnce(conn *netio.Connection) error {
	sentAt := time.Now()
	_, payload, err := conn.Request(wire.TypeTime, nil, requestTimeout)
	if err != nil {
		c.accumulatedTimeouts += requestTimeout
		if c.accumulatedTimeouts > timeoutBudget {
			return errs.Clock("accumulated request timeouts exceeded %s", timeoutBudget)
		}
		return nil
	}
	c.accumulatedTimeouts = 0
	reply, err := wire.UnmarshalTime(payload)
	if err != nil {
		return err
	}
	c.estimator.Observe(sentAt, time.Now(), reply)
	return nil
}

// stream runs the steady-state Streaming phase: periodic time-sync,
// decode of arriving WireChunk messages into the jitter buffer, and
// the sink's pull callback reading from it. Returns when the
// connection dies or a fatal decode/clock error occurs.
func (c *Controller) stream(ctx context.Context, conn *netio.Connection, sess *session) error {
	sinkCtx, cancelSink := context.WithCancel(ctx)
	defer cancelSink()

	sinkErrCh := make(chan error, 1)
	go func() {
		sinkErrCh <- c.sink.Run(sinkCtx, func(buf []byte, playoutDelay time.Duration) {
			sess.jitter.GetPlayerChunk(buf, playoutDelay, c.estimator.ServerNow)
		})
	}()

	ticker := time.NewTicker(timeSyncInterval)
	defer ticker.Stop()

	consecutiveDecodeFailures := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-conn.Done():
			return errs.Transport("connection closed")
		case err := <-sinkErrCh:
			return errs.Sink("sink driver exited: %w", err)
		case <-ticker.C:
			if err := c.syncOnce(conn); err != nil {
				return err
			}
		case msg := <-conn.Inbound():
			switch msg.Header.Type {
			case wire.TypeWireChunk:
				chunkMsg, err := wire.UnmarshalWireChunk(msg.Payload)
				if err != nil {
					return err
				}
				pcmChunk := &format.Chunk{Timestamp: chunkMsg.Timestamp, Format: sess.sampleFormat, Payload: chunkMsg.Payload}
				if err := sess.decoder.Decode(pcmChunk); err != nil {
					consecutiveDecodeFailures++
					c.logger.Debug("decode failed, dropping chunk", "err", err)
					if consecutiveDecodeFailures >= 3 {
						return errs.Decode("too many consecutive decode failures: %w", err)
					}
					continue
				}
				consecutiveDecodeFailures = 0
				sess.jitter.Push(pcmChunk, format.Now())
			default:
				c.logger.Debug("unhandled message", "type", msg.Header.Type.String())
			}
		}
	}
}

func (c *Controller) teardown(sess *session) {
	if sess == nil {
		return
	}
	if sess.decoder != nil {
		sess.decoder.Close()
	}
	sess.jitter.Reset()
}
