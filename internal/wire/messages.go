package wire

import (
	"encoding/binary"

	"github.com/snapsync/snapsync-go/internal/errs"
	"github.com/snapsync/snapsync-go/internal/format"
)

// SampleFormatMsg mirrors format.SampleFormat on the wire, plus the
// derived sampleSize/frameSize fields the original protocol carries
// (kept for bit-exact compatibility, though both ends can recompute
// them).
type SampleFormatMsg struct {
	Rate       uint32
	Bits       uint16
	Channels   uint16
	SampleSize uint16
	FrameSize  uint16
}

// FromFormat builds a SampleFormatMsg from a format.SampleFormat.
func FromFormat(f format.SampleFormat) SampleFormatMsg {
	return SampleFormatMsg{
		Rate:       f.Rate,
		Bits:       f.Bits,
		Channels:   f.Channels,
		SampleSize: uint16(f.SampleSize()),
		FrameSize:  uint16(f.FrameSize()),
	}
}

// ToFormat converts back to format.SampleFormat.
func (m SampleFormatMsg) ToFormat() format.SampleFormat {
	return format.SampleFormat{Rate: m.Rate, Bits: m.Bits, Channels: m.Channels}
}

func (m SampleFormatMsg) Marshal() []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], m.Rate)
	binary.LittleEndian.PutUint16(buf[4:6], m.Bits)
	binary.LittleEndian.PutUint16(buf[6:8], m.Channels)
	binary.LittleEndian.PutUint16(buf[8:10], m.SampleSize)
	binary.LittleEndian.PutUint16(buf[10:12], m.FrameSize)
	return buf
}

func UnmarshalSampleFormat(data []byte) (SampleFormatMsg, error) {
	if len(data) < 12 {
		return SampleFormatMsg{}, errs.Protocol("sample format: short payload")
	}
	return SampleFormatMsg{
		Rate:       binary.LittleEndian.Uint32(data[0:4]),
		Bits:       binary.LittleEndian.Uint16(data[4:6]),
		Channels:   binary.LittleEndian.Uint16(data[6:8]),
		SampleSize: binary.LittleEndian.Uint16(data[8:10]),
		FrameSize:  binary.LittleEndian.Uint16(data[10:12]),
	}, nil
}

// ServerSettingsMsg carries the negotiated end-to-end buffer size.
type ServerSettingsMsg struct {
	BufferMs int32
}

func (m ServerSettingsMsg) Marshal() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(m.BufferMs))
	return buf
}

func UnmarshalServerSettings(data []byte) (ServerSettingsMsg, error) {
	if len(data) < 4 {
		return ServerSettingsMsg{}, errs.Protocol("server settings: short payload")
	}
	return ServerSettingsMsg{BufferMs: int32(binary.LittleEndian.Uint32(data[0:4]))}, nil
}

// TimeMsg carries the observed one-way latency as a signed (sec, usec)
// duration; sent as a reply to a client's Time request.
type TimeMsg struct {
	LatencySec  int32
	LatencyUsec int32
}

func (m TimeMsg) Marshal() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.LatencySec))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(m.LatencyUsec))
	return buf
}

func UnmarshalTime(data []byte) (TimeMsg, error) {
	if len(data) < 8 {
		return TimeMsg{}, errs.Protocol("time: short payload")
	}
	return TimeMsg{
		LatencySec:  int32(binary.LittleEndian.Uint32(data[0:4])),
		LatencyUsec: int32(binary.LittleEndian.Uint32(data[4:8])),
	}, nil
}

// LatencyMicros returns the latency as a single signed microsecond count.
func (m TimeMsg) LatencyMicros() int64 {
	return int64(m.LatencySec)*1_000_000 + int64(m.LatencyUsec)
}

// TimeFromMicros builds a TimeMsg from a signed microsecond latency.
func TimeFromMicros(us int64) TimeMsg {
	wc := format.FromMicros(us)
	return TimeMsg{LatencySec: wc.Sec, LatencyUsec: wc.Usec}
}

// RequestMsg asks the peer to send a message of the given kind; reuses
// the outer Type enum (e.g. Request{SampleFormat} means "send me your
// current SampleFormat").
type RequestMsg struct {
	Request Type
}

func (m RequestMsg) Marshal() []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(m.Request))
	return buf
}

func UnmarshalRequest(data []byte) (RequestMsg, error) {
	if len(data) < 2 {
		return RequestMsg{}, errs.Protocol("request: short payload")
	}
	return RequestMsg{Request: Type(binary.LittleEndian.Uint16(data[0:2]))}, nil
}

// AckMsg is an empty acknowledgement; its presence (matched by
// RefersTo) is the whole message.
type AckMsg struct{}

func (AckMsg) Marshal() []byte { return nil }

func UnmarshalAck([]byte) (AckMsg, error) { return AckMsg{}, nil }

// CommandMsg carries a named command string, e.g. "startStream".
type CommandMsg struct {
	Command string
}

func (m CommandMsg) Marshal() []byte {
	return writeString(nil, m.Command)
}

func UnmarshalCommand(data []byte) (CommandMsg, error) {
	s, _, err := readString(data)
	if err != nil {
		return CommandMsg{}, err
	}
	return CommandMsg{Command: s}, nil
}

// HelloMsg identifies a connecting client by MAC, hostname, and
// protocol version.
type HelloMsg struct {
	Mac      string
	Hostname string
	Version  string
}

func (m HelloMsg) Marshal() []byte {
	buf := writeString(nil, m.Mac)
	buf = writeString(buf, m.Hostname)
	buf = writeString(buf, m.Version)
	return buf
}

func UnmarshalHello(data []byte) (HelloMsg, error) {
	mac, n, err := readString(data)
	if err != nil {
		return HelloMsg{}, err
	}
	data = data[n:]
	host, n, err := readString(data)
	if err != nil {
		return HelloMsg{}, err
	}
	data = data[n:]
	ver, _, err := readString(data)
	if err != nil {
		return HelloMsg{}, err
	}
	return HelloMsg{Mac: mac, Hostname: host, Version: ver}, nil
}

// StringMsg is a bare length-prefixed string message.
type StringMsg struct {
	Value string
}

func (m StringMsg) Marshal() []byte { return writeString(nil, m.Value) }

func UnmarshalString(data []byte) (StringMsg, error) {
	s, _, err := readString(data)
	if err != nil {
		return StringMsg{}, err
	}
	return StringMsg{Value: s}, nil
}

// MapMsg is a string-to-string map, u16 count then length-prefixed
// key/value pairs.
type MapMsg struct {
	Values map[string]string
}

func (m MapMsg) Marshal() []byte {
	var countBuf [2]byte
	binary.LittleEndian.PutUint16(countBuf[:], uint16(len(m.Values)))
	buf := append([]byte{}, countBuf[:]...)
	for k, v := range m.Values {
		buf = writeString(buf, k)
		buf = writeString(buf, v)
	}
	return buf
}

func UnmarshalMap(data []byte) (MapMsg, error) {
	if len(data) < 2 {
		return MapMsg{}, errs.Protocol("map: short payload")
	}
	count := int(binary.LittleEndian.Uint16(data[0:2]))
	data = data[2:]
	values := make(map[string]string, count)
	for i := 0; i < count; i++ {
		k, n, err := readString(data)
		if err != nil {
			return MapMsg{}, err
		}
		data = data[n:]
		v, n, err := readString(data)
		if err != nil {
			return MapMsg{}, err
		}
		data = data[n:]
		values[k] = v
	}
	return MapMsg{Values: values}, nil
}

// CodecHeaderMsg is the one-time opaque header a codec emits before
// any audio chunk (e.g. a FLAC STREAMINFO block).
type CodecHeaderMsg struct {
	Codec   string
	Payload []byte
}

func (m CodecHeaderMsg) Marshal() []byte {
	buf := writeString(nil, m.Codec)
	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(m.Payload)))
	buf = append(buf, sizeBuf[:]...)
	buf = append(buf, m.Payload...)
	return buf
}

func UnmarshalCodecHeader(data []byte) (CodecHeaderMsg, error) {
	codec, n, err := readString(data)
	if err != nil {
		return CodecHeaderMsg{}, err
	}
	data = data[n:]
	if len(data) < 4 {
		return CodecHeaderMsg{}, errs.Protocol("codec header: short size")
	}
	size := int(binary.LittleEndian.Uint32(data[0:4]))
	data = data[4:]
	if len(data) < size {
		return CodecHeaderMsg{}, errs.Protocol("codec header: short payload")
	}
	payload := make([]byte, size)
	copy(payload, data[:size])
	return CodecHeaderMsg{Codec: codec, Payload: payload}, nil
}

// WireChunkMsg is a raw (possibly still encoded) chunk of audio bytes
// with its start timestamp.
type WireChunkMsg struct {
	Timestamp format.WallClock
	Payload   []byte
}

func (m WireChunkMsg) Marshal() []byte {
	buf := make([]byte, 12+len(m.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.Timestamp.Sec))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(m.Timestamp.Usec))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(m.Payload)))
	copy(buf[12:], m.Payload)
	return buf
}

func UnmarshalWireChunk(data []byte) (WireChunkMsg, error) {
	if len(data) < 12 {
		return WireChunkMsg{}, errs.Protocol("wire chunk: short header")
	}
	ts := format.WallClock{
		Sec:  int32(binary.LittleEndian.Uint32(data[0:4])),
		Usec: int32(binary.LittleEndian.Uint32(data[4:8])),
	}
	size := int(binary.LittleEndian.Uint32(data[8:12]))
	if len(data)-12 < size {
		return WireChunkMsg{}, errs.Protocol("wire chunk: short payload")
	}
	payload := make([]byte, size)
	copy(payload, data[12:12+size])
	return WireChunkMsg{Timestamp: ts, Payload: payload}, nil
}
