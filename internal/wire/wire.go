// Package wire implements the framed binary message protocol described
// in spec.md §4.1: a fixed-width header followed by a type-specific
// payload, little-endian, no padding, no checksum (TCP is trusted for
// integrity).
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/snapsync/snapsync-go/internal/errs"
	"github.com/snapsync/snapsync-go/internal/format"
)

// Type is the wire value of a message kind. Values must stay stable;
// they are part of the on-the-wire contract with other Snapcast peers.
type Type uint16

const (
	TypeBase          Type = 0
	TypeCodecHeader   Type = 1
	TypeWireChunk     Type = 2
	TypeSampleFormat  Type = 3
	TypeServerSettings Type = 4
	TypeTime          Type = 5
	TypeRequest       Type = 6
	TypeAck           Type = 7
	TypeCommand       Type = 8
	TypeHello         Type = 9
	TypeMap           Type = 10
	TypeString        Type = 11
)

func (t Type) String() string {
	switch t {
	case TypeBase:
		return "Base"
	case TypeCodecHeader:
		return "CodecHeader"
	case TypeWireChunk:
		return "WireChunk"
	case TypeSampleFormat:
		return "SampleFormat"
	case TypeServerSettings:
		return "ServerSettings"
	case TypeTime:
		return "Time"
	case TypeRequest:
		return "Request"
	case TypeAck:
		return "Ack"
	case TypeCommand:
		return "Command"
	case TypeHello:
		return "Hello"
	case TypeMap:
		return "Map"
	case TypeString:
		return "String"
	default:
		return fmt.Sprintf("Type(%d)", uint16(t))
	}
}

// IsValid reports whether t is one of the enumerated wire types.
func (t Type) IsValid() bool {
	return t <= TypeString
}

// MaxSize is the default cap on a single message's payload, per
// spec.md §4.1. A larger size fails the connection with a protocol
// error.
const MaxSize = 16 * 1024 * 1024

// headerWireSize is the fixed-width header: type, id, refersTo (u16
// each), sent sec/usec, recv sec/usec (i32 each), size (u32).
const headerWireSize = 2 + 2 + 2 + 4 + 4 + 4 + 4 + 4

// Header is the common fixed-width header carried by every message.
type Header struct {
	Type      Type
	ID        uint16
	RefersTo  uint16
	Sent      format.WallClock
	Received  format.WallClock
	Size      uint32
}

// Message is a fully framed wire message: header plus raw payload
// bytes. Payload decoding into a typed struct happens via the Unmarshal*
// helpers in messages.go, keyed on Header.Type.
type Message struct {
	Header  Header
	Payload []byte
}

// WriteMessage serializes h and payload to w. The caller is responsible for
// stamping Sent just before calling this, per the §4.1 contract.
func WriteMessage(w io.Writer, h Header, payload []byte) error {
	if len(payload) > MaxSize {
		return errs.Protocol("payload too large: %d bytes", len(payload))
	}
	h.Size = uint32(len(payload))

	buf := make([]byte, headerWireSize+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(h.Type))
	binary.LittleEndian.PutUint16(buf[2:4], h.ID)
	binary.LittleEndian.PutUint16(buf[4:6], h.RefersTo)
	binary.LittleEndian.PutUint32(buf[6:10], uint32(h.Sent.Sec))
	binary.LittleEndian.PutUint32(buf[10:14], uint32(h.Sent.Usec))
	binary.LittleEndian.PutUint32(buf[14:18], uint32(h.Received.Sec))
	binary.LittleEndian.PutUint32(buf[18:22], uint32(h.Received.Usec))
	binary.LittleEndian.PutUint32(buf[22:26], h.Size)
	copy(buf[headerWireSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return errs.Transport("write message: %w", err)
	}
	return nil
}

// ReadMessage reads one framed message from r, stamping Received with
// the wall-clock time just after the header is fully read, overwriting
// whatever the sender put there.
func ReadMessage(r io.Reader) (Header, []byte, error) {
	hdrBuf := make([]byte, headerWireSize)
	if _, err := io.ReadFull(r, hdrBuf); err != nil {
		return Header{}, nil, errs.Transport("read header: %w", err)
	}

	h := Header{
		Type:     Type(binary.LittleEndian.Uint16(hdrBuf[0:2])),
		ID:       binary.LittleEndian.Uint16(hdrBuf[2:4]),
		RefersTo: binary.LittleEndian.Uint16(hdrBuf[4:6]),
		Sent: format.WallClock{
			Sec:  int32(binary.LittleEndian.Uint32(hdrBuf[6:10])),
			Usec: int32(binary.LittleEndian.Uint32(hdrBuf[10:14])),
		},
		Size: binary.LittleEndian.Uint32(hdrBuf[22:26]),
	}
	h.Received = format.Now()

	if !h.Type.IsValid() {
		return Header{}, nil, errs.Protocol("unknown message type %d", uint16(h.Type))
	}
	if h.Size > MaxSize {
		return Header{}, nil, errs.Protocol("payload too large: %d bytes", h.Size)
	}

	payload := make([]byte, h.Size)
	if h.Size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Header{}, nil, errs.Transport("read payload: %w", err)
		}
	}
	return h, payload, nil
}

// writeString writes a u16-length-prefixed UTF-8 string.
func writeString(buf []byte, s string) []byte {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(s)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	return buf
}

// readString reads a u16-length-prefixed UTF-8 string, returning the
// string and the number of bytes consumed.
func readString(data []byte) (string, int, error) {
	if len(data) < 2 {
		return "", 0, errs.Protocol("truncated string length")
	}
	n := int(binary.LittleEndian.Uint16(data[0:2]))
	if len(data) < 2+n {
		return "", 0, errs.Protocol("truncated string payload")
	}
	return string(data[2 : 2+n]), 2 + n, nil
}
