package server

import (
	"github.com/snapsync/snapsync-go/internal/errs"
	"github.com/snapsync/snapsync-go/internal/netio"
	"github.com/snapsync/snapsync-go/internal/wire"
)

// dispatch answers one inbound message per spec.md §4.4: Hello
// records the client's identity; Request is answered from the hub's
// current state; Command("startStream") flips stream_active and is
// acknowledged; Time replies with the one-way latency the server
// observed for that message.
func (h *Hub) dispatch(s *Session, msg netio.Inbound) error {
	switch msg.Header.Type {
	case wire.TypeHello:
		hello, err := wire.UnmarshalHello(msg.Payload)
		if err != nil {
			return err
		}
		s.SetMac(hello.Mac)
		h.logger.Info("client identified", "session", s.ID(), "mac", hello.Mac, "hostname", hello.Hostname)

	case wire.TypeTime:
		latencyUs := msg.Header.Received.Micros() - msg.Header.Sent.Micros()
		reply := wire.TimeFromMicros(latencyUs)
		return s.conn.Send(wire.Header{Type: wire.TypeTime, RefersTo: msg.Header.ID}, reply.Marshal())

	case wire.TypeRequest:
		req, err := wire.UnmarshalRequest(msg.Payload)
		if err != nil {
			return err
		}
		return h.answerRequest(s, msg.Header.ID, req.Request)

	case wire.TypeCommand:
		cmd, err := wire.UnmarshalCommand(msg.Payload)
		if err != nil {
			return err
		}
		if cmd.Command == "startStream" {
			s.Activate()
		}
		return s.conn.Send(wire.Header{Type: wire.TypeAck, RefersTo: msg.Header.ID}, nil)

	default:
		return errs.Protocol("unexpected message type %s from session", msg.Header.Type)
	}
	return nil
}

func (h *Hub) answerRequest(s *Session, requestID uint16, kind wire.Type) error {
	header := wire.Header{RefersTo: requestID}
	switch kind {
	case wire.TypeServerSettings:
		header.Type = wire.TypeServerSettings
		return s.conn.Send(header, wire.ServerSettingsMsg{BufferMs: h.BufferMs()}.Marshal())

	case wire.TypeSampleFormat:
		f, _, _ := h.StreamInfo()
		header.Type = wire.TypeSampleFormat
		return s.conn.Send(header, wire.FromFormat(f).Marshal())

	case wire.TypeCodecHeader:
		_, name, codecHeader := h.StreamInfo()
		header.Type = wire.TypeCodecHeader
		return s.conn.Send(header, wire.CodecHeaderMsg{Codec: string(name), Payload: codecHeader}.Marshal())

	default:
		return errs.Protocol("unsupported request kind %s", kind)
	}
}
