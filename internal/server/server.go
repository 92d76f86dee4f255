// Package server implements the server half of the streaming engine:
// the stream hub (spec.md §4.4), per-session lifecycle, and the loop
// that drives a PCM source through an encoder and broadcasts the
// result. Grounded on the teacher's internal/server/server.go accept
// loop and internal/server/audio_engine.go's ticker-driven fan-out,
// generalized from its fixed test-tone/PCM pipeline to an arbitrary
// codec.Encoder over a source.Source.
package server

import (
	"context"
	"net"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/snapsync/snapsync-go/internal/codec"
	"github.com/snapsync/snapsync-go/internal/format"
	"github.com/snapsync/snapsync-go/internal/netio"
	"github.com/snapsync/snapsync-go/internal/source"
)

// Config holds the server's startup configuration.
type Config struct {
	ListenAddr string
	BufferMs   int32
}

// Server accepts client connections and wires each into the hub.
type Server struct {
	cfg      Config
	hub      *Hub
	logger   *log.Logger
	serverID string
}

// New creates a server with the given configuration. serverID is a
// random per-process identifier, used to tell restarted server
// instances apart in logs.
func New(cfg Config, logger *log.Logger) *Server {
	return &Server{cfg: cfg, hub: NewHub(cfg.BufferMs, logger), logger: logger, serverID: uuid.New().String()}
}

// ServerID returns this process's random instance identifier.
func (s *Server) ServerID() string { return s.serverID }

// Hub exposes the server's stream hub, e.g. for tests or a TUI.
func (s *Server) Hub() *Hub { return s.hub }

// RunSource drives src through enc, publishing every encoded chunk to
// the hub until ctx is cancelled or the source ends.
func (s *Server) RunSource(ctx context.Context, src source.Source, enc codec.Encoder, name codec.Name) {
	s.hub.SetStreamInfo(src.SampleFormat(), name, enc.Header())

	go src.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-src.Events():
			if ev.ResyncMs != 0 {
				s.logger.Info("source resync", "overrun_ms", ev.ResyncMs)
			} else {
				s.logger.Info("source state change", "state", ev.State.String())
			}
		case chunk := <-src.Chunks():
			encoded, err := enc.Encode(chunk)
			if err != nil {
				s.logger.Warn("encode failed", "err", err)
				continue
			}
			ts := chunk.Timestamp
			for _, e := range encoded {
				s.hub.Broadcast(&EncodedChunk{Timestamp: ts, Payload: e.Payload})
				rate := e.Rate
				if rate == 0 {
					rate = chunk.Format.Rate
				}
				ts = ts.Add((format.SampleFormat{Rate: rate}).FramesToDuration(e.Frames))
			}
		}
	}
}

// ListenAndServe accepts connections on cfg.ListenAddr until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.logger.Info("listening", "addr", s.cfg.ListenAddr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	netConn := netio.New(conn, s.logger)
	session := NewSession(netConn, s.hub.BufferMs(), s.logger)
	s.hub.AddSession(session)
	defer s.hub.RemoveSession(session)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go netConn.Run(connCtx)
	go session.RunWriter(connCtx)

	for {
		select {
		case <-connCtx.Done():
			return
		case <-netConn.Done():
			return
		case msg := <-netConn.Inbound():
			if err := s.hub.dispatch(session, msg); err != nil {
				s.logger.Debug("dispatch error, closing session", "mac", session.Mac(), "err", err)
				netConn.Close()
				return
			}
		}
	}
}
