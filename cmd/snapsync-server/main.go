// Command snapsync-server streams one PCM source to any number of
// connected clients. Grounded on the teacher's cmd/resonate-server/main.go
// flag parsing and signal handling, adapted from flag to pflag and from
// the teacher's single hardcoded codec to a selectable one.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/snapsync/snapsync-go/internal/codec"
	"github.com/snapsync/snapsync-go/internal/codec/flac"
	"github.com/snapsync/snapsync-go/internal/codec/opus"
	"github.com/snapsync/snapsync-go/internal/codec/pcm"
	"github.com/snapsync/snapsync-go/internal/discovery"
	"github.com/snapsync/snapsync-go/internal/format"
	"github.com/snapsync/snapsync-go/internal/server"
	"github.com/snapsync/snapsync-go/internal/source"
	"github.com/snapsync/snapsync-go/internal/tui"
	"github.com/spf13/pflag"
)

func main() {
	var (
		port       = pflag.IntP("port", "p", 1704, "TCP port to listen on")
		name       = pflag.String("name", "", "server name advertised over mDNS (default: hostname)")
		bufferMs   = pflag.Int32("buffer", 1000, "end-to-end buffer size in milliseconds")
		codecName  = pflag.String("codec", "flac", "codec to encode with: pcm, flac, opus")
		sourceKind = pflag.String("source", "tone", "PCM source: tone, pipe, file, mp3")
		sourcePath = pflag.String("source-path", "", "path for pipe/file/mp3 sources")
		periodMs   = pflag.Int("period", 20, "PCM source period in milliseconds")
		rate       = pflag.Uint32("rate", 48000, "source sample rate")
		bits       = pflag.Uint16("bits", 16, "source bit depth")
		channels   = pflag.Uint16("channels", 2, "source channel count")
		noMDNS     = pflag.Bool("no-mdns", false, "disable mDNS advertisement")
		showTUI    = pflag.Bool("tui", false, "show the terminal status view")
		debug      = pflag.Bool("debug", false, "enable debug logging")
	)
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if *debug {
		logger.SetLevel(log.DebugLevel)
	}

	serverName := *name
	if serverName == "" {
		if hostname, err := os.Hostname(); err == nil {
			serverName = hostname
		} else {
			serverName = "snapsync-server"
		}
	}

	sampleFormat := format.SampleFormat{Rate: *rate, Bits: *bits, Channels: *channels}
	src, err := openSource(*sourceKind, *sourcePath, *periodMs, sampleFormat, logger)
	if err != nil {
		logger.Fatal("open source", "err", err)
	}

	enc, name2, err := openEncoder(*codecName, sampleFormat)
	if err != nil {
		logger.Fatal("open encoder", "err", err)
	}

	srv := server.New(server.Config{ListenAddr: fmt.Sprintf(":%d", *port), BufferMs: *bufferMs}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	if !*noMDNS {
		mgr := discovery.NewManager(discovery.Config{ServiceName: serverName, Port: *port}, logger)
		if err := mgr.Advertise(ctx); err != nil {
			logger.Warn("mdns advertise failed", "err", err)
		}
		defer mgr.Stop()
	}

	if *showTUI {
		view := tui.New()
		go runTUIFeed(ctx, srv, view)
		go func() {
			if err := view.Run(); err != nil {
				logger.Warn("tui exited", "err", err)
			}
			cancel()
		}()
	}

	go srv.RunSource(ctx, src, enc, name2)

	logger.Info("snapsync-server starting", "name", serverName, "port", *port, "codec", name2, "source", *sourceKind)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Fatal("serve", "err", err)
	}
}

func openSource(kind, path string, periodMs int, f format.SampleFormat, logger *log.Logger) (source.Source, error) {
	switch kind {
	case "tone":
		return source.NewToneSource(f, periodMs), nil
	case "pipe":
		return source.NewPipeSource(path, true, f, periodMs, logger)
	case "file":
		return source.NewFileSource(path, f, periodMs, logger)
	case "mp3":
		return source.NewMP3FileSource(path, periodMs, logger)
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
}

func openEncoder(name string, f format.SampleFormat) (codec.Encoder, codec.Name, error) {
	switch codec.Name(name) {
	case codec.PCM:
		return pcm.NewEncoder(f), codec.PCM, nil
	case codec.FLAC:
		enc, err := flac.NewEncoder(f, 5)
		return enc, codec.FLAC, err
	case codec.Opus:
		enc, err := opus.NewEncoder(int(f.Rate), int(f.Channels), opus.Options{Bitrate: opus.BitrateAuto})
		return enc, codec.Opus, err
	default:
		return nil, "", fmt.Errorf("unknown codec %q", name)
	}
}

func runTUIFeed(ctx context.Context, srv *server.Server, view *tui.View) {
	startedAt := time.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			view.Stop()
			return
		case <-ticker.C:
			view.Update(srv.Status(startedAt))
		}
	}
}
