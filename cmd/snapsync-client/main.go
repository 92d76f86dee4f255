// Command snapsync-client connects to a snapsync server and plays the
// synchronized audio stream. Grounded on the teacher's
// cmd/resonate-server/main.go flag/signal handling, adapted to the
// client controller and its oto-backed sink.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/snapsync/snapsync-go/internal/client"
	"github.com/snapsync/snapsync-go/internal/discovery"
	"github.com/snapsync/snapsync-go/internal/sink"
	"github.com/snapsync/snapsync-go/internal/tui"
	"github.com/spf13/pflag"
)

func main() {
	var (
		serverAddr    = pflag.StringP("server", "s", "", "server address (host:port); if empty, discovered via mDNS")
		mac           = pflag.String("mac", "", "client MAC identifier (default: derived from hostname)")
		hostname      = pflag.String("hostname", "", "client hostname to report (default: os.Hostname)")
		latencyOffset = pflag.Int("latency-offset", 0, "playout latency tuning offset in milliseconds")
		graceMs       = pflag.Int32("grace", 200, "extra tolerance beyond buffer_ms before an incoming chunk is dropped")
		showTUI       = pflag.Bool("tui", false, "show the terminal status view")
		debug         = pflag.Bool("debug", false, "enable debug logging")
	)
	pflag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if *debug {
		logger.SetLevel(log.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	addr := *serverAddr
	if addr == "" {
		found, err := discoverServer(ctx, logger)
		if err != nil {
			logger.Fatal("mdns discovery failed", "err", err)
		}
		addr = found
	}

	host := *hostname
	if host == "" {
		if h, err := os.Hostname(); err == nil {
			host = h
		} else {
			host = "snapsync-client"
		}
	}
	clientMac := *mac
	if clientMac == "" {
		clientMac = host
	}

	cfg := client.Config{
		ServerAddr:    addr,
		Mac:           clientMac,
		Hostname:      host,
		Version:       "1.0",
		LatencyOffset: time.Duration(*latencyOffset) * time.Millisecond,
		GraceMs:       *graceMs,
	}

	ctrl := client.New(cfg, sink.New(logger), logger)

	if *showTUI {
		view := tui.NewClient()
		go runTUIFeed(ctx, ctrl, addr, view)
		go func() {
			if err := view.Run(); err != nil {
				logger.Warn("tui exited", "err", err)
			}
			cancel()
		}()
	}

	logger.Info("snapsync-client starting", "server", addr, "mac", clientMac)
	if err := ctrl.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("controller exited", "err", err)
	}
}

func runTUIFeed(ctx context.Context, ctrl *client.Controller, addr string, view *tui.ClientView) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			view.Stop()
			return
		case <-ticker.C:
			stats := ctrl.Stats()
			view.Update(tui.ClientStatus{
				ServerAddr:  addr,
				State:       stats.State.String(),
				Codec:       stats.Codec,
				SampleRate:  stats.SampleRate,
				ClockOffset: stats.ClockOffset,
				BufferDepth: stats.BufferDepth,
				SyncQuality: stats.SyncQuality,
			})
		}
	}
}

func discoverServer(ctx context.Context, logger *log.Logger) (string, error) {
	mgr := discovery.NewManager(discovery.Config{}, logger)
	mgr.Browse(ctx)
	select {
	case info := <-mgr.Servers():
		mgr.Stop()
		return fmt.Sprintf("%s:%d", info.Host, info.Port), nil
	case <-time.After(5 * time.Second):
		mgr.Stop()
		return "", context.DeadlineExceeded
	}
}
