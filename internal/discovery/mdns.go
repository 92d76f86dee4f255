// Package discovery implements mDNS advertise/browse for the
// streaming port, an ambient convenience outside the synchronized
// streaming engine's core (spec.md §1 lists mDNS discovery among the
// excluded external collaborators). Grounded on the teacher's
// internal/discovery/mdns.go, adapted from the Sendspin service names
// to snapcast's and from stdlib log to the shared charmbracelet/log
// logger.
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/mdns"
)

const (
	serviceType = "_snapcast._tcp"
)

// Config holds discovery configuration.
type Config struct {
	ServiceName string
	Port        int
}

// Manager handles mDNS advertisement and browsing for the streaming
// port.
type Manager struct {
	config  Config
	logger  *log.Logger
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered server.
type ServerInfo struct {
	Name string
	Host string
	Port int
}

// NewManager creates a discovery manager.
func NewManager(config Config, logger *log.Logger) *Manager {
	return &Manager{
		config:  config,
		logger:  logger,
		servers: make(chan *ServerInfo, 10),
	}
}

// Advertise publishes this process's streaming port via mDNS until
// ctx is cancelled.
func (m *Manager) Advertise(ctx context.Context) error {
	ips, err := localIPs()
	if err != nil {
		return fmt.Errorf("discovery: local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(m.config.ServiceName, serviceType, "", "", m.config.Port, ips, nil)
	if err != nil {
		return fmt.Errorf("discovery: new service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("discovery: new server: %w", err)
	}

	m.logger.Info("advertising mdns service", "name", m.config.ServiceName, "port", m.config.Port, "type", serviceType)

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()
	return nil
}

// Browse searches for snapcast servers on the LAN until ctx is
// cancelled. Discovered servers are delivered on Servers().
func (m *Manager) Browse(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.browseLoop(ctx)
}

func (m *Manager) browseLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		go func() {
			for entry := range entries {
				info := &ServerInfo{Name: entry.Name, Host: entry.AddrV4.String(), Port: entry.Port}
				m.logger.Debug("discovered server", "name", info.Name, "host", info.Host, "port", info.Port)
				select {
				case m.servers <- info:
				case <-ctx.Done():
					return
				}
			}
		}()

		mdns.Query(&mdns.QueryParam{Service: serviceType, Domain: "local", Timeout: 3 * time.Second, Entries: entries})
		close(entries)
	}
}

// Servers returns the channel of discovered servers.
func (m *Manager) Servers() <-chan *ServerInfo { return m.servers }

// Stop stops an in-progress Browse.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func localIPs() ([]net.IP, error) {
	var ips []net.IP
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
