// ABOUTME: mDNS service discovery for live voice servers
// ABOUTME: Servers advertise themselves; clients browse for them
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is the mDNS service live voice servers advertise
	ServiceType = "_resonate-live._tcp"

	browseTimeout = 3 * time.Second
)

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	// Path is the websocket endpoint advertised in the TXT record
	Path   string
	Logger *log.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	logger  *log.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// Addr returns host:port
func (s *ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = "/live"
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		logger:  config.Logger,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Advertise advertises this server via mDNS until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=" + m.config.Path},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.logger.Printf("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for servers until Stop
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				info := entryInfo(entry)
				if info == nil {
					continue
				}
				m.logger.Printf("Discovered server: %s at %s", info.Name, info.Addr())

				select {
				case m.servers <- info:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Entries = entries
		params.Timeout = browseTimeout
		params.DisableIPv6 = true

		if err := mdns.Query(params); err != nil {
			m.logger.Printf("mDNS query failed: %v", err)
		}
		close(entries)
		<-done
	}
}

// entryInfo converts an mDNS entry, returning nil when it has no IPv4 address
func entryInfo(entry *mdns.ServiceEntry) *ServerInfo {
	if entry.AddrV4 == nil {
		return nil
	}

	info := &ServerInfo{
		Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Path: "/live",
	}
	for _, field := range entry.InfoFields {
		if path, ok := strings.CutPrefix(field, "path="); ok {
			info.Path = path
		}
	}
	return info
}

// Servers returns the channel of discovered servers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns non-loopback IPv4 addresses
func getLocalIPs() ([]net.IP, error) {
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
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
