// Package discovery advertises the relay's HTTP service on the local network
// over mDNS so browsers on the same LAN can find the upload page.
package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

const (
	// DefaultService is the mDNS service name without domain suffix.
	DefaultService = "_aero-file-relay._tcp"
	DefaultDomain  = "local."
	// DefaultVersion is the TXT record protocol version.
	DefaultVersion = "1"
)

const maxTXTString = 255

var ErrAlreadyStarted = errors.New("mdns advertiser already started")

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)

// Config controls what the Advertiser publishes.
type Config struct {
	Instance string
	Service  string
	Domain   string
	Port     int

	// UploadPath and WSPath are published as TXT records so clients know
	// where to connect.
	UploadPath string
	WSPath     string
	Version    string

	// PublicBaseURL, when set, is published as base_url so clients can build
	// share links without guessing the scheme or host.
	PublicBaseURL string

	Logger *slog.Logger

	registerFn registerFunc
}

func (c Config) withDefaults() Config {
	out := c
	if out.Service == "" {
		out.Service = DefaultService
	}
	if out.Domain == "" {
		out.Domain = DefaultDomain
	}
	if out.Version == "" {
		out.Version = DefaultVersion
	}
	if out.UploadPath == "" {
		out.UploadPath = "/upload"
	}
	if out.WSPath == "" {
		out.WSPath = "/ws"
	}
	if out.registerFn == nil {
		out.registerFn = zeroconf.Register
	}
	return out
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Instance) == "" {
		return errors.New("mdns instance name is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("mdns port %d out of range", c.Port)
	}
	return nil
}

func (c Config) txtRecords() []string {
	out := []string{
		"version=" + c.Version,
		"upload_path=" + c.UploadPath,
		"ws_path=" + c.WSPath,
	}
	// A TXT character-string holds at most 255 bytes.
	if base := "base_url=" + c.PublicBaseURL; c.PublicBaseURL != "" && len(base) <= maxTXTString {
		out = append(out, base)
	}
	return out
}

// Advertiser owns one mDNS registration.
type Advertiser struct {
	cfg Config

	mu     sync.Mutex
	server *zeroconf.Server
	active bool
}

func NewAdvertiser(cfg Config) (*Advertiser, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Advertiser{cfg: cfg}, nil
}

// Start registers the service on every multicast-capable interface.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active {
		return ErrAlreadyStarted
	}

	server, err := a.cfg.registerFn(a.cfg.Instance, a.cfg.Service, a.cfg.Domain, a.cfg.Port, a.cfg.txtRecords(), nil)
	if err != nil {
		return fmt.Errorf("register mDNS service: %w", err)
	}
	a.server = server
	a.active = true
	a.cfg.Logger.Info("mdns_advertising",
		"instance", a.cfg.Instance,
		"service", a.cfg.Service,
		"domain", a.cfg.Domain,
		"port", a.cfg.Port,
	)
	return nil
}

// Stop withdraws the registration. It is safe to call on a nil or stopped
// Advertiser.
func (a *Advertiser) Stop() {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return
	}
	if a.server != nil {
		a.server.Shutdown()
	}
	a.server = nil
	a.active = false
	a.cfg.Logger.Info("mdns_stopped", "instance", a.cfg.Instance)
}

func (a *Advertiser) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// PortFromAddr extracts the numeric port from a host:port listen address.
func PortFromAddr(addr net.Addr) (int, error) {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port, nil
	}
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("parse port %q: %w", portStr, err)
	}
	return port, nil
}
