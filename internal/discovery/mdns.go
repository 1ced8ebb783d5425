package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type the emulator publishes
	ServiceType = "_asphodel._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 10 * time.Second
)

// Scanner handles mDNS device discovery
type Scanner struct {
	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// ScanForDevices discovers all published devices on the local network
func (s *Scanner) ScanForDevices() ([]*Device, error) {
	return s.ScanForDevicesWithContext(context.Background())
}

// ScanForDevicesWithContext discovers devices with a custom context
func (s *Scanner) ScanForDevicesWithContext(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu      sync.Mutex
		devices = make([]*Device, 0)
		done    = make(chan struct{})
	)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	// The resolver closes entries when the context ends
	go func() {
		defer close(done)
		for entry := range entries {
			if device := s.parseServiceEntry(entry); device != nil {
				mu.Lock()
				devices = append(devices, device)
				mu.Unlock()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	<-done

	mu.Lock()
	defer mu.Unlock()
	return devices, nil
}

// WaitForDeviceWithContext waits for a specific device by serial number
func (s *Scanner) WaitForDeviceWithContext(ctx context.Context, serial string) (*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	deviceChan := make(chan *Device, 1)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		for entry := range entries {
			device := s.parseServiceEntry(entry)
			if device != nil && device.Serial == serial {
				select {
				case deviceChan <- device:
				default:
				}
				cancel()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case device := <-deviceChan:
		return device, nil
	case <-ctx.Done():
		select {
		case device := <-deviceChan:
			return device, nil
		default:
		}
		return nil, fmt.Errorf("device with serial %s not found within timeout", serial)
	}
}

// parseServiceEntry converts a zeroconf service entry to a Device.
// Returns nil if the entry carries no serial number or address.
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	metadata := parseTXT(entry.Text)

	serial := metadata["serial"]
	if serial == "" {
		serial = entry.Instance
	}
	if serial == "" {
		return nil
	}

	// Prefer IPv4
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" || entry.Port == 0 {
		return nil
	}

	rev, _ := strconv.ParseUint(metadata["rev"], 10, 8)

	return &Device{
		Serial:        serial,
		Board:         metadata["board"],
		BoardRevision: byte(rev),
		UserTag1:      metadata["tag1"],
		UserTag2:      metadata["tag2"],
		Connected:     metadata["connected"] == "1",
		Hostname:      entry.HostName,
		IP:            ip,
		Port:          entry.Port,
		Metadata:      metadata,
		Source:        SourceMDNS,
		DiscoveredAt:  time.Now(),
	}
}

// parseTXT splits "key=value" TXT records; keys without a value map to ""
func parseTXT(records []string) map[string]string {
	metadata := make(map[string]string, len(records))
	for _, txt := range records {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}
	return metadata
}

// ScanForDevices is a convenience function to scan for devices with a custom timeout
func ScanForDevices(timeout time.Duration) ([]*Device, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.ScanForDevices()
}

// Announcement is the information published for the emulated device
type Announcement struct {
	Serial        string
	Board         string
	BoardRevision byte
	UserTag1      string
	UserTag2      string
	Port          int
}

// TXT renders the announcement's TXT records
func (a *Announcement) TXT() []string {
	txt := []string{
		"serial=" + a.Serial,
		"board=" + a.Board,
		"rev=" + strconv.Itoa(int(a.BoardRevision)),
		"protocol=basic",
	}
	if a.UserTag1 != "" {
		txt = append(txt, "tag1="+a.UserTag1)
	}
	if a.UserTag2 != "" {
		txt = append(txt, "tag2="+a.UserTag2)
	}
	return txt
}

// Publication is a running mDNS registration
type Publication struct {
	server *zeroconf.Server
}

// Publish registers the emulated device as an _asphodel._tcp service named
// after its serial number
func Publish(a *Announcement) (*Publication, error) {
	server, err := zeroconf.Register(a.Serial, ServiceType, ServiceDomain, a.Port, a.TXT(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return &Publication{server: server}, nil
}

// Shutdown withdraws the registration
func (p *Publication) Shutdown() {
	p.server.Shutdown()
}
