package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/muurk/lemuria/internal/protocol"
)

// Source records how a device was found
type Source string

const (
	SourceInquiry Source = "inquiry"
	SourceMDNS    Source = "mdns"
)

// Device represents a discovered Asphodel TCP device on the network
type Device struct {
	// Serial is the device serial number (e.g., "WM1234")
	Serial string

	// Board is the board name and BoardRevision its revision
	Board         string
	BoardRevision byte

	// BuildInfo and BuildDate describe the firmware (inquiry replies only)
	BuildInfo string
	BuildDate string

	// UserTag1 and UserTag2 are the user-assigned names, trimmed
	UserTag1 string
	UserTag2 string

	// Connected is true while another client holds the device
	Connected bool

	// Hostname is the mDNS hostname, empty for inquiry results
	Hostname string

	// IP and Port locate the device's TCP endpoint
	IP   string
	Port int

	// Metadata contains mDNS TXT record data
	Metadata map[string]string

	Source       Source
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("Asphodel Device %s (%s rev %d) at %s", d.Serial, d.Board, d.BoardRevision, d.Address())
}

// Address returns host:port of the device's TCP endpoint
func (d *Device) Address() string {
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// DisplayName prefers the first user tag, falling back to the serial number
func (d *Device) DisplayName() string {
	if d.UserTag1 != "" {
		return d.UserTag1
	}
	return d.Serial
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}

// deviceFromAdvertisement builds a Device from an inquiry reply sent from addr
func deviceFromAdvertisement(ad *protocol.Advertisement, addr *net.UDPAddr) *Device {
	return &Device{
		Serial:        ad.SerialNumber,
		Board:         ad.BoardName,
		BoardRevision: ad.BoardRevision,
		BuildInfo:     ad.BuildInfo,
		BuildDate:     ad.BuildDate,
		UserTag1:      string(protocol.TrimTag(ad.UserTag1)),
		UserTag2:      string(protocol.TrimTag(ad.UserTag2)),
		Connected:     ad.Connected,
		IP:            addr.IP.String(),
		Port:          addr.Port,
		Source:        SourceInquiry,
		DiscoveredAt:  time.Now(),
	}
}
