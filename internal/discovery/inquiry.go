package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/lemuria/internal/logging"
	"github.com/muurk/lemuria/internal/protocol"
)

// DefaultInquiryTimeout is how long Inquire collects replies
const DefaultInquiryTimeout = 2 * time.Second

// Inquirer discovers devices by sending an Asphodel inquiry datagram and
// collecting the advertisements sent back
type Inquirer struct {
	// Targets are the host:port destinations of the inquiry. Defaults to the
	// discovery multicast group and the IPv4 broadcast address.
	Targets []string

	// Timeout is how long to wait for replies
	Timeout time.Duration
}

// NewInquirer creates an inquirer with default targets and timeout
func NewInquirer() *Inquirer {
	port := strconv.Itoa(protocol.DefaultPort)
	return &Inquirer{
		Targets: []string{
			net.JoinHostPort(protocol.MulticastAddress, port),
			net.JoinHostPort("255.255.255.255", port),
		},
		Timeout: DefaultInquiryTimeout,
	}
}

// Inquire sends the inquiry and returns every device that answered before
// the timeout, one entry per serial number
func (q *Inquirer) Inquire(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, q.Timeout)
	defer cancel()

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("failed to open UDP socket: %w", err)
	}
	defer conn.Close()

	sent := 0
	for _, target := range q.Targets {
		addr, err := net.ResolveUDPAddr("udp4", target)
		if err != nil {
			return nil, fmt.Errorf("invalid inquiry target %q: %w", target, err)
		}
		if _, err := conn.WriteTo(protocol.InquiryMagic, addr); err != nil {
			logging.Debug("Failed to send inquiry", zap.String("target", target), zap.Error(err))
			continue
		}
		sent++
	}
	if sent == 0 && len(q.Targets) > 0 {
		return nil, errors.New("inquiry could not be sent to any target")
	}

	// Unblock ReadFrom when the context ends
	go func() {
		<-ctx.Done()
		conn.SetReadDeadline(time.Now())
	}()

	seen := make(map[string]*Device)
	var order []string
	buf := make([]byte, 1500)

	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return nil, fmt.Errorf("failed to read inquiry reply: %w", err)
		}

		udpAddr, ok := from.(*net.UDPAddr)
		if !ok {
			continue
		}

		ad, err := protocol.DecodeAdvertisement(buf[:n])
		if err != nil {
			// Our own inquiry looped back, or an unrelated datagram
			logging.Debug("Ignoring datagram", zap.String("from", from.String()), zap.Error(err))
			continue
		}

		if _, dup := seen[ad.SerialNumber]; !dup {
			order = append(order, ad.SerialNumber)
		}
		seen[ad.SerialNumber] = deviceFromAdvertisement(ad, udpAddr)
	}

	devices := make([]*Device, 0, len(order))
	for _, serial := range order {
		devices = append(devices, seen[serial])
	}
	return devices, nil
}
