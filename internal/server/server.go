package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/muurk/lemuria/internal/device"
	"github.com/muurk/lemuria/internal/events"
	"github.com/muurk/lemuria/internal/logging"
	"github.com/muurk/lemuria/internal/protocol"
)

const (
	// DefaultQueueSize is the outbound frame queue capacity
	DefaultQueueSize = 4096

	readBufferSize = 4096
)

// Config holds the server configuration
type Config struct {
	Host              string
	Port              int           // 0 picks a free port
	AdvertiseInterval time.Duration // 0 disables periodic advertisements
	AdvertiseAddress  string        // Destination of periodic advertisements, defaults to the multicast group
	QueueSize         int
}

// MessageTypeError is returned when a client sends a frame the device does
// not accept. It ends the session.
type MessageTypeError struct {
	Type protocol.MessageType
}

func (e *MessageTypeError) Error() string {
	return fmt.Sprintf("unsupported message type %s", e.Type)
}

// Server exposes a Device over TCP and advertises it over UDP.
//
// A single client may be connected at a time. All commands are dispatched
// from one read loop goroutine; everything written to the client goes
// through one outbound queue drained by the write loop.
type Server struct {
	config    Config
	dev       *device.Device
	publisher events.Publisher

	listener net.Listener
	udp      net.PacketConn
	adAddr   net.Addr

	loopEvents chan loopEvent
	outbound   chan outFrame
	done       chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup

	// session is owned by the read loop
	session *session

	// mu guards the fields shared with the write loop and Status
	mu     sync.Mutex
	conn   net.Conn
	status SessionStatus

	framesIn  atomic.Uint64
	framesOut atomic.Uint64
	dropped   atomic.Uint64
}

// outFrame is a framed message and the connection it was queued for
type outFrame struct {
	conn net.Conn
	data []byte
}

type session struct {
	id      string
	conn    net.Conn
	decoder *protocol.Decoder
}

type eventKind int

const (
	eventAccept eventKind = iota
	eventReadable
	eventClosed
)

// loopEvent is produced by the accept goroutine and connection readers and
// consumed by the read loop
type loopEvent struct {
	kind eventKind
	conn net.Conn
	data []byte
	err  error
}

// New creates a server for dev. publisher may be nil.
func New(config Config, dev *device.Device, publisher events.Publisher) *Server {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	return &Server{
		config:     config,
		dev:        dev,
		publisher:  publisher,
		loopEvents: make(chan loopEvent, 16),
		outbound:   make(chan outFrame, config.QueueSize),
		done:       make(chan struct{}),
	}
}

// Start binds the TCP listener and UDP socket and starts the server loops.
// It returns once the sockets are bound.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))

	listener, err := listenTCP(addr)
	if err != nil {
		return fmt.Errorf("failed to create TCP listener: %w", err)
	}
	s.listener = listener

	// The UDP socket shares the TCP port, which may have been chosen by the kernel
	port := listener.Addr().(*net.TCPAddr).Port
	udpAddr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", port))
	udp, err := udpListenConfig().ListenPacket(context.Background(), "udp4", udpAddr)
	if err != nil {
		listener.Close()
		return fmt.Errorf("failed to create UDP socket: %w", err)
	}
	s.udp = udp
	s.joinMulticast()

	if s.config.AdvertiseInterval > 0 {
		target := s.config.AdvertiseAddress
		if target == "" {
			target = net.JoinHostPort(protocol.MulticastAddress, fmt.Sprintf("%d", protocol.DefaultPort))
		}
		s.adAddr, err = net.ResolveUDPAddr("udp4", target)
		if err != nil {
			s.closeSockets()
			return fmt.Errorf("invalid advertise address %q: %w", target, err)
		}
	}

	logging.Info("Server listening for connections",
		zap.String("tcp_addr", listener.Addr().String()),
		zap.String("udp_addr", udp.LocalAddr().String()),
		zap.String("serial", s.dev.Identity().SerialNumber),
		zap.Int("queue_size", s.config.QueueSize),
	)

	s.wg.Add(4)
	go s.acceptConnections()
	go s.readLoop()
	go s.writeLoop()
	go s.inquiryLoop()

	if s.adAddr != nil {
		s.wg.Add(1)
		go s.advertiseLoop()
	}

	return nil
}

// Addr returns the TCP listener address
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// UDPAddr returns the advertisement socket address
func (s *Server) UDPAddr() net.Addr {
	if s.udp == nil {
		return nil
	}
	return s.udp.LocalAddr()
}

// Close stops every loop, closes the sockets and the active session, and
// waits for the goroutines to exit
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		logging.Info("Shutting down server...")
		close(s.done)
		s.closeSockets()
	})
	s.wg.Wait()
	return nil
}

func (s *Server) closeSockets() {
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			logging.Debug("Error closing listener", zap.Error(err))
		}
	}
	if s.udp != nil {
		if err := s.udp.Close(); err != nil {
			logging.Debug("Error closing UDP socket", zap.Error(err))
		}
	}
}

// joinMulticast subscribes the UDP socket to the discovery group so that
// multicast inquiries reach the inquiry loop
func (s *Server) joinMulticast() {
	group := &net.UDPAddr{IP: net.ParseIP(protocol.MulticastAddress)}
	if err := ipv4.NewPacketConn(s.udp).JoinGroup(nil, group); err != nil {
		logging.Debug("Failed to join discovery multicast group",
			zap.String("group", protocol.MulticastAddress),
			zap.Error(err))
	}
}

// acceptConnections hands every accepted socket to the read loop
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Error("Failed to accept connection", zap.Error(err))
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		if !s.post(loopEvent{kind: eventAccept, conn: conn}) {
			conn.Close()
			return
		}
	}
}

// readConnection forwards bytes received on conn to the read loop until the
// connection fails
func (s *Server) readConnection(conn net.Conn) {
	defer s.wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !s.post(loopEvent{kind: eventReadable, conn: conn, data: data}) {
				return
			}
		}
		if err != nil {
			s.post(loopEvent{kind: eventClosed, conn: conn, err: err})
			return
		}
	}
}

// post delivers ev to the read loop, returning false once the server is
// shutting down
func (s *Server) post(ev loopEvent) bool {
	select {
	case s.loopEvents <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Server) readLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			if s.session != nil {
				s.closeSession(nil)
			}
			return

		case ev := <-s.loopEvents:
			switch ev.kind {
			case eventAccept:
				s.handleAccept(ev.conn)
			case eventReadable:
				if s.session != nil && ev.conn == s.session.conn {
					s.handleReadable(ev.data)
				}
			case eventClosed:
				if s.session != nil && ev.conn == s.session.conn {
					s.closeSession(ev.err)
				}
			}
		}
	}
}

func (s *Server) handleAccept(conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()

	if s.session != nil {
		logging.Warn("Rejecting connection, device already in use",
			zap.String("remote_addr", remoteAddr),
			zap.String("active_session", s.session.id))
		conn.Close()
		s.publish(events.Event{Type: events.ConnectionRejected, RemoteAddr: remoteAddr})
		return
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			logging.Debug("Failed to set TCP_NODELAY", zap.Error(err))
		}
	}

	id := s.dev.Identity()
	s.session = &session{
		id:      uuid.NewString(),
		conn:    conn,
		decoder: protocol.NewDecoder(id.MaxIncomingParamLen + 2),
	}

	s.mu.Lock()
	s.conn = conn
	s.status = SessionStatus{
		Connected:   true,
		SessionID:   s.session.id,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
	}
	s.mu.Unlock()

	logging.LogConnection(remoteAddr, "connection_accepted")

	s.wg.Add(1)
	go s.readConnection(conn)

	s.publish(events.Event{
		Type:       events.ConnectionAccepted,
		SessionID:  s.session.id,
		RemoteAddr: remoteAddr,
	})
}

func (s *Server) handleReadable(data []byte) {
	sess := s.session
	sess.decoder.Feed(data)

	for s.session == sess {
		frame, err := sess.decoder.Next()
		if err != nil {
			logging.LogRawBytes("Undecodable client input", data)
			s.closeSession(err)
			return
		}
		if frame == nil {
			return
		}

		s.framesIn.Add(1)
		logging.LogFrame("rx", frame.Type.String(), frame.Payload)

		if frame.Type != protocol.MsgDeviceCmd {
			s.closeSession(&MessageTypeError{Type: frame.Type})
			return
		}

		reply := s.dev.HandleCommand(frame.Payload)
		if len(reply) == 0 {
			continue
		}
		s.enqueue(protocol.MsgDeviceCmd, reply)
	}
}

// closeSession tears down the active session and resets the device
func (s *Server) closeSession(cause error) {
	sess := s.session
	remoteAddr := sess.conn.RemoteAddr().String()

	sess.conn.Close()

	s.mu.Lock()
	s.conn = nil
	s.status = SessionStatus{}
	s.mu.Unlock()

	s.drainQueue()
	s.dev.Flush()
	// Playback may have queued a packet before Flush disarmed it
	s.drainQueue()
	s.session = nil

	if cause != nil && !isDisconnect(cause) {
		logging.Warn("Closing session",
			zap.String("remote_addr", remoteAddr),
			zap.String("session_id", sess.id),
			zap.Error(cause))
	}
	logging.LogConnection(remoteAddr, "connection_closed")

	s.publish(events.Event{
		Type:       events.ConnectionClosed,
		SessionID:  sess.id,
		RemoteAddr: remoteAddr,
	})
}

func (s *Server) drainQueue() {
	for {
		select {
		case <-s.outbound:
		default:
			return
		}
	}
}

// enqueue frames payload and queues it, tagged with the current connection,
// for the write loop without blocking. Nothing is queued without a client.
func (s *Server) enqueue(msgType protocol.MessageType, payload []byte) {
	frame, err := protocol.EncodeFrame(msgType, payload)
	if err != nil {
		logging.Error("Failed to frame outgoing message",
			zap.String("type", msgType.String()),
			zap.Int("length", len(payload)),
			zap.Error(err))
		return
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}

	select {
	case s.outbound <- outFrame{conn: conn, data: frame}:
	default:
		s.dropped.Add(1)
		logging.Warn("Outbound queue full, dropping frame",
			zap.String("type", msgType.String()),
			zap.Int("queue_size", s.config.QueueSize))
	}
}

func (s *Server) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return

		case frame := <-s.outbound:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()

			// Frames queued for an earlier session are discarded
			if conn == nil || frame.conn != conn {
				continue
			}

			if _, err := conn.Write(frame.data); err != nil {
				logging.Debug("Write to client failed",
					zap.String("remote_addr", conn.RemoteAddr().String()),
					zap.Error(err))
				// The reader sees the failure and reports the close
				conn.Close()
				continue
			}
			s.framesOut.Add(1)
		}
	}
}

// SendStreamPacket queues a stream packet for the connected client
func (s *Server) SendStreamPacket(packet []byte) {
	s.enqueue(protocol.MsgDeviceStream, packet)
}

// SendAdvertisement sends the device advertisement to addr. Failures are
// logged and otherwise ignored.
func (s *Server) SendAdvertisement(addr net.Addr) {
	if s.udp == nil {
		return
	}

	ad := protocol.EncodeAdvertisement(s.dev.Advertisement(s.Connected()))
	if _, err := s.udp.WriteTo(ad, addr); err != nil {
		logging.Debug("Failed to send advertisement",
			zap.String("addr", addr.String()),
			zap.Error(err))
	}
}

// inquiryLoop answers discovery inquiries with an advertisement
func (s *Server) inquiryLoop() {
	defer s.wg.Done()

	buf := make([]byte, 1500)
	for {
		n, addr, err := s.udp.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-s.done:
				return
			default:
			}
			logging.Debug("UDP read failed", zap.Error(err))
			continue
		}

		if !protocol.IsInquiry(buf[:n]) {
			continue
		}

		logging.Debug("Discovery inquiry received", zap.String("from", addr.String()))
		s.SendAdvertisement(addr)
	}
}

func (s *Server) advertiseLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.AdvertiseInterval)
	defer ticker.Stop()

	s.SendAdvertisement(s.adAddr)
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.SendAdvertisement(s.adAddr)
		}
	}
}

func (s *Server) publish(e events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(e)
	}
}

// Connected reports whether a client currently holds the session slot
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// isDisconnect reports whether err is an ordinary peer or local close
func isDisconnect(err error) bool {
	var opErr *net.OpError
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.As(err, &opErr)
}
