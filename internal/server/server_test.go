package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/muurk/lemuria/internal/device"
	"github.com/muurk/lemuria/internal/events"
	"github.com/muurk/lemuria/internal/protocol"
)

const ioTimeout = 2 * time.Second

func testPersonality() *device.Personality {
	nvm := bytes.Repeat([]byte{0xFF}, 64)
	copy(nvm, "Bench")

	return &device.Personality{
		Identity: device.Identity{
			SerialNumber:        "WM0001",
			MaxIncomingParamLen: 24,
			MaxOutgoingParamLen: 24,
			StreamPacketSize:    32,
			BoardName:           "WMRTCP",
			BoardRevision:       2,
			BuildInfo:           "lemuria",
			BuildDate:           "2026-10-18",
			NVM:                 nvm,
			TagLocations: [3]device.TagLocation{
				{Offset: 0, Length: 16},
				{Offset: 16, Length: 16},
				{Offset: 32, Length: 32},
			},
		},
		Streams:   []device.StreamInfo{{Channels: []byte{0}, CounterBits: 16, Rate: 100}},
		Channels:  []device.ChannelInfo{{Name: "Strain", DataBits: 24, Samples: 1}},
		RGBValues: [][3]byte{{1, 2, 3}},
		LEDValues: []byte{0x10},
	}
}

type chanPublisher struct {
	ch chan events.Event
}

func newChanPublisher() *chanPublisher {
	return &chanPublisher{ch: make(chan events.Event, 64)}
}

func (p *chanPublisher) Publish(e events.Event) {
	select {
	case p.ch <- e:
	default:
	}
}

func (p *chanPublisher) expect(t *testing.T, typ events.Type) events.Event {
	t.Helper()
	timeout := time.After(ioTimeout)
	for {
		select {
		case e := <-p.ch:
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event within %v", typ, ioTimeout)
		}
	}
}

func startServer(t *testing.T) (*Server, *device.Device, *chanPublisher) {
	t.Helper()

	dev := device.New(testPersonality(), nil)
	pub := newChanPublisher()
	srv := New(Config{Host: "127.0.0.1", Port: 0, QueueSize: 16}, dev, pub)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, dev, pub
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr().String(), ioTimeout)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn net.Conn, msgType protocol.MessageType, payload []byte) {
	t.Helper()
	frame, err := protocol.EncodeFrame(msgType, payload)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
}

func readFrame(t *testing.T, conn net.Conn) (protocol.MessageType, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(ioTimeout))

	var header [2]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		t.Fatalf("read frame header: %v", err)
	}
	body := make([]byte, binary.BigEndian.Uint16(header[:]))
	if _, err := io.ReadFull(conn, body); err != nil {
		t.Fatalf("read frame body: %v", err)
	}
	return protocol.MessageType(body[0]), body[1:]
}

func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(ioTimeout))
	buf := make([]byte, 16)
	for {
		_, err := conn.Read(buf)
		if err == nil {
			continue
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			t.Fatal("connection still open, want closed by server")
		}
		return
	}
}

func TestServer_CommandRoundTrip(t *testing.T) {
	srv, _, _ := startServer(t)
	conn := dial(t, srv)

	sendFrame(t, conn, protocol.MsgDeviceCmd, []byte{0x07, byte(protocol.CmdEchoParams), 0xAA, 0xBB})
	typ, payload := readFrame(t, conn)

	if typ != protocol.MsgDeviceCmd {
		t.Errorf("reply type = %s, want %s", typ, protocol.MsgDeviceCmd)
	}
	want := []byte{0x07, byte(protocol.CmdEchoParams), 0xAA, 0xBB}
	if !bytes.Equal(payload, want) {
		t.Errorf("reply = % x, want % x", payload, want)
	}
}

func TestServer_RepliesInOrder(t *testing.T) {
	srv, _, _ := startServer(t)
	conn := dial(t, srv)

	// Several commands in one write must be answered in order
	var batch []byte
	for tid := byte(1); tid <= 5; tid++ {
		frame, _ := protocol.EncodeFrame(protocol.MsgDeviceCmd, []byte{tid, byte(protocol.CmdGetRGBCount)})
		batch = append(batch, frame...)
	}
	if _, err := conn.Write(batch); err != nil {
		t.Fatal(err)
	}

	for tid := byte(1); tid <= 5; tid++ {
		_, payload := readFrame(t, conn)
		if payload[0] != tid {
			t.Errorf("reply tid = %d, want %d", payload[0], tid)
		}
	}
}

func TestServer_SecondConnectionRejected(t *testing.T) {
	srv, _, pub := startServer(t)

	first := dial(t, srv)
	accepted := pub.expect(t, events.ConnectionAccepted)
	if accepted.SessionID == "" {
		t.Error("connection_accepted without session id")
	}

	second := dial(t, srv)
	pub.expect(t, events.ConnectionRejected)
	expectClosed(t, second)

	// The first session keeps working
	sendFrame(t, first, protocol.MsgDeviceCmd, []byte{0x01, byte(protocol.CmdGetLEDCount)})
	_, payload := readFrame(t, first)
	if want := []byte{0x01, byte(protocol.CmdGetLEDCount), 0x01}; !bytes.Equal(payload, want) {
		t.Errorf("reply = % x, want % x", payload, want)
	}
	if !srv.Connected() {
		t.Error("Connected() = false, want true")
	}
}

func TestServer_CloseFlushesDevice(t *testing.T) {
	srv, dev, pub := startServer(t)

	first := dial(t, srv)
	sendFrame(t, first, protocol.MsgDeviceCmd, []byte{0x01, byte(protocol.CmdSetRGB), 0, 9, 9, 9})
	readFrame(t, first)
	sendFrame(t, first, protocol.MsgDeviceCmd, []byte{0x02, byte(protocol.CmdEnableStream), 0, 1})
	readFrame(t, first)

	if got := dev.ActiveStreams(); len(got) != 1 {
		t.Fatalf("ActiveStreams() = %v, want [0]", got)
	}

	first.Close()
	closed := pub.expect(t, events.ConnectionClosed)
	if closed.SessionID == "" {
		t.Error("connection_closed without session id")
	}

	if got := dev.ActiveStreams(); len(got) != 0 {
		t.Errorf("ActiveStreams() after close = %v, want none", got)
	}

	second := dial(t, srv)
	sendFrame(t, second, protocol.MsgDeviceCmd, []byte{0x03, byte(protocol.CmdGetRGBValues), 0})
	_, payload := readFrame(t, second)
	if want := []byte{0x03, byte(protocol.CmdGetRGBValues), 1, 2, 3}; !bytes.Equal(payload, want) {
		t.Errorf("RGB after reconnect = % x, want % x", payload, want)
	}
}

func TestServer_StreamPackets(t *testing.T) {
	srv, _, pub := startServer(t)
	conn := dial(t, srv)
	pub.expect(t, events.ConnectionAccepted)

	packet := []byte{0x10, 0x20, 0x30}
	srv.SendStreamPacket(packet)

	typ, payload := readFrame(t, conn)
	if typ != protocol.MsgDeviceStream {
		t.Errorf("frame type = %s, want %s", typ, protocol.MsgDeviceStream)
	}
	if !bytes.Equal(payload, packet) {
		t.Errorf("payload = % x, want % x", payload, packet)
	}
}

func TestServer_DisconnectsOnFramingViolation(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"unsupported message type", []byte{0x00, 0x02, byte(protocol.MsgRemoteCmd), 0x00}},
		{"stream message inbound", []byte{0x00, 0x02, byte(protocol.MsgDeviceStream), 0x00}},
		{"oversized length prefix", []byte{0xFF, 0xFF, 0x00}},
		{"zero length prefix", []byte{0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, pub := startServer(t)
			conn := dial(t, srv)

			if _, err := conn.Write(tt.raw); err != nil {
				t.Fatal(err)
			}
			expectClosed(t, conn)
			pub.expect(t, events.ConnectionClosed)
		})
	}
}

func TestServer_Inquiry(t *testing.T) {
	srv, _, _ := startServer(t)

	conn, err := net.Dial("udp4", srv.UDPAddr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write(protocol.InquiryMagic); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(ioTimeout))
	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("no advertisement received: %v", err)
	}

	ad, err := protocol.DecodeAdvertisement(buf[:n])
	if err != nil {
		t.Fatalf("DecodeAdvertisement() error = %v", err)
	}
	if ad.SerialNumber != "WM0001" {
		t.Errorf("SerialNumber = %q, want WM0001", ad.SerialNumber)
	}
	if ad.Connected {
		t.Error("Connected = true with no client")
	}
	if got := string(protocol.TrimTag(ad.UserTag1)); got != "Bench" {
		t.Errorf("UserTag1 = %q, want Bench", got)
	}
}

func TestServer_QueueFullDrops(t *testing.T) {
	dev := device.New(testPersonality(), nil)
	srv := New(Config{QueueSize: 2}, dev, nil)
	conn, peer := net.Pipe()
	defer conn.Close()
	defer peer.Close()
	srv.conn = conn

	// Loops are not running, so nothing drains the queue
	for i := 0; i < 5; i++ {
		srv.SendStreamPacket([]byte{byte(i)})
	}

	if got := srv.Status().Dropped; got != 3 {
		t.Errorf("Dropped = %d, want 3", got)
	}
	if got := srv.Status().QueueDepth; got != 2 {
		t.Errorf("QueueDepth = %d, want 2", got)
	}
}

func TestServer_DiscardsFramesFromEarlierSession(t *testing.T) {
	dev := device.New(testPersonality(), nil)
	srv := New(Config{QueueSize: 8}, dev, nil)

	first, firstPeer := net.Pipe()
	defer firstPeer.Close()
	srv.conn = first
	srv.SendStreamPacket([]byte{0x01})
	first.Close()

	// Without a client nothing is queued
	srv.conn = nil
	srv.SendStreamPacket([]byte{0x02})

	second, peer := net.Pipe()
	defer second.Close()
	defer peer.Close()
	srv.mu.Lock()
	srv.conn = second
	srv.mu.Unlock()
	srv.SendStreamPacket([]byte{0x03})

	srv.wg.Add(1)
	go srv.writeLoop()
	defer func() {
		close(srv.done)
		srv.wg.Wait()
	}()

	typ, payload := readFrame(t, peer)
	if typ != protocol.MsgDeviceStream {
		t.Errorf("type = %s, want %s", typ, protocol.MsgDeviceStream)
	}
	if !bytes.Equal(payload, []byte{0x03}) {
		t.Errorf("payload = % x, want 03", payload)
	}
}

func TestMonitor(t *testing.T) {
	srv, _, pub := startServer(t)
	dial(t, srv)
	pub.expect(t, events.ConnectionAccepted)

	hub := events.NewHub()
	defer hub.Close()

	mon := NewMonitor("127.0.0.1:0", srv, hub)
	if err := mon.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer mon.Shutdown(context.Background())

	base := "http://" + mon.Addr().String()

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(base + "/status")
	if err != nil {
		t.Fatalf("GET /status error = %v", err)
	}
	defer resp.Body.Close()

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("invalid /status body: %v", err)
	}
	if st.Serial != "WM0001" {
		t.Errorf("Serial = %q, want WM0001", st.Serial)
	}
	if !st.Session.Connected || st.Session.SessionID == "" {
		t.Errorf("Session = %+v, want a connected session", st.Session)
	}
}

func TestMessageTypeError(t *testing.T) {
	err := &MessageTypeError{Type: protocol.MsgRemoteCmd}
	if err.Error() == "" {
		t.Error("Error() is empty")
	}
}
