package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/lemuria/internal/logging"
)

// SessionStatus describes the client holding the session slot
type SessionStatus struct {
	Connected   bool      `json:"connected"`
	SessionID   string    `json:"session_id,omitempty"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
}

// Status is a point-in-time view of the server served at /status
type Status struct {
	Serial        string        `json:"serial"`
	Board         string        `json:"board"`
	TCPAddr       string        `json:"tcp_addr"`
	UDPAddr       string        `json:"udp_addr"`
	Session       SessionStatus `json:"session"`
	ActiveStreams []int         `json:"active_streams"`
	FramesIn      uint64        `json:"frames_in"`
	FramesOut     uint64        `json:"frames_out"`
	Dropped       uint64        `json:"dropped"`
	QueueDepth    int           `json:"queue_depth"`
}

// Status returns the current server status
func (s *Server) Status() Status {
	id := s.dev.Identity()

	s.mu.Lock()
	session := s.status
	s.mu.Unlock()

	st := Status{
		Serial:        id.SerialNumber,
		Board:         fmt.Sprintf("%s rev %d", id.BoardName, id.BoardRevision),
		Session:       session,
		ActiveStreams: s.dev.ActiveStreams(),
		FramesIn:      s.framesIn.Load(),
		FramesOut:     s.framesOut.Load(),
		Dropped:       s.dropped.Load(),
		QueueDepth:    len(s.outbound),
	}
	if addr := s.Addr(); addr != nil {
		st.TCPAddr = addr.String()
	}
	if addr := s.UDPAddr(); addr != nil {
		st.UDPAddr = addr.String()
	}
	if st.ActiveStreams == nil {
		st.ActiveStreams = []int{}
	}
	return st
}

// Monitor serves health, status and the event WebSocket over HTTP
type Monitor struct {
	httpServer *http.Server
	listener   net.Listener
}

// NewMonitor creates a monitor for s on addr. events may be nil, in which
// case /events is not served.
func NewMonitor(addr string, s *Server, events http.Handler) *Monitor {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.Status())
	})
	if events != nil {
		mux.Handle("/events", events)
	}

	return &Monitor{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           logRequests(mux),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start binds the monitor address and serves in the background
func (m *Monitor) Start() error {
	listener, err := net.Listen("tcp", m.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to create monitor listener: %w", err)
	}
	m.listener = listener

	logging.Info("Monitor listening", zap.String("addr", listener.Addr().String()))

	go func() {
		if err := m.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Monitor server failed", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound monitor address
func (m *Monitor) Addr() net.Addr {
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

// Shutdown stops the monitor
func (m *Monitor) Shutdown(ctx context.Context) error {
	return m.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Failed to write JSON response", zap.Error(err))
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.Debug("Monitor request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr))
		next.ServeHTTP(w, r)
	})
}
