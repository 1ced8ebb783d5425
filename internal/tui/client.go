package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muurk/lemuria/internal/server"
)

// Client talks to a running emulator's monitor endpoint
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient creates a client for the monitor at addr, given as host:port or
// as an http(s) URL
func NewClient(addr string) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid monitor address %q: %w", addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid monitor address %q: scheme must be http or https", addr)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid monitor address %q: missing host", addr)
	}
	return &Client{
		base: u,
		http: &http.Client{Timeout: 5 * time.Second},
	}, nil
}

// StatusURL returns the URL of the /status endpoint
func (c *Client) StatusURL() string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/status"
	return u.String()
}

// EventsURL returns the WebSocket URL of the /events endpoint
func (c *Client) EventsURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/events"
	return u.String()
}

// Status fetches the server status
func (c *Client) Status(ctx context.Context) (*server.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.StatusURL(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch status: %s", resp.Status)
	}

	var st server.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("invalid status response: %w", err)
	}
	return &st, nil
}

// DialEvents opens the event WebSocket
func (c *Client) DialEvents(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.EventsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.EventsURL(), err)
	}
	return conn, nil
}
