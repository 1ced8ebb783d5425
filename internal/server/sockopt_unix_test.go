//go:build linux || darwin || freebsd || netbsd || openbsd

package server

import (
	"net"
	"testing"
)

func TestListenTCP(t *testing.T) {
	tests := []struct {
		name string
		addr string
	}{
		{"loopback", "127.0.0.1:0"},
		{"any address", ":0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := listenTCP(tt.addr)
			if err != nil {
				t.Fatalf("listenTCP(%q) error = %v", tt.addr, err)
			}
			defer l.Close()

			addr, ok := l.Addr().(*net.TCPAddr)
			if !ok || addr.Port == 0 {
				t.Fatalf("Addr() = %v, want a bound TCP address", l.Addr())
			}

			accepted := make(chan error, 1)
			go func() {
				conn, err := l.Accept()
				if err == nil {
					conn.Close()
				}
				accepted <- err
			}()

			conn, err := net.DialTCP("tcp", nil, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: addr.Port})
			if err != nil {
				t.Fatalf("Dial() error = %v", err)
			}
			conn.Close()
			if err := <-accepted; err != nil {
				t.Errorf("Accept() error = %v", err)
			}
		})
	}

	if _, err := listenTCP("not-an-address"); err == nil {
		t.Error("listenTCP(bad address) error = nil, want error")
	}
}
