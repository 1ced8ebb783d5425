//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package server

import "net"

func udpListenConfig() *net.ListenConfig {
	return &net.ListenConfig{}
}

func listenTCP(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
