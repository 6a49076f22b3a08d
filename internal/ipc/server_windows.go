//go:build windows

package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
)

// On Windows the control endpoint is a TCP socket that must be bound to a
// loopback address.

func listen(addr string, _ os.FileMode) (net.Listener, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("control address %q: %w", addr, err)
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return nil, fmt.Errorf("control address %q is not loopback", addr)
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		if conn, dialErr := net.Dial("tcp", addr); dialErr == nil {
			conn.Close()
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return listener, nil
}

func dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

func removeSocket(string) {}

func verifyPeer(conn net.Conn) (string, error) {
	return "local " + conn.RemoteAddr().String(), nil
}
