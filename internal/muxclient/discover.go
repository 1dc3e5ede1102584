package muxclient

import (
	"context"
	"net"
	"os"
	"strings"
)

const (
	defaultUnixSocket = "/var/run/usbmuxd"
	loopbackAddress   = "127.0.0.1:27015"
	envSocketAddress  = "USBMUXD_SOCKET_ADDRESS"
)

// dialSocket resolves and dials the host muxer socket. Precedence: an
// explicit address argument, then the USBMUXD_SOCKET_ADDRESS environment
// variable (accepting "unix:PATH", "HOST:PORT", or a plain path), then the
// default Unix socket path, then the loopback TCP fallback.
func dialSocket(ctx context.Context, explicit string) (net.Conn, error) {
	if explicit != "" {
		return dialAddress(ctx, explicit)
	}
	if env := os.Getenv(envSocketAddress); env != "" {
		return dialAddress(ctx, env)
	}
	if conn, err := dialUnix(ctx, defaultUnixSocket); err == nil {
		return conn, nil
	}
	if conn, err := dialTCP(ctx, loopbackAddress); err == nil {
		return conn, nil
	}
	return nil, ErrSocketUnavailable
}

func dialAddress(ctx context.Context, addr string) (net.Conn, error) {
	switch {
	case strings.HasPrefix(addr, "unix:"):
		return dialUnix(ctx, strings.TrimPrefix(addr, "unix:"))
	case strings.Contains(addr, ":") && looksLikeHostPort(addr):
		return dialTCP(ctx, addr)
	default:
		return dialUnix(ctx, addr)
	}
}

// looksLikeHostPort distinguishes "host:port" from an absolute Unix path
// that happens to contain no colon (the common case) — a path is never
// mistaken for host:port here because Unix socket paths on the platforms
// this module targets don't contain a colon followed only by digits.
func looksLikeHostPort(addr string) bool {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 || idx == len(addr)-1 {
		return false
	}
	port := addr[idx+1:]
	for _, r := range port {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func dialUnix(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}

func dialTCP(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}
