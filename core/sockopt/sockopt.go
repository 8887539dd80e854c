// Package sockopt applies TCP options to accepted connections.
package sockopt

import (
	"net"
	"time"
)

// Options describes the tuning applied to every accepted connection.
// Zero values leave the system default in place.
type Options struct {
	// NoDelay disables Nagle's algorithm.
	NoDelay bool
	// KeepAlive enables TCP keepalive probes.
	KeepAlive bool
	// KeepAliveIdle is the idle time before the first probe.
	KeepAliveIdle time.Duration
	// KeepAliveInterval is the time between probes (Linux only).
	KeepAliveInterval time.Duration
	// QuickAck disables delayed ACKs once after accept (Linux only).
	QuickAck bool
}

// Default returns the options used by the server.
func Default() Options {
	return Options{
		NoDelay:           true,
		KeepAlive:         true,
		KeepAliveIdle:     30 * time.Second,
		KeepAliveInterval: 10 * time.Second,
		QuickAck:          true,
	}
}

// Apply tunes conn. Connections that are not TCP are left alone.
func Apply(conn net.Conn, opts Options) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	if err := tcpConn.SetNoDelay(opts.NoDelay); err != nil {
		return err
	}
	if err := tcpConn.SetKeepAlive(opts.KeepAlive); err != nil {
		return err
	}

	return applyPlatform(tcpConn, opts)
}
