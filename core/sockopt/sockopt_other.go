//go:build !linux

package sockopt

import "net"

func applyPlatform(conn *net.TCPConn, opts Options) error {
	if opts.KeepAlive && opts.KeepAliveIdle > 0 {
		return conn.SetKeepAlivePeriod(opts.KeepAliveIdle)
	}
	return nil
}
