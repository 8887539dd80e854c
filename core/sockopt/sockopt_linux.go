//go:build linux

package sockopt

import (
	"net"

	"golang.org/x/sys/unix"
)

func applyPlatform(conn *net.TCPConn, opts Options) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	err = raw.Control(func(fd uintptr) {
		if opts.KeepAlive {
			if opts.KeepAliveIdle > 0 {
				if e := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, int(opts.KeepAliveIdle.Seconds())); e != nil {
					sockErr = e
					return
				}
			}
			if opts.KeepAliveInterval > 0 {
				if e := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, int(opts.KeepAliveInterval.Seconds())); e != nil {
					sockErr = e
					return
				}
			}
		}
		// Not persistent; the kernel clears it after the next ACK.
		if opts.QuickAck {
			_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_QUICKACK, 1)
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}

// NoDelay reports whether TCP_NODELAY is set on conn.
func NoDelay(conn *net.TCPConn) (bool, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return false, err
	}

	var v int
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		v, sockErr = unix.GetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY)
	}); err != nil {
		return false, err
	}
	return v != 0, sockErr
}
