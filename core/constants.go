package core

import (
	"errors"
	"fmt"
	"time"
)

// Defaults for Options fields left at zero.
const (
	DefaultRecvBufferSize = 4096
	DefaultReadTimeout    = 30 * time.Second
	DefaultWriteTimeout   = 10 * time.Second

	acceptBackoffMin = 5 * time.Millisecond
	acceptBackoffMax = time.Second
)

// ConnState is the position of a worker in its receive loop.
type ConnState uint8

// Connection states
const (
	StateAwaitMessage ConnState = iota
	StateParsing
	StateDispatched
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateAwaitMessage:
		return "await-message"
	case StateParsing:
		return "parsing"
	case StateDispatched:
		return "dispatched"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// OverflowPolicy decides what happens to a request whose target did not fit
// the URL buffer.
type OverflowPolicy uint8

const (
	// OverflowTruncate routes the truncated target.
	OverflowTruncate OverflowPolicy = iota
	// OverflowReject answers 414 and closes the connection.
	OverflowReject
)

func (p OverflowPolicy) String() string {
	if p == OverflowReject {
		return "reject"
	}
	return "truncate"
}

// ParseOverflowPolicy maps a config value to a policy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "truncate":
		return OverflowTruncate, nil
	case "reject":
		return OverflowReject, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOverflowPolicy, s)
	}
}

// Error definitions
var (
	ErrServerClosed          = errors.New("server closed")
	ErrWriteFailed           = errors.New("write failed")
	ErrInvalidOverflowPolicy = errors.New("invalid url overflow policy")
)
