package http

import "net"

// Method is the request method as far as the server cares about it.
type Method uint8

const (
	// MethodOther covers every method the server does not implement.
	MethodOther Method = iota
	// MethodGet is the only supported method.
	MethodGet
)

func (m Method) String() string {
	if m == MethodGet {
		return "GET"
	}
	return "OTHER"
}

// DefaultMaxURLLength bounds the request target kept per message.
const DefaultMaxURLLength = 128

// Request is the per-connection request record. It is reset at the start of
// every message and reused across keep-alive messages on one connection.
type Request struct {
	// Conn survives Reset.
	Conn net.Conn

	Method Method
	// MethodName is the raw method token, kept for logging.
	MethodName string
	KeepAlive  bool
	Complete   bool
	// URLOverflow reports that the target was longer than the buffer and
	// was truncated.
	URLOverflow bool

	url []byte
}

// NewRequest creates a request record whose URL buffer holds maxURL bytes.
func NewRequest(maxURL int) *Request {
	if maxURL <= 0 {
		maxURL = DefaultMaxURLLength
	}
	return &Request{url: make([]byte, 0, maxURL)}
}

// Reset clears the message fields, keeping Conn and the URL buffer.
func (r *Request) Reset() {
	r.Method = MethodOther
	r.MethodName = ""
	r.KeepAlive = false
	r.Complete = false
	r.URLOverflow = false
	r.url = r.url[:0]
}

// AppendURL concatenates a target fragment, truncating at the buffer
// capacity.
func (r *Request) AppendURL(frag []byte) {
	room := cap(r.url) - len(r.url)
	if len(frag) > room {
		frag = frag[:room]
		r.URLOverflow = true
	}
	r.url = append(r.url, frag...)
}

// URL returns the request target collected so far.
func (r *Request) URL() string {
	return string(r.url)
}
