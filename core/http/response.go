package http

const (
	// DefaultBody is served for "/" and for every request that does not
	// resolve to content.
	DefaultBody = "Hello World!"

	notImplementedBody = "501 Not Implemented"
	crlf               = "\r\n"
)

// ResponseBuilder formats complete HTTP/1.1 responses. Canned responses are
// rendered once at construction; a builder holds no per-request state and is
// safe for concurrent use.
type ResponseBuilder struct {
	serverName string
	legacyCRLF bool

	// indexed by keep-alive
	dummy          [2][]byte
	notImplemented [2][]byte
	badRequest     []byte
	uriTooLong     []byte
}

// NewResponseBuilder creates a builder. With legacyCRLF every body is
// followed by an extra CRLF that Content-Length does not count, matching the
// legacy in-kernel server wire format byte for byte.
func NewResponseBuilder(serverName string, legacyCRLF bool) *ResponseBuilder {
	b := &ResponseBuilder{serverName: serverName, legacyCRLF: legacyCRLF}

	for i, keepAlive := range [2]bool{false, true} {
		b.dummy[i] = b.appendText(nil, 200, DefaultBody, keepAlive)
		// The 21-byte length counts the CRLF after the body, so it is
		// part of the body in both wire modes.
		b.notImplemented[i] = b.appendRaw(nil, 501, notImplementedBody+crlf, keepAlive)
	}
	b.badRequest = b.appendText(nil, 400, "400 Bad Request", false)
	b.uriTooLong = b.appendText(nil, 414, "414 URI Too Long", false)

	return b
}

// AppendResponse appends the response for one request to dst.
//
// An unsupported method yields the canned 501. A GET that did not resolve
// (found is false) yields the canned 200 with DefaultBody. Otherwise content
// is sent as text/plain with its exact length.
func (b *ResponseBuilder) AppendResponse(dst []byte, content string, found, keepAlive, methodSupported bool) []byte {
	if !methodSupported {
		return append(dst, b.notImplemented[index(keepAlive)]...)
	}
	if !found {
		return append(dst, b.dummy[index(keepAlive)]...)
	}
	return b.appendText(dst, 200, content, keepAlive)
}

// AppendBadRequest appends the canned 400 response. It always closes.
func (b *ResponseBuilder) AppendBadRequest(dst []byte) []byte {
	return append(dst, b.badRequest...)
}

// AppendURITooLong appends the canned 414 response. It always closes.
func (b *ResponseBuilder) AppendURITooLong(dst []byte) []byte {
	return append(dst, b.uriTooLong...)
}

// EstimateSize returns the buffer size needed for a text response of n
// body bytes.
func EstimateSize(n int) int {
	return 160 + n
}

func (b *ResponseBuilder) appendText(dst []byte, code int, body string, keepAlive bool) []byte {
	dst = b.appendRaw(dst, code, body, keepAlive)
	if b.legacyCRLF {
		dst = append(dst, crlf...)
	}
	return dst
}

func (b *ResponseBuilder) appendRaw(dst []byte, code int, body string, keepAlive bool) []byte {
	dst = append(dst, "HTTP/1.1 "...)
	dst = appendInt(dst, code)
	dst = append(dst, ' ')
	dst = append(dst, statusText(code)...)
	dst = append(dst, crlf+"Server: "...)
	dst = append(dst, b.serverName...)
	dst = append(dst, crlf+"Content-Type: text/plain"+crlf+"Content-Length: "...)
	dst = appendInt(dst, len(body))
	if keepAlive {
		dst = append(dst, crlf+"Connection: Keep-Alive"+crlf+crlf...)
	} else {
		dst = append(dst, crlf+"Connection: Close"+crlf+crlf...)
	}
	return append(dst, body...)
}

func index(keepAlive bool) int {
	if keepAlive {
		return 1
	}
	return 0
}

// appendInt appends a non-negative integer to a byte slice
func appendInt(b []byte, i int) []byte {
	if i == 0 {
		return append(b, '0')
	}

	var digits [20]byte
	n := 0
	for i > 0 {
		digits[n] = byte('0' + i%10)
		i /= 10
		n++
	}

	for n > 0 {
		n--
		b = append(b, digits[n])
	}

	return b
}

// statusText returns the HTTP status text for the given code
func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 414:
		return "URI Too Long"
	case 501:
		return "Not Implemented"
	default:
		return "Unknown"
	}
}
