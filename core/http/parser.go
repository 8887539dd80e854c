package http

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrInvalidRequest              = errors.New("invalid HTTP request")
	ErrMethodTooLong               = errors.New("method too long")
	ErrUnsupportedVersion          = errors.New("unsupported HTTP version")
	ErrHeaderTooLarge              = errors.New("request header too large")
	ErrInvalidContentLength        = errors.New("invalid Content-Length")
	ErrUnsupportedTransferEncoding = errors.New("unsupported Transfer-Encoding")
)

// ParseError reports where in the stream the parser gave up.
type ParseError struct {
	// Offset counts bytes fed since the parser was created or reset.
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("http parse error at byte %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// EventType identifies a parser event.
type EventType uint8

const (
	EventMessageBegin EventType = iota + 1
	EventURL
	EventHeadersComplete
	EventBody
	EventMessageComplete
)

func (t EventType) String() string {
	switch t {
	case EventMessageBegin:
		return "message-begin"
	case EventURL:
		return "url"
	case EventHeadersComplete:
		return "headers-complete"
	case EventBody:
		return "body"
	case EventMessageComplete:
		return "message-complete"
	default:
		return "unknown"
	}
}

// Event is one step of a parsed message. Data aliases the slice passed to
// Feed and is only valid until the next Feed call.
type Event struct {
	Type EventType
	Data []byte

	// Set on EventHeadersComplete.
	Method     Method
	MethodName string
	KeepAlive  bool
}

// DefaultMaxHeaderBytes bounds the request line plus header block.
const DefaultMaxHeaderBytes = 8 * 1024

const (
	maxMethodLen     = 16
	maxHeaderNameLen = 32
	maxHeaderValLen  = 128
)

type parseState uint8

const (
	stateStart parseState = iota
	stateMethod
	stateURLStart
	stateURL
	stateProto
	stateProtoLF
	stateHeaderStart
	stateHeaderName
	stateHeaderValueStart
	stateHeaderValue
	stateHeaderLF
	stateHeadersEndLF
	stateBody
	stateDead
)

type headerKind uint8

const (
	headerIgnored headerKind = iota
	headerConnection
	headerContentLength
	headerTransferEncoding
)

// Parser is an incremental HTTP/1.1 request parser. Bytes are pushed in with
// Feed in whatever pieces the socket delivers; parser state carries across
// calls, so a message split over several reads yields the same events as
// one delivered whole.
type Parser struct {
	state          parseState
	maxHeaderBytes int
	offset         int64
	err            error

	events []Event

	method    [maxMethodLen]byte
	methodLen int
	proto     [8]byte
	protoLen  int
	http10    bool

	name     [maxHeaderNameLen]byte
	nameLen  int
	nameLong bool
	value    [maxHeaderValLen]byte
	valueLen int
	valLong  bool
	hkind    headerKind

	headerBytes   int
	connClose     bool
	connKeepAlive bool
	hasLength     bool
	contentLength int64
	transferCoded bool
	remaining     int64
}

// NewParser creates a parser. maxHeaderBytes <= 0 selects
// DefaultMaxHeaderBytes.
func NewParser(maxHeaderBytes int) *Parser {
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = DefaultMaxHeaderBytes
	}
	return &Parser{
		maxHeaderBytes: maxHeaderBytes,
		events:         make([]Event, 0, 8),
	}
}

// Reset returns the parser to its initial state, clearing any error.
func (p *Parser) Reset() {
	p.state = stateStart
	p.offset = 0
	p.err = nil
	p.events = p.events[:0]
	p.resetMessage()
}

func (p *Parser) resetMessage() {
	p.methodLen = 0
	p.protoLen = 0
	p.http10 = false
	p.nameLen = 0
	p.nameLong = false
	p.valueLen = 0
	p.valLong = false
	p.hkind = headerIgnored
	p.headerBytes = 0
	p.connClose = false
	p.connKeepAlive = false
	p.hasLength = false
	p.contentLength = 0
	p.transferCoded = false
	p.remaining = 0
}

// Err returns the error that stopped the parser, if any.
func (p *Parser) Err() error {
	return p.err
}

// Feed consumes data and returns the events it completed. The returned
// slice is reused by the next call. On a malformed stream Feed returns the
// events produced before the fault together with a *ParseError; every later
// call returns the same error until Reset.
func (p *Parser) Feed(data []byte) ([]Event, error) {
	p.events = p.events[:0]
	if p.state == stateDead {
		return p.events, p.err
	}

	urlStart := -1
	if p.state == stateURL {
		urlStart = 0
	}

	for i := 0; i < len(data); i++ {
		c := data[i]

		// The request target is bounded by the Request URL buffer and its
		// overflow policy, not by the header budget.
		if p.state != stateStart && p.state != stateBody && p.state != stateURLStart && p.state != stateURL {
			p.headerBytes++
			if p.headerBytes > p.maxHeaderBytes {
				return p.events, p.fail(int64(i), ErrHeaderTooLarge)
			}
		}

		switch p.state {
		case stateStart:
			if c == '\r' || c == '\n' {
				continue
			}
			if !isTokenChar(c) {
				return p.events, p.fail(int64(i), ErrInvalidRequest)
			}
			p.emit(Event{Type: EventMessageBegin})
			p.method[0] = c
			p.methodLen = 1
			p.headerBytes = 1
			p.state = stateMethod

		case stateMethod:
			switch {
			case c == ' ':
				p.state = stateURLStart
			case isTokenChar(c):
				if p.methodLen == maxMethodLen {
					return p.events, p.fail(int64(i), ErrMethodTooLong)
				}
				p.method[p.methodLen] = c
				p.methodLen++
			default:
				return p.events, p.fail(int64(i), ErrInvalidRequest)
			}

		case stateURLStart:
			if !isURLChar(c) {
				return p.events, p.fail(int64(i), ErrInvalidRequest)
			}
			urlStart = i
			p.state = stateURL

		case stateURL:
			if c == ' ' {
				if i > urlStart {
					p.emit(Event{Type: EventURL, Data: data[urlStart:i]})
				}
				urlStart = -1
				p.state = stateProto
				continue
			}
			if !isURLChar(c) {
				return p.events, p.fail(int64(i), ErrInvalidRequest)
			}

		case stateProto:
			switch c {
			case '\r':
				p.state = stateProtoLF
			case '\n':
				if err := p.finishRequestLine(); err != nil {
					return p.events, p.fail(int64(i), err)
				}
				p.state = stateHeaderStart
			default:
				if p.protoLen == len(p.proto) {
					return p.events, p.fail(int64(i), ErrUnsupportedVersion)
				}
				p.proto[p.protoLen] = c
				p.protoLen++
			}

		case stateProtoLF:
			if c != '\n' {
				return p.events, p.fail(int64(i), ErrInvalidRequest)
			}
			if err := p.finishRequestLine(); err != nil {
				return p.events, p.fail(int64(i), err)
			}
			p.state = stateHeaderStart

		case stateHeaderStart:
			switch {
			case c == '\r':
				p.state = stateHeadersEndLF
			case c == '\n':
				if err := p.finishHeaders(); err != nil {
					return p.events, p.fail(int64(i), err)
				}
			case isTokenChar(c):
				p.nameLen = 0
				p.nameLong = false
				p.valueLen = 0
				p.valLong = false
				p.appendName(c)
				p.state = stateHeaderName
			default:
				return p.events, p.fail(int64(i), ErrInvalidRequest)
			}

		case stateHeaderName:
			switch {
			case c == ':':
				p.hkind = p.kind()
				p.state = stateHeaderValueStart
			case isTokenChar(c):
				p.appendName(c)
			default:
				return p.events, p.fail(int64(i), ErrInvalidRequest)
			}

		case stateHeaderValueStart:
			switch c {
			case ' ', '\t':
			case '\r':
				p.state = stateHeaderLF
			case '\n':
				if err := p.finishHeader(); err != nil {
					return p.events, p.fail(int64(i), err)
				}
				p.state = stateHeaderStart
			default:
				p.appendValue(c)
				p.state = stateHeaderValue
			}

		case stateHeaderValue:
			switch c {
			case '\r':
				p.state = stateHeaderLF
			case '\n':
				if err := p.finishHeader(); err != nil {
					return p.events, p.fail(int64(i), err)
				}
				p.state = stateHeaderStart
			default:
				p.appendValue(c)
			}

		case stateHeaderLF:
			if c != '\n' {
				return p.events, p.fail(int64(i), ErrInvalidRequest)
			}
			if err := p.finishHeader(); err != nil {
				return p.events, p.fail(int64(i), err)
			}
			p.state = stateHeaderStart

		case stateHeadersEndLF:
			if c != '\n' {
				return p.events, p.fail(int64(i), ErrInvalidRequest)
			}
			if err := p.finishHeaders(); err != nil {
				return p.events, p.fail(int64(i), err)
			}

		case stateBody:
			n := int64(len(data) - i)
			if n > p.remaining {
				n = p.remaining
			}
			p.emit(Event{Type: EventBody, Data: data[i : i+int(n)]})
			p.remaining -= n
			i += int(n) - 1
			if p.remaining == 0 {
				p.completeMessage()
			}
		}
	}

	if p.state == stateURL && urlStart >= 0 && urlStart < len(data) {
		p.emit(Event{Type: EventURL, Data: data[urlStart:]})
	}

	p.offset += int64(len(data))
	return p.events, nil
}

func (p *Parser) emit(ev Event) {
	p.events = append(p.events, ev)
}

func (p *Parser) fail(at int64, err error) error {
	p.state = stateDead
	p.err = &ParseError{Offset: p.offset + at, Err: err}
	return p.err
}

func (p *Parser) finishRequestLine() error {
	switch string(p.proto[:p.protoLen]) {
	case "HTTP/1.1":
		p.http10 = false
	case "HTTP/1.0":
		p.http10 = true
	default:
		return ErrUnsupportedVersion
	}
	return nil
}

func (p *Parser) appendName(c byte) {
	if p.nameLen == maxHeaderNameLen {
		p.nameLong = true
		return
	}
	p.name[p.nameLen] = toLower(c)
	p.nameLen++
}

func (p *Parser) appendValue(c byte) {
	if p.hkind == headerIgnored {
		return
	}
	if p.valueLen == maxHeaderValLen {
		p.valLong = true
		return
	}
	p.value[p.valueLen] = c
	p.valueLen++
}

func (p *Parser) kind() headerKind {
	if p.nameLong {
		return headerIgnored
	}
	switch string(p.name[:p.nameLen]) {
	case "connection":
		return headerConnection
	case "content-length":
		return headerContentLength
	case "transfer-encoding":
		return headerTransferEncoding
	default:
		return headerIgnored
	}
}

func (p *Parser) finishHeader() error {
	value := bytes.TrimRight(p.value[:p.valueLen], " \t")

	switch p.hkind {
	case headerConnection:
		for _, tok := range bytes.Split(value, []byte{','}) {
			tok = bytes.TrimSpace(tok)
			switch {
			case bytes.EqualFold(tok, []byte("close")):
				p.connClose = true
			case bytes.EqualFold(tok, []byte("keep-alive")):
				p.connKeepAlive = true
			}
		}
	case headerContentLength:
		if p.valLong {
			return ErrInvalidContentLength
		}
		n, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil || n < 0 {
			return ErrInvalidContentLength
		}
		if p.hasLength && n != p.contentLength {
			return ErrInvalidContentLength
		}
		p.hasLength = true
		p.contentLength = n
	case headerTransferEncoding:
		if !bytes.EqualFold(value, []byte("identity")) {
			p.transferCoded = true
		}
	}
	return nil
}

func (p *Parser) finishHeaders() error {
	if p.transferCoded {
		return ErrUnsupportedTransferEncoding
	}

	method := MethodOther
	name := p.method[:p.methodLen]
	if string(name) == "GET" {
		method = MethodGet
	}

	p.emit(Event{
		Type:       EventHeadersComplete,
		Method:     method,
		MethodName: string(name),
		KeepAlive:  p.keepAlive(),
	})

	if p.contentLength > 0 {
		p.remaining = p.contentLength
		p.state = stateBody
		return nil
	}
	p.completeMessage()
	return nil
}

// keepAlive applies the HTTP/1.0 and HTTP/1.1 persistence defaults.
func (p *Parser) keepAlive() bool {
	if p.http10 {
		return p.connKeepAlive && !p.connClose
	}
	return !p.connClose
}

func (p *Parser) completeMessage() {
	p.emit(Event{Type: EventMessageComplete})
	p.resetMessage()
	p.state = stateStart
}

func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// isURLChar accepts visible ASCII and obs-text in a request target.
func isURLChar(c byte) bool {
	return c > 0x20 && c != 0x7f
}

var tokenTable = func() (t [256]bool) {
	for c := '0'; c <= '9'; c++ {
		t[c] = true
	}
	for c := 'a'; c <= 'z'; c++ {
		t[c] = true
	}
	for c := 'A'; c <= 'Z'; c++ {
		t[c] = true
	}
	for _, c := range "!#$%&'*+-.^_`|~" {
		t[c] = true
	}
	return t
}()

func isTokenChar(c byte) bool {
	return tokenTable[c]
}
