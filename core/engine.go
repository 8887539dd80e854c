package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/netutil"

	"github.com/searchktools/fib-server/core/http"
	"github.com/searchktools/fib-server/core/pools"
	"github.com/searchktools/fib-server/core/router"
	"github.com/searchktools/fib-server/core/sockopt"
	"github.com/searchktools/fib-server/logging"
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RecvBufferSize is the size of each connection's receive buffer.
	RecvBufferSize int
	MaxURLLength   int
	MaxHeaderBytes int
	URLOverflow    OverflowPolicy

	// MaxConnections caps concurrently served connections on listeners
	// opened by Listen.
	// 0 means unbounded.
	MaxConnections int

	// Socket is applied to accepted connections; nil selects
	// sockopt.Default.
	Socket *sockopt.Options
}

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.RecvBufferSize <= 0 {
		o.RecvBufferSize = DefaultRecvBufferSize
	}
	if o.MaxURLLength <= 0 {
		o.MaxURLLength = http.DefaultMaxURLLength
	}
	if o.MaxHeaderBytes <= 0 {
		o.MaxHeaderBytes = http.DefaultMaxHeaderBytes
	}
	if o.Socket == nil {
		so := sockopt.Default()
		o.Socket = &so
	}
	return o
}

// Connection is the worker record for one accepted connection. Records are
// pooled and reused across connections.
type Connection struct {
	engine *Engine

	conn    net.Conn
	state   ConnState
	recvBuf []byte
	respBuf *[]byte

	request *http.Request
	adapter *http.Adapter
}

// Reset implements pools.Poolable
func (c *Connection) Reset() {
	c.conn = nil
	c.state = StateAwaitMessage
	c.recvBuf = nil
	c.respBuf = nil
	c.adapter.Reset()
	c.request.Conn = nil
}

// State returns the current worker state.
func (c *Connection) State() ConnState {
	return c.state
}

// Engine accepts connections and serves each one on its own goroutine.
type Engine struct {
	opts      Options
	router    *router.Router
	responses *http.ResponseBuilder
	logger    *slog.Logger

	bytePool       *pools.BytePool
	bufferPool     *pools.BufferPool
	connectionPool *pools.ConnectionPool[*Connection]

	mu           sync.Mutex
	listeners    map[net.Listener]struct{}
	connections  map[net.Conn]struct{}
	shuttingDown bool
	wg           sync.WaitGroup

	accepted atomic.Uint64
	active   atomic.Int64
	requests atomic.Uint64
	failed   atomic.Uint64
}

// NewEngine creates a new engine instance. bytePool supplies receive
// buffers and may be shared with the digit allocator; nil selects the
// process-wide pool.
func NewEngine(opts Options, rt *router.Router, responses *http.ResponseBuilder, bytePool *pools.BytePool, logger *slog.Logger) *Engine {
	if bytePool == nil {
		bytePool = pools.DefaultBytePool()
	}
	if logger == nil {
		logger = logging.NewDiscard()
	}

	e := &Engine{
		opts:        opts.withDefaults(),
		router:      rt,
		responses:   responses,
		logger:      logger,
		bytePool:    bytePool,
		bufferPool:  pools.NewBufferPool(),
		listeners:   make(map[net.Listener]struct{}),
		connections: make(map[net.Conn]struct{}, 1024),
	}

	e.connectionPool = pools.NewConnectionPool(func() *Connection {
		c := &Connection{
			engine:  e,
			request: http.NewRequest(e.opts.MaxURLLength),
		}
		c.adapter = http.NewAdapter(http.NewParser(e.opts.MaxHeaderBytes), c.request, c.dispatch)
		return c
	})

	return e
}

// Listen opens a TCP listener on addr with socket tuning and, when
// MaxConnections is set, an admission limit.
func (e *Engine) Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	ln = &tunedListener{Listener: ln, opts: *e.opts.Socket, logger: e.logger}
	if e.opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, e.opts.MaxConnections)
	}
	return ln, nil
}

// Run listens on addr and serves until ctx is cancelled or Shutdown is
// called.
func (e *Engine) Run(ctx context.Context, addr string) error {
	ln, err := e.Listen(addr)
	if err != nil {
		return err
	}

	e.logger.Info("server listening",
		"addr", ln.Addr().String(),
		"max_connections", e.opts.MaxConnections,
		"url_overflow", e.opts.URLOverflow.String(),
	)

	return e.Serve(ctx, ln)
}

// Serve accepts connections on ln and hands each to a new worker
// goroutine. It never waits for workers. It returns nil once ctx is
// cancelled or Shutdown is called, and ln is closed on return.
func (e *Engine) Serve(ctx context.Context, ln net.Listener) error {
	if !e.trackListener(ln, true) {
		ln.Close()
		return ErrServerClosed
	}
	defer e.trackListener(ln, false)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if e.closing() || ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}

			if delay == 0 {
				delay = acceptBackoffMin
			} else {
				delay *= 2
			}
			if delay > acceptBackoffMax {
				delay = acceptBackoffMax
			}
			e.logger.Warn("accept failed", "error", err, "retry_in", delay)

			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return nil
			}
			continue
		}
		delay = 0

		if !e.trackConn(conn, true) {
			conn.Close()
			return nil
		}
		e.accepted.Add(1)
		e.active.Add(1)

		c := e.connectionPool.Get()
		c.conn = conn
		c.request.Conn = conn
		c.recvBuf = e.bytePool.Get(e.opts.RecvBufferSize)
		c.respBuf = e.bufferPool.Get(http.EstimateSize(64))

		go e.serveConn(ctx, c)
	}
}

// Shutdown closes every listener and live connection, then waits for the
// workers to exit or ctx to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.shuttingDown = true
	for ln := range e.listeners {
		ln.Close()
	}
	for conn := range e.connections {
		conn.Close()
	}
	open := len(e.connections)
	e.mu.Unlock()

	e.logger.Info("shutting down", "open_connections", open)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) closing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shuttingDown
}

func (e *Engine) trackListener(ln net.Listener, add bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if add {
		if e.shuttingDown {
			return false
		}
		e.listeners[ln] = struct{}{}
	} else {
		delete(e.listeners, ln)
	}
	return true
}

// trackConn registers or forgets a live connection. The WaitGroup is only
// incremented under mu while not shutting down, so Shutdown never races an
// Add against Wait.
func (e *Engine) trackConn(conn net.Conn, add bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if add {
		if e.shuttingDown {
			return false
		}
		e.connections[conn] = struct{}{}
		e.wg.Add(1)
	} else {
		delete(e.connections, conn)
	}
	return true
}

// serveConn drives the receive/parse/dispatch loop of one connection until
// the peer closes, an error occurs, or a response was not keep-alive.
func (e *Engine) serveConn(ctx context.Context, c *Connection) {
	defer e.wg.Done()
	defer e.release(c)
	defer func() {
		if r := recover(); r != nil {
			e.failed.Add(1)
			e.logger.Error("connection panic",
				"remote", c.conn.RemoteAddr().String(),
				"state", c.State().String(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		c.state = StateAwaitMessage
		if err := c.conn.SetReadDeadline(time.Now().Add(e.opts.ReadTimeout)); err != nil {
			return
		}

		n, rerr := c.conn.Read(c.recvBuf)
		if n > 0 {
			c.state = StateParsing
			closeConn, err := c.adapter.Feed(c.recvBuf[:n])
			if err != nil {
				e.handleError(c, err)
				return
			}
			if closeConn {
				return
			}
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) && !errors.Is(rerr, net.ErrClosed) {
				e.logger.Debug("read failed", "remote", c.conn.RemoteAddr().String(), "error", rerr)
			}
			return
		}
	}
}

func (e *Engine) handleError(c *Connection, err error) {
	e.failed.Add(1)

	var pe *http.ParseError
	if errors.As(err, &pe) {
		e.logger.Debug("bad request", "remote", c.conn.RemoteAddr().String(), "error", err)
		buf := e.responses.AppendBadRequest((*c.respBuf)[:0])
		*c.respBuf = buf
		if werr := c.write(buf); werr != nil {
			e.logger.Debug("write failed", "remote", c.conn.RemoteAddr().String(), "error", werr)
		}
		return
	}

	e.logger.Debug("connection error", "remote", c.conn.RemoteAddr().String(), "error", err)
}

func (e *Engine) release(c *Connection) {
	c.state = StateClosing
	e.trackConn(c.conn, false)
	c.conn.Close()

	e.bytePool.Put(c.recvBuf)
	e.bufferPool.Put(c.respBuf)
	e.connectionPool.Put(c)
	e.active.Add(-1)
}

// dispatch builds and writes the response for one completed request.
func (c *Connection) dispatch(req *http.Request) error {
	e := c.engine
	c.state = StateDispatched
	e.requests.Add(1)

	buf := (*c.respBuf)[:0]

	if req.URLOverflow && e.opts.URLOverflow == OverflowReject {
		req.KeepAlive = false
		buf = e.responses.AppendURITooLong(buf)
	} else {
		supported := req.Method == http.MethodGet

		var content string
		var found bool
		if supported {
			var err error
			content, err = e.router.Resolve(req.URL())
			if err != nil {
				e.logger.Debug("route not served", "url", req.URL(), "error", err)
			} else {
				found = true
			}
		}

		buf = e.responses.AppendResponse(buf, content, found, req.KeepAlive, supported)
	}

	*c.respBuf = buf

	e.logger.Debug("request",
		"method", req.MethodName,
		"url", req.URL(),
		"keep_alive", req.KeepAlive,
		"bytes", len(buf),
	)

	return c.write(buf)
}

func (c *Connection) write(p []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.engine.opts.WriteTimeout)); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	for len(p) > 0 {
		n, err := c.conn.Write(p)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrWriteFailed, err)
		}
		p = p[n:]
	}
	return nil
}

// tunedListener applies socket options to every accepted connection. It
// sits beneath netutil.LimitListener so the options still see a
// *net.TCPConn.
type tunedListener struct {
	net.Listener
	opts   sockopt.Options
	logger *slog.Logger
}

func (l *tunedListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if err := sockopt.Apply(conn, l.opts); err != nil {
		l.logger.Debug("socket options not applied", "error", err)
	}
	return conn, nil
}
