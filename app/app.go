package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/searchktools/fib-server/config"
	"github.com/searchktools/fib-server/core"
	"github.com/searchktools/fib-server/core/bignum"
	"github.com/searchktools/fib-server/core/fib"
	"github.com/searchktools/fib-server/core/http"
	"github.com/searchktools/fib-server/core/observability"
	"github.com/searchktools/fib-server/core/pools"
	"github.com/searchktools/fib-server/core/router"
	"github.com/searchktools/fib-server/logging"
)

// App wires configuration, the Fibonacci route and the engine together.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	engine  *core.Engine
	monitor *observability.Monitor
}

// New creates an application instance from a validated configuration.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = logging.NewDiscard()
	}

	policy, err := core.ParseOverflowPolicy(cfg.URLOverflow)
	if err != nil {
		return nil, err
	}

	// Receive buffers and digit buffers share one tiered pool.
	bytePool := pools.NewBytePool()
	fibEngine := fib.NewEngine(bignum.NewPoolAllocator(bytePool, cfg.MaxDigits), cfg.MaxFib)

	monitor := observability.NewMonitor()

	table, err := router.NewRouteTable(router.Route{
		Name:    "fib",
		Handler: monitor.Instrument("fib", fibEngine.Handler()),
	})
	if err != nil {
		return nil, fmt.Errorf("route table: %w", err)
	}

	engine := core.NewEngine(core.Options{
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		RecvBufferSize: cfg.RecvBuffer,
		MaxURLLength:   cfg.MaxURL,
		URLOverflow:    policy,
		MaxConnections: cfg.MaxConnections,
	}, router.New(table), http.NewResponseBuilder(cfg.ServerName, cfg.LegacyCRLF), bytePool, logger)

	return &App{
		cfg:     cfg,
		logger:  logger,
		engine:  engine,
		monitor: monitor,
	}, nil
}

// Engine returns the underlying engine
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Monitor returns the per-route latency monitor
func (a *App) Monitor() *observability.Monitor {
	return a.monitor
}

// Listen opens the configured listener.
func (a *App) Listen() (net.Listener, error) {
	return a.engine.Listen(a.cfg.Addr())
}

// Run listens on the configured address and serves until ctx is cancelled
// or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ln, err := a.Listen()
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve serves ln, then shuts the engine down gracefully within the
// configured shutdown timeout.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	restore := pools.ApplyGCConfig(pools.GCConfig{
		Percent:     a.cfg.GCPercent,
		MemoryLimit: a.cfg.MemoryLimit,
	})
	defer restore()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info("fib-server starting",
		"addr", ln.Addr().String(),
		"env", a.cfg.Env,
		"max_fib", a.cfg.MaxFib,
		"max_digits", a.cfg.MaxDigits,
		"max_connections", a.cfg.MaxConnections,
		"url_overflow", a.cfg.URLOverflow,
		"legacy_crlf", a.cfg.LegacyCRLF,
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	gctx, done := context.WithCancel(gctx)
	defer done()

	g.Go(func() error {
		// Serve also returns when Shutdown is called from elsewhere.
		defer done()
		return a.engine.Serve(gctx, ln)
	})

	g.Go(func() error {
		<-gctx.Done()

		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := a.engine.Shutdown(sctx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()

	s := a.engine.Stats()
	gc := pools.GetGCStats()
	a.logger.Info("fib-server stopped",
		"uptime", time.Since(start).Round(time.Millisecond),
		"accepted", s.Accepted,
		"requests", s.Requests,
		"errors", s.Errors,
		"worker_pool_hit_rate", s.Pools.Connection.HitRate,
		"num_gc", gc.NumGC,
		"gc_pause_total", gc.PauseTotal,
	)
	for _, r := range a.monitor.Snapshot() {
		a.logger.Info("route summary",
			"route", r.Name,
			"count", r.Count,
			"errors", r.Errors,
			"avg", r.Avg,
			"max", r.Max,
		)
	}
	for _, b := range a.monitor.Bottlenecks() {
		a.logger.Warn("route bottleneck", "route", b.Location, "type", b.Type, "details", b.Details)
	}
	a.logger.Debug("final statistics\n" + a.engine.StatsText())

	return err
}
