package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix selects the environment variables read by Load. FIBSERVER_MAX_FIB
// maps to the key "max.fib".
const EnvPrefix = "FIBSERVER"

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	Host string `config:"host"`
	Port int    `config:"port"`
	Env  string `config:"env"`

	ReadTimeout     time.Duration `config:"read.timeout"`
	WriteTimeout    time.Duration `config:"write.timeout"`
	ShutdownTimeout time.Duration `config:"shutdown.timeout"`

	RecvBuffer     int    `config:"recv.buffer"`
	MaxURL         int    `config:"max.url"`
	URLOverflow    string `config:"url.overflow"`
	MaxConnections int    `config:"max.connections"`

	MaxFib    uint64 `config:"max.fib"`
	MaxDigits int    `config:"max.digits"`

	ServerName string `config:"server.name"`
	LegacyCRLF bool   `config:"legacy.crlf"`

	LogLevel  string `config:"log.level"`
	LogFormat string `config:"log.format"`

	GCPercent   int   `config:"gc.percent"`
	MemoryLimit int64 `config:"memory.limit"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:            8081,
		Env:             "development",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RecvBuffer:      4096,
		MaxURL:          128,
		URLOverflow:     "truncate",
		ServerName:      "fib-server",
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load builds the configuration from defaults, an optional JSON file
// (-config), FIBSERVER_* environment variables and finally the flags
// present in args, each layer overriding the previous one.
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("fib-server", flag.ContinueOnError)
	configFile := fs.String("config", "", "JSON configuration file")
	cfg.bindFlags(fs)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	explicit := make(map[string]string)
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "config" {
			explicit[f.Name] = f.Value.String()
		}
	})

	m := NewManager()
	if *configFile != "" {
		if err := m.LoadFromJSON(*configFile); err != nil {
			return nil, err
		}
	}
	m.LoadFromEnv(EnvPrefix)

	if err := m.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) bindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Host, "host", c.Host, "Listen host (empty for all interfaces)")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP server port")
	fs.StringVar(&c.Env, "env", c.Env, "Environment (development/production)")
	fs.DurationVar(&c.ReadTimeout, "read-timeout", c.ReadTimeout, "Per-read idle timeout")
	fs.DurationVar(&c.WriteTimeout, "write-timeout", c.WriteTimeout, "Per-response write timeout")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "Graceful shutdown timeout")
	fs.IntVar(&c.RecvBuffer, "recv-buffer", c.RecvBuffer, "Receive buffer size per connection (bytes)")
	fs.IntVar(&c.MaxURL, "max-url", c.MaxURL, "Maximum request target length kept (bytes)")
	fs.StringVar(&c.URLOverflow, "url-overflow", c.URLOverflow, "Over-long targets: truncate or reject")
	fs.IntVar(&c.MaxConnections, "max-connections", c.MaxConnections, "Concurrent connection limit (0 = unbounded)")
	fs.Uint64Var(&c.MaxFib, "max-fib", c.MaxFib, "Largest Fibonacci index served (0 = unlimited)")
	fs.IntVar(&c.MaxDigits, "max-digits", c.MaxDigits, "Largest digit buffer allocated (0 = unlimited)")
	fs.StringVar(&c.ServerName, "server-name", c.ServerName, "Value of the Server response header")
	fs.BoolVar(&c.LegacyCRLF, "legacy-crlf", c.LegacyCRLF, "Append CRLF after response bodies")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug/info/warn/error)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format (text/json)")
	fs.IntVar(&c.GCPercent, "gc-percent", c.GCPercent, "GOGC override (0 = runtime default)")
	fs.Int64Var(&c.MemoryLimit, "memory-limit", c.MemoryLimit, "Soft memory limit in bytes (0 = none)")
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.Port >= 0 && c.Port <= 65535, "port %d out of range", c.Port)
	check(c.ReadTimeout > 0, "read.timeout must be positive")
	check(c.WriteTimeout > 0, "write.timeout must be positive")
	check(c.ShutdownTimeout > 0, "shutdown.timeout must be positive")
	check(c.RecvBuffer >= 64 && c.RecvBuffer <= 1<<20, "recv.buffer %d out of range [64, 1MiB]", c.RecvBuffer)
	check(c.MaxURL > 0, "max.url must be positive")
	check(c.URLOverflow == "truncate" || c.URLOverflow == "reject", "url.overflow %q (want truncate or reject)", c.URLOverflow)
	check(c.MaxConnections >= 0, "max.connections must not be negative")
	check(c.MaxDigits >= 0, "max.digits must not be negative")
	check(c.ServerName != "" && !strings.ContainsAny(c.ServerName, "\r\n"), "server.name %q", c.ServerName)
	check(c.GCPercent >= 0, "gc.percent must not be negative")
	check(c.MemoryLimit >= 0, "memory.limit must not be negative")

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		check(false, "log.level %q", c.LogLevel)
	}
	check(c.LogFormat == "text" || c.LogFormat == "json", "log.format %q (want text or json)", c.LogFormat)

	return errors.Join(errs...)
}
