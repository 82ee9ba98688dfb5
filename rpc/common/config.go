package common

import (
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultMaxConnsPerSocket = 4
	DefaultIdleTimeout       = 90 * time.Second
	DefaultConnectTimeout    = 5 * time.Second
	DefaultPoolWaitTimeout   = 10 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultSweepInterval     = 30 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
	DefaultLogLevel          = "info"
)

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// SocketConf holds settings applied to every dialed socket (0 keeps the OS default)
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// ClientConfig holds the pool, timeout and codec settings of a client
type ClientConfig struct {
	// MaxConnsPerSocket is the ceiling of connections in use per socket path.
	// Exchanges beyond it wait in the pool.
	MaxConnsPerSocket int
	// MaxIdlePerSocket bounds the idle connections kept per socket path
	MaxIdlePerSocket int
	// IdleTimeout is the age after which an idle connection is not reused
	IdleTimeout time.Duration

	// ConnectTimeout bounds a single dial
	ConnectTimeout time.Duration
	// PoolWaitTimeout bounds the wait for a free connection slot. It is always positive.
	PoolWaitTimeout time.Duration
	// RequestTimeout bounds writing the request and reading the whole response (0 disables it)
	RequestTimeout time.Duration
	// SweepInterval is the period of the background idle eviction (0 disables it,
	// stale connections are then only dropped on access)
	SweepInterval time.Duration

	// MaxHeaderBytes limits the size of a response head
	MaxHeaderBytes int

	Socket SocketConf

	// LogLevel is one of debug, info, warn, error
	LogLevel string
}

// DefaultClientConfig returns the configuration used when nothing is set
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxConnsPerSocket: DefaultMaxConnsPerSocket,
		MaxIdlePerSocket:  DefaultMaxConnsPerSocket,
		IdleTimeout:       DefaultIdleTimeout,
		ConnectTimeout:    DefaultConnectTimeout,
		PoolWaitTimeout:   DefaultPoolWaitTimeout,
		RequestTimeout:    DefaultRequestTimeout,
		SweepInterval:     DefaultSweepInterval,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
		LogLevel:          DefaultLogLevel,
	}
}

// Normalize returns a copy with every unset limit replaced by its default.
// RequestTimeout and SweepInterval keep 0, which disables them.
func (c ClientConfig) Normalize() ClientConfig {
	if c.MaxConnsPerSocket <= 0 {
		c.MaxConnsPerSocket = DefaultMaxConnsPerSocket
	}
	if c.MaxIdlePerSocket <= 0 || c.MaxIdlePerSocket > c.MaxConnsPerSocket {
		c.MaxIdlePerSocket = c.MaxConnsPerSocket
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.PoolWaitTimeout <= 0 {
		c.PoolWaitTimeout = DefaultPoolWaitTimeout
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	return c
}

// Validate rejects negative durations and unknown log levels
func (c *ClientConfig) Validate() error {
	durations := map[string]time.Duration{
		"idle timeout":      c.IdleTimeout,
		"connect timeout":   c.ConnectTimeout,
		"pool wait timeout": c.PoolWaitTimeout,
		"request timeout":   c.RequestTimeout,
		"sweep interval":    c.SweepInterval,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative (got %s)", name, d)
		}
	}
	if c.MaxConnsPerSocket < 0 || c.MaxIdlePerSocket < 0 || c.MaxHeaderBytes < 0 {
		return fmt.Errorf("connection and header limits must not be negative")
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	formatDuration := func(d time.Duration) string {
		if d == 0 {
			return "disabled"
		}
		return d.String()
	}

	// Pool settings
	addSection("Connection Pool")
	addField("Conns Per Socket", fmt.Sprintf("%d", c.MaxConnsPerSocket))
	addField("Idle Per Socket", fmt.Sprintf("%d", c.MaxIdlePerSocket))
	addField("Idle Timeout", formatDuration(c.IdleTimeout))
	addField("Sweep Interval", formatDuration(c.SweepInterval))

	// Timeouts
	addSection("Timeouts")
	addField("Connect", formatDuration(c.ConnectTimeout))
	addField("Pool Wait", formatDuration(c.PoolWaitTimeout))
	addField("Request", formatDuration(c.RequestTimeout))

	// Socket settings
	addSection("Socket")
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.Socket.ReadBufferSize))
	addField("Write Buffer", fmt.Sprintf("%d bytes", c.Socket.WriteBufferSize))
	addField("Max Header Bytes", fmt.Sprintf("%d bytes", c.MaxHeaderBytes))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
