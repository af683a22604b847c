package coxnet

import "time"

// Config holds the tunable constants from the reactor's configuration
// table. Zero-value Config is not meaningful on its own; use
// DefaultConfig or the With* options passed to New.
type Config struct {
	// InitialReadBufferSize is the starting capacity of a connection's
	// read buffer.
	InitialReadBufferSize int

	// InitialWriteBufferSize is the starting capacity of a connection's
	// write buffer.
	InitialWriteBufferSize int

	// MaxBytesPerRead bounds a single receive syscall's size on the
	// readiness backends. The IOCP backend posts fixed 4096-byte
	// receives and does not consult it.
	MaxBytesPerRead int

	// MaxBytesPerWrite bounds a single send syscall's size.
	MaxBytesPerWrite int

	// MaxEventsPerPoll bounds the multiplexer's per-cycle batch size on
	// the readiness backends. The IOCP backend dequeues every queued
	// completion in one cycle and does not consult it.
	MaxEventsPerPoll int

	// ConnectTimeout bounds the synchronous wait for a Connect to
	// observe writability.
	ConnectTimeout time.Duration

	// ShutdownDrain is the sleep Shut performs to let in-flight
	// completion-backend I/O settle before destroying connections.
	ShutdownDrain time.Duration

	// ListenBacklog is passed as the backlog argument to listen(2).
	// Zero means "use the OS maximum."
	ListenBacklog int
}

// DefaultConfig returns the configuration table's documented defaults.
func DefaultConfig() Config {
	return Config{
		InitialReadBufferSize:  4096,
		InitialWriteBufferSize: 4096,
		MaxBytesPerRead:        2048,
		MaxBytesPerWrite:       2048,
		MaxEventsPerPoll:       64,
		ConnectTimeout:         5 * time.Second,
		ShutdownDrain:          100 * time.Millisecond,
		ListenBacklog:          0,
	}
}

// Option configures a Reactor at construction time.
type Option func(*Config)

// WithInitialBufferSize overrides both the initial read and write buffer
// capacities.
func WithInitialBufferSize(n int) Option {
	return func(c *Config) {
		c.InitialReadBufferSize = n
		c.InitialWriteBufferSize = n
	}
}

// WithMaxBytesPerReadWrite overrides the per-syscall read and write size
// caps.
func WithMaxBytesPerReadWrite(n int) Option {
	return func(c *Config) {
		c.MaxBytesPerRead = n
		c.MaxBytesPerWrite = n
	}
}

// WithMaxEventsPerPoll overrides the multiplexer batch size.
func WithMaxEventsPerPoll(n int) Option {
	return func(c *Config) { c.MaxEventsPerPoll = n }
}

// WithConnectTimeout overrides the synchronous connect readiness budget.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectTimeout = d }
}

// WithShutdownDrain overrides the sleep Shut performs before tearing
// down connections.
func WithShutdownDrain(d time.Duration) Option {
	return func(c *Config) { c.ShutdownDrain = d }
}

// WithListenBacklog overrides the listen(2) backlog argument.
func WithListenBacklog(n int) Option {
	return func(c *Config) { c.ListenBacklog = n }
}
