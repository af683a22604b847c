package coxnet

import "sync/atomic"

// NewConnectionFunc fires once when a peer is accepted, before any data
// callback for that connection.
type NewConnectionFunc func(c *Connection)

// DataFunc fires for a contiguous view of newly received bytes; the
// slice is valid only during the call.
type DataFunc func(c *Connection, data []byte)

// CloseFunc fires exactly once per connection; err == nil means a
// user-initiated close or teardown by Shut, ErrPeerClosed means an
// orderly peer close, otherwise it is the OS error that closed the
// connection.
type CloseFunc func(c *Connection, err error)

// ListenErrorFunc fires when the listening socket becomes unusable.
// Accepting is disabled from then on.
type ListenErrorFunc func(err error)

// Reactor is the single-threaded event loop: one multiplexer, an
// optional Listener, the connection table keyed by native handle, the
// Cleaner, and the four user callback slots.
type Reactor struct {
	cfg     Config
	backend backend
	cleaner *cleaner

	listener    *Listener
	connections map[uintptr]*Connection

	onNewConnection NewConnectionFunc
	onData          DataFunc
	onClose         CloseFunc
	onListenerError ListenErrorFunc

	shutdownRequested atomic.Bool
	shutdown           bool
}

// New constructs a Reactor bound to the platform's multiplexer backend.
func New(opts ...Option) (*Reactor, error) {
	initEnv()

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	b, err := newBackend(cfg.MaxEventsPerPoll)
	if err != nil {
		shutdownEnv()
		return nil, err
	}

	return &Reactor{
		cfg:         cfg,
		backend:     b,
		cleaner:     newCleaner(),
		connections: make(map[uintptr]*Connection),
	}, nil
}

// Listen creates a listening socket of the family implied by address
// and stack, registers it with the multiplexer, and installs the
// callbacks. It returns false on any failure (invalid address, family
// mismatch, a listener already present, or a syscall failure) without
// raising anything through a callback.
func (r *Reactor) Listen(address string, port uint16, stack StackMode,
	onNewConnection NewConnectionFunc, onData DataFunc, onClose CloseFunc) bool {

	if r.shutdown || r.shutdownRequested.Load() {
		return false
	}
	if r.listener != nil {
		return false
	}

	fam, err := resolveListenFamily(address, stack)
	if err != nil {
		return false
	}

	h, err := r.backend.createListenSocket(fam, address, port, stack == DualStack, r.cfg.ListenBacklog)
	if err != nil {
		return false
	}

	l := newListener(h, r.backend)
	if err := r.backend.registerListener(h, l); err != nil {
		_ = r.backend.closeSocket(h)
		return false
	}

	r.listener = l
	r.onNewConnection = onNewConnection
	r.onData = onData
	r.onClose = onClose
	return true
}

// SetListenErrorFunc installs the listener-error callback. It is kept
// separate from Listen's signature as an independently settable slot
// rather than a Listen argument; calling it after Listen is safe and
// takes effect on the next listener error.
func (r *Reactor) SetListenErrorFunc(fn ListenErrorFunc) {
	r.onListenerError = fn
}

// Connect creates a non-blocking stream socket, issues a non-blocking
// connect, and waits up to the configured connect timeout for
// writability to confirm the connection. On success the connection is
// registered with the multiplexer and a borrowed reference is returned.
func (r *Reactor) Connect(address string, port uint16, onData DataFunc, onClose CloseFunc) (*Connection, error) {
	if r.shutdown || r.shutdownRequested.Load() {
		return nil, ErrShutdown
	}

	fam, err := resolveConnectFamily(address)
	if err != nil {
		return nil, err
	}

	h, err := r.backend.connectSocket(fam, address, port)
	if err != nil {
		return nil, err
	}

	if err := r.backend.connectWait(h, r.cfg.ConnectTimeout); err != nil {
		_ = r.backend.closeSocket(h)
		return nil, ErrConnectTimeout
	}

	c := newConnection(h, address, port, r.backend, r.cleaner, &r.cfg)
	if err := r.backend.registerConn(h, c); err != nil {
		_ = r.backend.closeSocket(h)
		return nil, err
	}

	r.connections[h] = c
	r.onData = onData
	r.onClose = onClose
	return c, nil
}

// Poll performs one non-blocking cycle: drive the multiplexer, dispatch
// whatever it reports, then drain the Cleaner. It is a no-op once
// shutdown has been requested or Shut has run.
func (r *Reactor) Poll() {
	if r.shutdown || r.shutdownRequested.Load() {
		return
	}

	if err := r.backend.pollOnce(r, 0); err != nil {
		diag("coxnet: poll error: %v", err)
	}

	r.cleaner.drain(r.onCleanupHandle)
}

// RequestShutdown atomically sets the shutdown-requested flag. The next
// Poll call observes it and becomes a no-op; actual teardown happens
// only when the owner calls Shut.
func (r *Reactor) RequestShutdown() { r.shutdownRequested.Store(true) }

// IsShutdownRequested reports whether RequestShutdown has been called.
func (r *Reactor) IsShutdownRequested() bool { return r.shutdownRequested.Load() }

// Shut performs a synchronous teardown: closes the listener and every
// connection, sleeps briefly to let any in-flight completion-backend I/O
// drain, delivers a close callback for every connection exactly once,
// destroys them, clears the Cleaner, and closes the multiplexer. Further
// Poll calls are no-ops after Shut returns.
func (r *Reactor) Shut() {
	if r.shutdown {
		return
	}

	if r.listener != nil {
		r.listener.closeHandle(nil)
	}

	for h, c := range r.connections {
		c.closeHandle(nil)
		_ = h
	}

	sleepDrain(r.cfg.ShutdownDrain)

	for h, c := range r.connections {
		if r.onClose != nil {
			recoverCallback("on-close", func() {
				r.onClose(c, closeErrFor(c))
			})
		}
		delete(r.connections, h)
	}

	r.cleaner.drain(func(uintptr) {})
	_ = r.backend.closeMultiplexer()
	shutdownEnv()

	r.onNewConnection = nil
	r.onData = nil
	r.onClose = nil
	r.onListenerError = nil
	r.shutdown = true
}

// onCleanupHandle is the Cleaner's drain callback: find the connection,
// invoke on-close exactly once, remove it from the table, destroy it.
func (r *Reactor) onCleanupHandle(h uintptr) {
	c, ok := r.connections[h]
	if !ok {
		return
	}
	delete(r.connections, h)

	if r.onClose != nil {
		recoverCallback("on-close", func() {
			r.onClose(c, closeErrFor(c))
		})
	}
}

func closeErrFor(c *Connection) error {
	if c.userClosed {
		return nil
	}
	return c.err
}

// --- dispatcher implementation -------------------------------------------

func (r *Reactor) onListenerEvent(readable, errFlag bool) {
	l := r.listener
	if l == nil || !l.IsValid() {
		return
	}

	if errFlag {
		err := r.backend.socketError(l.handle)
		l.closeHandle(err)
		if r.onListenerError != nil {
			recoverCallback("on-listener-error", func() { r.onListenerError(err) })
		}
		return
	}

	if readable {
		r.acceptLoop()
	}
}

func (r *Reactor) acceptLoop() {
	l := r.listener
	for l.IsValid() {
		h, ip, port, err := r.backend.acceptOne(l.handle)
		if err != nil {
			if r.backend.isAcceptExhausted(err) {
				return
			}
			if r.backend.isInterrupted(err) {
				continue
			}
			l.closeHandle(err)
			if r.onListenerError != nil {
				recoverCallback("on-listener-error", func() { r.onListenerError(err) })
			}
			return
		}

		c := newConnection(h, ip, port, r.backend, r.cleaner, &r.cfg)
		if err := r.backend.registerConn(h, c); err != nil {
			_ = r.backend.closeSocket(h)
			continue
		}

		r.connections[h] = c
		if r.onNewConnection != nil {
			recoverCallback("on-new-connection", func() { r.onNewConnection(c) })
		}
	}
}

func (r *Reactor) onConnEvent(h uintptr, readable, writable, errFlag, hangup, peerHangup bool) {
	c, ok := r.connections[h]
	if !ok || !c.IsValid() {
		return
	}

	if writable {
		c.drainWriteBuffer()
		if !c.IsValid() {
			return
		}
	}

	if readable {
		r.readFrom(c)
		return
	}

	if errFlag {
		err := r.backend.socketError(h)
		c.closeHandle(err)
		return
	}

	if hangup || peerHangup {
		c.closeHandle(ErrPeerClosed)
	}
}

// readFrom runs the edge-triggered read routine: receive in a loop into
// the read buffer, growing it (by doubling) whenever fewer than
// MaxBytesPerRead bytes are free, until the
// backend reports would-block, orderly close, or a fatal error.
func (r *Reactor) readFrom(c *Connection) {
	for {
		c.readBuf.ensureWritable(r.cfg.MaxBytesPerRead)
		tail := c.readBuf.writableTail()
		if len(tail) > r.cfg.MaxBytesPerRead {
			tail = tail[:r.cfg.MaxBytesPerRead]
		}

		n, err := r.backend.recvOnce(c.handle, tail)
		if err == nil && n == 0 {
			c.closeHandle(ErrPeerClosed)
			return
		}
		if err == nil {
			c.readBuf.commitWritten(n)
			if r.onData != nil {
				view := c.readBuf.unconsumedView()
				recoverCallback("on-data", func() { r.onData(c, view) })
			}
			c.readBuf.clear()
			if !c.IsValid() {
				return
			}
			continue
		}

		if r.backend.isInterrupted(err) {
			continue
		}
		if r.backend.isWouldBlock(err) {
			return
		}
		c.closeHandle(err)
		return
	}
}

// onCompletionData is the IOCP-style completion path: c's read buffer
// already holds the bytes from a finished receive (or err ended it).
func (r *Reactor) onCompletionData(c *Connection, err error) {
	if !c.IsValid() {
		return
	}
	if err != nil {
		c.closeHandle(err)
		return
	}

	if c.readBuf.unconsumed() == 0 {
		return
	}
	if r.onData != nil {
		view := c.readBuf.unconsumedView()
		recoverCallback("on-data", func() { r.onData(c, view) })
	}
	c.readBuf.clear()
}
