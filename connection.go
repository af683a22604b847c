package coxnet

// Connection is the per-socket object the Reactor hands to user
// callbacks. A *Connection is only valid for the duration of the
// callback it was passed to; the Reactor owns it exclusively and may
// destroy it once the on-close callback for it returns.
type Connection struct {
	handle     uintptr
	remoteIP   string
	remotePort uint16

	readBuf  *byteBuffer
	writeBuf *byteBuffer

	err        error
	userClosed bool

	// ioInFlight is reserved for a completion backend to mark a finished
	// receive that has not yet been delivered. No backend sets it: the
	// IOCP backend dequeues completions inside Poll and delivers them to
	// the data callback directly.
	ioInFlight bool

	backend backend
	cleaner *cleaner
	cfg     *Config
}

func newConnection(h uintptr, remoteIP string, remotePort uint16, b backend, cl *cleaner, cfg *Config) *Connection {
	return &Connection{
		handle:     h,
		remoteIP:   remoteIP,
		remotePort: remotePort,
		readBuf:    newByteBuffer(cfg.InitialReadBufferSize),
		writeBuf:   newByteBuffer(cfg.InitialWriteBufferSize),
		backend:    b,
		cleaner:    cl,
		cfg:        cfg,
	}
}

// NativeHandle returns the connection's opaque per-OS handle.
func (c *Connection) NativeHandle() uintptr { return c.handle }

// IsValid reports whether the connection is still live: handle is live,
// no error has been recorded, and the user has not requested a close. A
// connection that is no longer valid stays in the Reactor's connection
// table until the next Cleaner drain removes it.
func (c *Connection) IsValid() bool {
	return c.handle != invalidHandle && c.err == nil && !c.userClosed
}

// RemoteAddr returns the peer's printable address and port.
func (c *Connection) RemoteAddr() (string, uint16) { return c.remoteIP, c.remotePort }

// UserClose requests that the connection be torn down. It is idempotent
// and synchronous with respect to the underlying handle (the OS socket
// is closed before UserClose returns), but the on-close callback fires
// only on a later Poll/Cleaner drain.
func (c *Connection) UserClose() {
	if !c.IsValid() {
		return
	}
	c.userClosed = true
	c.closeHandle(nil)
}

// Write attempts a direct non-blocking send of b. It returns the number
// of bytes accepted — which may be less than len(b) only on a fatal
// error, never because of buffering — or -1 if the connection is not
// valid or a fatal error closed it during this call. Bytes that cannot
// be sent immediately are spooled in the write buffer and flushed by
// the Reactor's write-readiness dispatch.
func (c *Connection) Write(b []byte) int {
	if !c.IsValid() {
		return writeSentinel
	}

	if c.writeBuf.unconsumed() > 0 {
		// Slow path: something is already spooled, so FIFO ordering
		// requires appending rather than attempting a fresh send.
		c.writeBuf.append(b)
		return len(b)
	}

	sent := 0
	for sent < len(b) {
		n, err := c.sendChunk(b[sent:])
		sent += n
		if err == nil {
			continue
		}
		if c.backend.isInterrupted(err) {
			continue
		}
		if c.backend.isWouldBlock(err) {
			c.writeBuf.append(b[sent:])
			if armErr := c.backend.armWrite(c.handle); armErr != nil {
				c.closeHandle(armErr)
				return writeSentinel
			}
			return len(b)
		}
		c.closeHandle(err)
		return writeSentinel
	}
	return sent
}

// sendChunk issues one send syscall bounded by MaxBytesPerWrite.
func (c *Connection) sendChunk(b []byte) (int, error) {
	max := c.cfg.MaxBytesPerWrite
	if max > 0 && len(b) > max {
		b = b[:max]
	}
	return c.backend.sendOnce(c.handle, b)
}

// drainWriteBuffer flushes the write buffer on a writability event. It
// is invoked only by the Reactor's dispatch loop.
func (c *Connection) drainWriteBuffer() {
	for c.writeBuf.unconsumed() > 0 {
		chunk := c.writeBuf.unconsumedView()
		n, err := c.sendChunk(chunk)
		if err == nil {
			c.writeBuf.advanceConsumed(n)
			continue
		}
		if c.backend.isInterrupted(err) {
			continue
		}
		if c.backend.isWouldBlock(err) {
			return
		}
		c.closeHandle(err)
		return
	}

	c.writeBuf.clear()
	if err := c.backend.unarmWrite(c.handle); err != nil {
		c.closeHandle(err)
	}
}

// closeHandle tears the connection down exactly once: closes the OS
// handle, deregisters it from the multiplexer, records err (nil means
// user-requested or torn down by Shut; an orderly peer close passes
// ErrPeerClosed), and registers the original handle
// with the Cleaner so the Reactor can find and remove the table entry on
// the next drain.
func (c *Connection) closeHandle(err error) {
	if c.handle == invalidHandle {
		return
	}
	orig := c.handle
	_ = c.backend.unregister(orig)
	_ = c.backend.closeSocket(orig)

	c.handle = invalidHandle
	c.err = err
	c.cleaner.push(orig)
}
