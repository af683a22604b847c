package coxnet

import "time"

// dispatcher is implemented by *Reactor and invoked by a backend while
// draining one multiplexer cycle. It carries the shared per-event state
// machine so that every backend, whether readiness-based or
// completion-based, produces identical externally visible ordering.
type dispatcher interface {
	// onListenerEvent is invoked for the listening socket. readable
	// means "run the accept loop"; errFlag means the listener itself
	// has become unusable.
	onListenerEvent(readable, errFlag bool)

	// onConnEvent is invoked once per non-listener handle per cycle
	// with the abstract event set a readiness multiplexer reports.
	// ERROR, HANG_UP, and PEER_HANG_UP may co-occur with READABLE.
	onConnEvent(h uintptr, readable, writable, errFlag, hangup, peerHangup bool)

	// onCompletionData is the completion-backend equivalent of
	// onConnEvent's readable branch: c's read buffer already holds the
	// bytes from a finished receive (or err is the failure that ended
	// it). Delivery, buffer clearing, and posting the next receive are
	// the dispatcher's and the backend's job respectively; this method
	// only does delivery/close bookkeeping.
	onCompletionData(c *Connection, err error)
}

// backend abstracts the OS-specific multiplexer and raw socket
// primitives behind the single interface poller.go drives. Exactly one
// concrete implementation exists per OS family: epoll (Linux), kqueue
// (Darwin), IOCP (Windows). See poller_*.go.
type backend interface {
	// pollOnce drains whatever the underlying multiplexer reports right
	// now (timeoutMs is always 0 from Poll; the multiplexer is never
	// invoked with a blocking timeout from the event loop) and invokes
	// d for each observation.
	pollOnce(d dispatcher, timeoutMs int) error

	registerListener(h uintptr, l *Listener) error
	registerConn(h uintptr, c *Connection) error
	armWrite(h uintptr) error
	unarmWrite(h uintptr) error
	unregister(h uintptr) error
	closeMultiplexer() error

	createListenSocket(fam ipFamily, addr string, port uint16, dualStack bool, backlog int) (uintptr, error)
	// connectSocket creates a non-blocking socket of the given family
	// and issues a non-blocking connect to addr:port, tolerating the
	// in-progress result (EINPROGRESS/WSAEWOULDBLOCK). The caller must
	// still call connectWait to confirm the connection completed.
	connectSocket(fam ipFamily, addr string, port uint16) (uintptr, error)
	connectWait(h uintptr, timeout time.Duration) error
	acceptOne(listenerHandle uintptr) (h uintptr, remoteIP string, remotePort uint16, err error)

	sendOnce(h uintptr, data []byte) (int, error)
	recvOnce(h uintptr, buf []byte) (int, error)
	closeSocket(h uintptr) error
	socketError(h uintptr) error

	isWouldBlock(err error) bool
	isInterrupted(err error) bool
	isAcceptExhausted(err error) bool
}

const invalidHandle = ^uintptr(0)
