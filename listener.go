package coxnet

// Listener wraps the accepting socket. It carries no read/write buffers
// and its own error slot for asynchronous listener failures; unlike
// Connection it does not pass through the Cleaner — a listener close is
// terminal for the whole Reactor's accepting function, handled inline
// by Reactor.Shut and the listener-error dispatch path.
type Listener struct {
	handle  uintptr
	err     error
	backend backend
}

func newListener(h uintptr, b backend) *Listener {
	return &Listener{handle: h, backend: b}
}

// NativeHandle returns the listening socket's opaque per-OS handle.
func (l *Listener) NativeHandle() uintptr { return l.handle }

// IsValid reports whether the listener is still accepting.
func (l *Listener) IsValid() bool {
	return l.handle != invalidHandle && l.err == nil
}

func (l *Listener) closeHandle(err error) {
	if l.handle == invalidHandle {
		return
	}
	_ = l.backend.unregister(l.handle)
	_ = l.backend.closeSocket(l.handle)
	l.handle = invalidHandle
	l.err = err
}
