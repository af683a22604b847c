//go:build darwin

package coxnet

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueueBackend is the Darwin readiness backend. The original C++
// library's poller_mac.h is a stub ("not implemented, TODO"); this
// backend supplements that gap in the same edge-triggered idiom as the
// Linux one, following _examples/momentics-hioload-ws/reactor/
// reactor_linux.go's structure but against EVFILT_READ/EVFILT_WRITE.
type kqueueBackend struct {
	kq         int
	events     []unix.Kevent_t
	listenerFd int
}

func newBackend(maxEvents int) (backend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	if maxEvents <= 0 {
		maxEvents = 64
	}
	return &kqueueBackend{
		kq:         kq,
		events:     make([]unix.Kevent_t, maxEvents),
		listenerFd: -1,
	}, nil
}

func (b *kqueueBackend) pollOnce(d dispatcher, timeoutMs int) error {
	var ts unix.Timespec
	tsPtr := &ts
	if timeoutMs < 0 {
		tsPtr = nil
	} else {
		ts = unix.NsecToTimespec(int64(timeoutMs) * int64(time.Millisecond))
	}

	n, err := unix.Kevent(b.kq, nil, b.events, tsPtr)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}

	// kqueue reports read- and write-readiness as separate events for
	// the same fd within one poll; conn events coalesce them into a
	// single onConnEvent call per fd as the shared dispatcher contract
	// requires, so gather per-fd flags before dispatching.
	type flags struct {
		readable, writable, errFlag, hangup bool
	}
	perFd := make(map[int]*flags)

	for i := 0; i < n; i++ {
		ev := b.events[i]
		fd := int(ev.Ident)

		f := perFd[fd]
		if f == nil {
			f = &flags{}
			perFd[fd] = f
		}
		if ev.Filter == unix.EVFILT_READ {
			f.readable = true
		}
		if ev.Filter == unix.EVFILT_WRITE {
			f.writable = true
		}
		if ev.Flags&unix.EV_EOF != 0 {
			f.hangup = true
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			f.errFlag = true
		}
	}

	for fd, f := range perFd {
		if fd == b.listenerFd {
			d.onListenerEvent(f.readable, f.errFlag)
			continue
		}
		d.onConnEvent(uintptr(fd), f.readable, f.writable, f.errFlag, f.hangup, false)
	}

	return nil
}

func (b *kqueueBackend) registerListener(h uintptr, l *Listener) error {
	fd := int(h)
	ev := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_CLEAR}
	if _, err := unix.Kevent(b.kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		return err
	}
	b.listenerFd = fd
	return nil
}

func (b *kqueueBackend) registerConn(h uintptr, c *Connection) error {
	fd := int(h)
	ev := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_CLEAR}
	_, err := unix.Kevent(b.kq, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (b *kqueueBackend) armWrite(h uintptr) error {
	fd := int(h)
	ev := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_CLEAR}
	_, err := unix.Kevent(b.kq, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (b *kqueueBackend) unarmWrite(h uintptr) error {
	fd := int(h)
	ev := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE}
	_, err := unix.Kevent(b.kq, []unix.Kevent_t{ev}, nil, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (b *kqueueBackend) unregister(h uintptr) error {
	fd := int(h)
	if fd == b.listenerFd {
		b.listenerFd = -1
	}
	evs := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	for _, ev := range evs {
		_, _ = unix.Kevent(b.kq, []unix.Kevent_t{ev}, nil, nil)
	}
	return nil
}

func (b *kqueueBackend) closeMultiplexer() error {
	return unix.Close(b.kq)
}

func (b *kqueueBackend) createListenSocket(fam ipFamily, addr string, port uint16, dualStack bool, backlog int) (uintptr, error) {
	fd, err := posixCreateListenSocket(fam, addr, port, dualStack, backlog)
	if err != nil {
		return invalidHandle, err
	}
	return uintptr(fd), nil
}

func (b *kqueueBackend) connectSocket(fam ipFamily, addr string, port uint16) (uintptr, error) {
	fd, err := posixConnectSocket(fam, addr, port)
	if err != nil {
		return invalidHandle, err
	}
	return uintptr(fd), nil
}

func (b *kqueueBackend) connectWait(h uintptr, timeout time.Duration) error {
	return posixConnectWait(int(h), timeout)
}

// acceptOne uses plain accept(2) since BSD has no accept4; the
// accepted socket is switched to non-blocking immediately afterward,
// the same ordering _examples/original_source/coxnet/poller_linux.h
// uses before accept4 existed.
func (b *kqueueBackend) acceptOne(listenerHandle uintptr) (uintptr, string, uint16, error) {
	fd, sa, err := unix.Accept(int(listenerHandle))
	if err != nil {
		return invalidHandle, "", 0, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return invalidHandle, "", 0, err
	}

	ip, port := peerFromSockaddr(sa)
	return uintptr(fd), ip, port, nil
}

func (b *kqueueBackend) sendOnce(h uintptr, data []byte) (int, error) {
	return posixSendOnce(int(h), data)
}

func (b *kqueueBackend) recvOnce(h uintptr, buf []byte) (int, error) {
	return posixRecvOnce(int(h), buf)
}

func (b *kqueueBackend) closeSocket(h uintptr) error {
	return posixCloseSocket(int(h))
}

func (b *kqueueBackend) socketError(h uintptr) error {
	return posixSocketError(int(h))
}

func (b *kqueueBackend) isWouldBlock(err error) bool  { return posixIsWouldBlock(err) }
func (b *kqueueBackend) isInterrupted(err error) bool { return posixIsInterrupted(err) }
func (b *kqueueBackend) isAcceptExhausted(err error) bool {
	return posixIsWouldBlock(err) || err == unix.ECONNABORTED
}
