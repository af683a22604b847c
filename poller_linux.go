//go:build linux

package coxnet

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollBackend is the Linux readiness backend, grounded on
// _examples/momentics-hioload-ws/reactor/reactor_linux.go's epoll usage
// and _examples/original_source/coxnet/poller_linux.h's event loop and
// accept/connect/read/write routines.
type epollBackend struct {
	epfd       int
	events     []unix.EpollEvent
	listenerFd int
}

func newBackend(maxEvents int) (backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	if maxEvents <= 0 {
		maxEvents = 64
	}
	return &epollBackend{
		epfd:       epfd,
		events:     make([]unix.EpollEvent, maxEvents),
		listenerFd: -1,
	}, nil
}

func (b *epollBackend) pollOnce(d dispatcher, timeoutMs int) error {
	n, err := unix.EpollWait(b.epfd, b.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}

	for i := 0; i < n; i++ {
		ev := b.events[i]
		fd := int(ev.Fd)

		readable := ev.Events&(unix.EPOLLIN|unix.EPOLLPRI) != 0
		writable := ev.Events&unix.EPOLLOUT != 0
		errFlag := ev.Events&unix.EPOLLERR != 0
		hangup := ev.Events&unix.EPOLLHUP != 0
		peerHangup := ev.Events&unix.EPOLLRDHUP != 0

		if fd == b.listenerFd {
			d.onListenerEvent(readable, errFlag)
			continue
		}
		d.onConnEvent(uintptr(fd), readable, writable, errFlag, hangup, peerHangup)
	}

	return nil
}

func (b *epollBackend) registerListener(h uintptr, l *Listener) error {
	fd := int(h)
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: int32(fd)}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}
	b.listenerFd = fd
	return nil
}

func (b *epollBackend) registerConn(h uintptr, c *Connection) error {
	fd := int(h)
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLET, Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (b *epollBackend) armWrite(h uintptr) error {
	fd := int(h)
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLOUT | unix.EPOLLET, Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (b *epollBackend) unarmWrite(h uintptr) error {
	fd := int(h)
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLET, Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (b *epollBackend) unregister(h uintptr) error {
	fd := int(h)
	if fd == b.listenerFd {
		b.listenerFd = -1
	}
	err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (b *epollBackend) closeMultiplexer() error {
	return unix.Close(b.epfd)
}

func (b *epollBackend) createListenSocket(fam ipFamily, addr string, port uint16, dualStack bool, backlog int) (uintptr, error) {
	fd, err := posixCreateListenSocket(fam, addr, port, dualStack, backlog)
	if err != nil {
		return invalidHandle, err
	}
	return uintptr(fd), nil
}

func (b *epollBackend) connectSocket(fam ipFamily, addr string, port uint16) (uintptr, error) {
	fd, err := posixConnectSocket(fam, addr, port)
	if err != nil {
		return invalidHandle, err
	}
	return uintptr(fd), nil
}

func (b *epollBackend) connectWait(h uintptr, timeout time.Duration) error {
	return posixConnectWait(int(h), timeout)
}

func (b *epollBackend) acceptOne(listenerHandle uintptr) (uintptr, string, uint16, error) {
	fd, sa, err := unix.Accept4(int(listenerHandle), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return invalidHandle, "", 0, err
	}

	ip, port := peerFromSockaddr(sa)
	return uintptr(fd), ip, port, nil
}

func (b *epollBackend) sendOnce(h uintptr, data []byte) (int, error) {
	return posixSendOnce(int(h), data)
}

func (b *epollBackend) recvOnce(h uintptr, buf []byte) (int, error) {
	return posixRecvOnce(int(h), buf)
}

func (b *epollBackend) closeSocket(h uintptr) error {
	return posixCloseSocket(int(h))
}

func (b *epollBackend) socketError(h uintptr) error {
	return posixSocketError(int(h))
}

func (b *epollBackend) isWouldBlock(err error) bool    { return posixIsWouldBlock(err) }
func (b *epollBackend) isInterrupted(err error) bool   { return posixIsInterrupted(err) }
func (b *epollBackend) isAcceptExhausted(err error) bool { return posixIsWouldBlock(err) }
