//go:build linux || darwin

package coxnet

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// This file holds the socket-creation and raw-I/O primitives shared by
// the epoll (Linux) and kqueue (Darwin) backends. Only the
// multiplexer registration and event-sourcing logic differs between
// them; everything here is grounded on
// _examples/original_source/coxnet/poller_linux.h's listen/connect/
// _try_read/_try_write_when_io_event_coming, realized with
// golang.org/x/sys/unix the way
// _examples/momentics-hioload-ws/reactor/reactor_linux.go does.

func ipv4Bytes(addr string) (a [4]byte, ok bool) {
	ip := net.ParseIP(addr).To4()
	if ip == nil {
		return a, false
	}
	copy(a[:], ip)
	return a, true
}

func ipv6Bytes(addr string) (a [16]byte, ok bool) {
	ip := net.ParseIP(addr).To16()
	if ip == nil {
		return a, false
	}
	copy(a[:], ip)
	return a, true
}

func posixCreateListenSocket(fam ipFamily, addr string, port uint16, dualStack bool, backlog int) (int, error) {
	af := unix.AF_INET
	if fam == familyV6 {
		af = unix.AF_INET6
	}

	fd, err := unix.Socket(af, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}

	if af == unix.AF_INET6 {
		v6only := 1
		if dualStack {
			v6only = 0
		}
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, v6only); err != nil {
			unix.Close(fd)
			return -1, err
		}
	}

	var sa unix.Sockaddr
	if af == unix.AF_INET {
		b, ok := ipv4Bytes(addr)
		if !ok {
			unix.Close(fd)
			return -1, ErrInvalidAddress
		}
		sa = &unix.SockaddrInet4{Port: int(port), Addr: b}
	} else {
		b, ok := ipv6Bytes(addr)
		if !ok {
			unix.Close(fd)
			return -1, ErrInvalidAddress
		}
		sa = &unix.SockaddrInet6{Port: int(port), Addr: b}
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}

	bl := backlog
	if bl <= 0 {
		bl = unix.SOMAXCONN
	}
	if err := unix.Listen(fd, bl); err != nil {
		unix.Close(fd)
		return -1, err
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}

	return fd, nil
}

func posixConnectSocket(fam ipFamily, addr string, port uint16) (int, error) {
	af := unix.AF_INET
	if fam == familyV6 {
		af = unix.AF_INET6
	}

	fd, err := unix.Socket(af, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}

	var sa unix.Sockaddr
	if af == unix.AF_INET {
		b, ok := ipv4Bytes(addr)
		if !ok {
			unix.Close(fd)
			return -1, ErrInvalidAddress
		}
		sa = &unix.SockaddrInet4{Port: int(port), Addr: b}
	} else {
		b, ok := ipv6Bytes(addr)
		if !ok {
			unix.Close(fd)
			return -1, ErrInvalidAddress
		}
		sa = &unix.SockaddrInet6{Port: int(port), Addr: b}
	}

	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, err
	}

	return fd, nil
}

// posixConnectWait uses select(2) on the single fd to confirm a
// non-blocking connect completed within timeout, exactly per
// poller_linux.h's connect().
func posixConnectWait(fd int, timeout time.Duration) error {
	var wfds unix.FdSet
	fdSet(&wfds, fd)

	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	n, err := unix.Select(fd+1, nil, &wfds, nil, &tv)
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrConnectTimeout
	}

	if err := posixSocketError(fd); err != nil {
		return err
	}
	return nil
}

func fdSet(set *unix.FdSet, fd int) {
	idx := fd / 64
	bit := uint(fd % 64)
	set.Bits[idx] |= 1 << bit
}

func posixSendOnce(fd int, data []byte) (int, error) {
	n, err := unix.Write(fd, data)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func posixRecvOnce(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func posixCloseSocket(fd int) error {
	return unix.Close(fd)
}

func posixSocketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return fmt.Errorf("socket error: %w", unix.Errno(errno))
}

func posixIsWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

func posixIsInterrupted(err error) bool {
	return err == unix.EINTR
}

func ipv4String(b [4]byte) string {
	return net.IP(b[:]).String()
}

func ipv6String(b [16]byte) string {
	return net.IP(b[:]).String()
}

func peerFromSockaddr(sa unix.Sockaddr) (string, uint16) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return ipv4String(a.Addr), uint16(a.Port)
	case *unix.SockaddrInet6:
		return ipv6String(a.Addr), uint16(a.Port)
	default:
		return "", 0
	}
}
