//go:build windows

package coxnet

import (
	"net"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// iocpBackend is the Windows completion backend. The IOCP plumbing
// (CreateIoCompletionPort, GetQueuedCompletionStatus, Overlapped,
// per-key callback lookup) is grounded directly on
// _examples/momentics-hioload-ws/reactor/iocp_reactor.go, kept on the
// stdlib syscall package the way that file is written. The listening
// socket has no AcceptEx posted against it; instead it is switched to
// non-blocking mode with ioctlsocket(FIONBIO) and polled once per
// cycle, the same non-blocking-accept idiom the POSIX backends use.
// Writes never go through IOCP: per the completion backend's own
// design, Write always issues an ordinary non-blocking send and only
// spools to the per-connection write buffer on WSAEWOULDBLOCK.
type iocpBackend struct {
	iocp           syscall.Handle
	listenerHandle syscall.Handle
	hasListener    bool

	connsByHandle map[syscall.Handle]*connCtx
	connsByKey    map[uint32]*connCtx
	keyCounter    uint32
}

type connCtx struct {
	handle       syscall.Handle
	key          uint32
	conn         *Connection
	overlapped   syscall.Overlapped
	recvBuf      []byte
	writePending bool
}

var (
	modws2_32        = windows.NewLazySystemDLL("ws2_32.dll")
	procIoctlsocket  = modws2_32.NewProc("ioctlsocket")
)

const fionbio = 0x8004667E

func setSocketNonblocking(fd syscall.Handle, nonblocking bool) error {
	var mode uint32
	if nonblocking {
		mode = 1
	}
	r1, _, e1 := procIoctlsocket.Call(uintptr(fd), uintptr(fionbio), uintptr(unsafe.Pointer(&mode)))
	if r1 != 0 {
		return e1
	}
	return nil
}

func newBackend(maxEvents int) (backend, error) {
	iocp, err := syscall.CreateIoCompletionPort(syscall.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	return &iocpBackend{
		iocp:          iocp,
		connsByHandle: make(map[syscall.Handle]*connCtx),
		connsByKey:    make(map[uint32]*connCtx),
	}, nil
}

func (b *iocpBackend) pollOnce(d dispatcher, timeoutMs int) error {
	if b.hasListener {
		d.onListenerEvent(true, false)
	}

	for {
		var bytes uint32
		var key uint32
		var overlapped *syscall.Overlapped

		err := syscall.GetQueuedCompletionStatus(b.iocp, &bytes, &key, &overlapped, 0)
		if overlapped == nil {
			break
		}

		ctx, ok := b.connsByKey[key]
		if !ok {
			continue
		}

		if err != nil {
			d.onCompletionData(ctx.conn, err)
			continue
		}
		if bytes == 0 {
			d.onCompletionData(ctx.conn, ErrPeerClosed)
			continue
		}

		ctx.conn.readBuf.append(ctx.recvBuf[:bytes])
		d.onCompletionData(ctx.conn, nil)
		if ctx.conn.IsValid() {
			_ = b.postRecv(ctx)
		}
	}

	for h, ctx := range b.connsByHandle {
		if ctx.writePending {
			d.onConnEvent(uintptr(h), false, true, false, false, false)
		}
	}

	return nil
}

func (b *iocpBackend) postRecv(ctx *connCtx) error {
	if len(ctx.recvBuf) == 0 {
		ctx.recvBuf = make([]byte, 4096)
	}
	ctx.overlapped = syscall.Overlapped{}

	buf := syscall.WSABuf{Len: uint32(len(ctx.recvBuf)), Buf: &ctx.recvBuf[0]}
	var flags, done uint32
	err := syscall.WSARecv(ctx.handle, &buf, 1, &done, &flags, &ctx.overlapped, nil)
	if err != nil && err != syscall.ERROR_IO_PENDING {
		return err
	}
	return nil
}

func (b *iocpBackend) registerListener(h uintptr, l *Listener) error {
	b.listenerHandle = syscall.Handle(h)
	b.hasListener = true
	return nil
}

func (b *iocpBackend) registerConn(h uintptr, c *Connection) error {
	handle := syscall.Handle(h)
	key := atomic.AddUint32(&b.keyCounter, 1)

	if _, err := syscall.CreateIoCompletionPort(handle, b.iocp, key, 0); err != nil {
		return err
	}

	ctx := &connCtx{handle: handle, key: key, conn: c, recvBuf: make([]byte, 4096)}
	b.connsByHandle[handle] = ctx
	b.connsByKey[key] = ctx
	return b.postRecv(ctx)
}

func (b *iocpBackend) armWrite(h uintptr) error {
	if ctx, ok := b.connsByHandle[syscall.Handle(h)]; ok {
		ctx.writePending = true
	}
	return nil
}

func (b *iocpBackend) unarmWrite(h uintptr) error {
	if ctx, ok := b.connsByHandle[syscall.Handle(h)]; ok {
		ctx.writePending = false
	}
	return nil
}

func (b *iocpBackend) unregister(h uintptr) error {
	handle := syscall.Handle(h)
	if handle == b.listenerHandle {
		b.hasListener = false
	}
	if ctx, ok := b.connsByHandle[handle]; ok {
		delete(b.connsByKey, ctx.key)
		delete(b.connsByHandle, handle)
	}
	return nil
}

func (b *iocpBackend) closeMultiplexer() error {
	return syscall.CloseHandle(b.iocp)
}

func (b *iocpBackend) createListenSocket(fam ipFamily, addr string, port uint16, dualStack bool, backlog int) (uintptr, error) {
	af := syscall.AF_INET
	if fam == familyV6 {
		af = syscall.AF_INET6
	}

	fd, err := syscall.Socket(af, syscall.SOCK_STREAM, syscall.IPPROTO_TCP)
	if err != nil {
		return invalidHandle, err
	}

	_ = syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)

	if af == syscall.AF_INET6 && dualStack {
		const ipv6V6Only = 27
		_ = syscall.SetsockoptInt(fd, syscall.IPPROTO_IPV6, ipv6V6Only, 0)
	}

	sa, err := sockaddrFor(af, addr, port)
	if err != nil {
		syscall.Closesocket(fd)
		return invalidHandle, err
	}
	if err := syscall.Bind(fd, sa); err != nil {
		syscall.Closesocket(fd)
		return invalidHandle, err
	}

	bl := backlog
	if bl <= 0 {
		bl = syscall.SOMAXCONN
	}
	if err := syscall.Listen(fd, bl); err != nil {
		syscall.Closesocket(fd)
		return invalidHandle, err
	}
	if err := setSocketNonblocking(fd, true); err != nil {
		syscall.Closesocket(fd)
		return invalidHandle, err
	}

	return uintptr(fd), nil
}

func (b *iocpBackend) connectSocket(fam ipFamily, addr string, port uint16) (uintptr, error) {
	af := syscall.AF_INET
	if fam == familyV6 {
		af = syscall.AF_INET6
	}

	fd, err := syscall.Socket(af, syscall.SOCK_STREAM, syscall.IPPROTO_TCP)
	if err != nil {
		return invalidHandle, err
	}
	if err := setSocketNonblocking(fd, true); err != nil {
		syscall.Closesocket(fd)
		return invalidHandle, err
	}

	sa, err := sockaddrFor(af, addr, port)
	if err != nil {
		syscall.Closesocket(fd)
		return invalidHandle, err
	}

	err = syscall.Connect(fd, sa)
	if err != nil && err != syscall.EWOULDBLOCK && err != syscall.Errno(syscall.WSAEWOULDBLOCK) {
		syscall.Closesocket(fd)
		return invalidHandle, err
	}

	return uintptr(fd), nil
}

// connectWait busy-polls SO_ERROR/getpeername since the stdlib syscall
// package exposes no select/WSAPoll equivalent on Windows; this is a
// deliberate simplification of the idiomatic readiness wait the POSIX
// backends use.
func (b *iocpBackend) connectWait(h uintptr, timeout time.Duration) error {
	handle := syscall.Handle(h)
	const step = 10 * time.Millisecond
	var elapsed time.Duration

	for {
		if err := b.socketError(h); err != nil {
			return err
		}
		if _, err := syscall.Getpeername(handle); err == nil {
			return nil
		}
		if elapsed >= timeout {
			return ErrConnectTimeout
		}
		time.Sleep(step)
		elapsed += step
	}
}

func sockaddrFor(af int, addr string, port uint16) (syscall.Sockaddr, error) {
	if af == syscall.AF_INET {
		b, ok := ipv4Bytes(addr)
		if !ok {
			return nil, ErrInvalidAddress
		}
		return &syscall.SockaddrInet4{Port: int(port), Addr: b}, nil
	}
	b, ok := ipv6Bytes(addr)
	if !ok {
		return nil, ErrInvalidAddress
	}
	return &syscall.SockaddrInet6{Port: int(port), Addr: b}, nil
}

func (b *iocpBackend) acceptOne(listenerHandle uintptr) (uintptr, string, uint16, error) {
	fd, err := syscall.Accept(syscall.Handle(listenerHandle))
	if err != nil {
		return invalidHandle, "", 0, err
	}
	if err := setSocketNonblocking(fd, true); err != nil {
		syscall.Closesocket(fd)
		return invalidHandle, "", 0, err
	}

	ip, port := "", uint16(0)
	if sa, err := syscall.Getpeername(fd); err == nil {
		ip, port = peerFromWindowsSockaddr(sa)
	}
	return uintptr(fd), ip, port, nil
}

func peerFromWindowsSockaddr(sa syscall.Sockaddr) (string, uint16) {
	switch a := sa.(type) {
	case *syscall.SockaddrInet4:
		return net.IP(a.Addr[:]).String(), uint16(a.Port)
	case *syscall.SockaddrInet6:
		return net.IP(a.Addr[:]).String(), uint16(a.Port)
	default:
		return "", 0
	}
}

func (b *iocpBackend) sendOnce(h uintptr, data []byte) (int, error) {
	n, err := syscall.Write(syscall.Handle(h), data)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (b *iocpBackend) recvOnce(h uintptr, buf []byte) (int, error) {
	n, err := syscall.Read(syscall.Handle(h), buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (b *iocpBackend) closeSocket(h uintptr) error {
	return syscall.Closesocket(syscall.Handle(h))
}

func (b *iocpBackend) socketError(h uintptr) error {
	errno, err := syscall.GetsockoptInt(syscall.Handle(h), syscall.SOL_SOCKET, syscall.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return syscall.Errno(errno)
}

func (b *iocpBackend) isWouldBlock(err error) bool {
	return err == syscall.EWOULDBLOCK || err == syscall.Errno(syscall.WSAEWOULDBLOCK)
}

func (b *iocpBackend) isInterrupted(err error) bool {
	return err == syscall.EINTR
}

func (b *iocpBackend) isAcceptExhausted(err error) bool {
	return b.isWouldBlock(err)
}
