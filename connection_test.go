package coxnet

import (
	"errors"
	"testing"
	"time"
)

type fakeBackend struct {
	sent        []byte
	blockAfter  int // sendOnce returns wouldBlock once sent reaches this many bytes; 0 disables
	armed       bool
	unregistered []uintptr
	closed       []uintptr
	fatalErr     error
}

var errFakeWouldBlock = errors.New("fake: would block")
var errFakeFatal = errors.New("fake: fatal")

func (f *fakeBackend) pollOnce(d dispatcher, timeoutMs int) error { return nil }
func (f *fakeBackend) registerListener(h uintptr, l *Listener) error { return nil }
func (f *fakeBackend) registerConn(h uintptr, c *Connection) error   { return nil }
func (f *fakeBackend) armWrite(h uintptr) error                     { f.armed = true; return nil }
func (f *fakeBackend) unarmWrite(h uintptr) error                   { f.armed = false; return nil }
func (f *fakeBackend) unregister(h uintptr) error {
	f.unregistered = append(f.unregistered, h)
	return nil
}
func (f *fakeBackend) closeMultiplexer() error { return nil }

func (f *fakeBackend) createListenSocket(fam ipFamily, addr string, port uint16, dualStack bool, backlog int) (uintptr, error) {
	return invalidHandle, errors.New("not used")
}
func (f *fakeBackend) connectSocket(fam ipFamily, addr string, port uint16) (uintptr, error) {
	return invalidHandle, errors.New("not used")
}
func (f *fakeBackend) connectWait(h uintptr, timeout time.Duration) error { return nil }
func (f *fakeBackend) acceptOne(listenerHandle uintptr) (uintptr, string, uint16, error) {
	return invalidHandle, "", 0, errors.New("not used")
}

func (f *fakeBackend) sendOnce(h uintptr, data []byte) (int, error) {
	if f.fatalErr != nil {
		return 0, f.fatalErr
	}
	if f.blockAfter > 0 && len(f.sent)+len(data) > f.blockAfter {
		allowed := f.blockAfter - len(f.sent)
		if allowed < 0 {
			allowed = 0
		}
		f.sent = append(f.sent, data[:allowed]...)
		return allowed, errFakeWouldBlock
	}
	f.sent = append(f.sent, data...)
	return len(data), nil
}

func (f *fakeBackend) recvOnce(h uintptr, buf []byte) (int, error) { return 0, nil }
func (f *fakeBackend) closeSocket(h uintptr) error {
	f.closed = append(f.closed, h)
	return nil
}
func (f *fakeBackend) socketError(h uintptr) error { return nil }

func (f *fakeBackend) isWouldBlock(err error) bool  { return err == errFakeWouldBlock }
func (f *fakeBackend) isInterrupted(err error) bool { return false }
func (f *fakeBackend) isAcceptExhausted(err error) bool { return false }

func newTestConnection(b backend) *Connection {
	cfg := DefaultConfig()
	return newConnection(1, "127.0.0.1", 1234, b, newCleaner(), &cfg)
}

func TestWriteFastPath(t *testing.T) {
	b := &fakeBackend{}
	c := newTestConnection(b)

	n := c.Write([]byte("hello"))
	if n != 5 {
		t.Fatalf("Write() = %d, want 5", n)
	}
	if string(b.sent) != "hello" {
		t.Fatalf("sent = %q, want %q", b.sent, "hello")
	}
	if c.writeBuf.unconsumed() != 0 {
		t.Fatalf("write buffer not empty after fast-path send")
	}
}

func TestWriteSpoolsOnWouldBlockAndArmsWrite(t *testing.T) {
	b := &fakeBackend{blockAfter: 2}
	c := newTestConnection(b)

	n := c.Write([]byte("hello"))
	if n != 5 {
		t.Fatalf("Write() = %d, want len(b)=5 even though spooled", n)
	}
	if !b.armed {
		t.Fatalf("armWrite was not called")
	}
	if c.writeBuf.unconsumed() != 3 {
		t.Fatalf("write buffer holds %d bytes, want 3 (the unsent remainder)", c.writeBuf.unconsumed())
	}
}

func TestWriteSlowPathAppendsWhenAlreadySpooled(t *testing.T) {
	b := &fakeBackend{blockAfter: 0}
	c := newTestConnection(b)
	c.writeBuf.append([]byte("queued"))

	n := c.Write([]byte("more"))
	if n != 4 {
		t.Fatalf("Write() = %d, want 4", n)
	}
	if string(b.sent) != "" {
		t.Fatalf("sendOnce should not have been called on the slow path, sent = %q", b.sent)
	}
	if c.writeBuf.unconsumed() != len("queuedmore") {
		t.Fatalf("write buffer = %d bytes, want %d", c.writeBuf.unconsumed(), len("queuedmore"))
	}
}

func TestWriteFatalErrorClosesAndReturnsSentinel(t *testing.T) {
	b := &fakeBackend{fatalErr: errFakeFatal}
	c := newTestConnection(b)

	n := c.Write([]byte("x"))
	if n != writeSentinel {
		t.Fatalf("Write() = %d, want writeSentinel", n)
	}
	if c.IsValid() {
		t.Fatalf("connection still valid after fatal write error")
	}
	if c.err != errFakeFatal {
		t.Fatalf("c.err = %v, want %v", c.err, errFakeFatal)
	}
	if len(b.closed) != 1 || b.closed[0] != 1 {
		t.Fatalf("closeSocket called with %v, want [1]", b.closed)
	}
}

func TestDrainWriteBufferClearsAndUnarms(t *testing.T) {
	b := &fakeBackend{}
	c := newTestConnection(b)
	c.writeBuf.append([]byte("spooled"))
	b.armed = true

	c.drainWriteBuffer()

	if string(b.sent) != "spooled" {
		t.Fatalf("sent = %q, want %q", b.sent, "spooled")
	}
	if c.writeBuf.unconsumed() != 0 {
		t.Fatalf("write buffer not drained")
	}
	if b.armed {
		t.Fatalf("unarmWrite was not called after full drain")
	}
}

func TestUserCloseIsIdempotentAndPushesOriginalHandle(t *testing.T) {
	b := &fakeBackend{}
	c := newTestConnection(b)

	c.UserClose()
	if c.IsValid() {
		t.Fatalf("connection still valid after UserClose")
	}
	if c.cleaner.len() != 1 {
		t.Fatalf("cleaner has %d pending, want 1", c.cleaner.len())
	}

	c.UserClose()
	if len(b.closed) != 1 {
		t.Fatalf("closeSocket called %d times, want 1 (idempotent)", len(b.closed))
	}

	var seen uintptr
	c.cleaner.drain(func(h uintptr) { seen = h })
	if seen != 1 {
		t.Fatalf("cleaner drained handle %d, want the original handle 1", seen)
	}
}
