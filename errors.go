package coxnet

import "errors"

// Sentinel errors covering the invalid-input and orderly-close taxonomy
// from the error handling design. Fatal I/O errors are reported to
// callbacks as the underlying syscall.Errno (wrapped with fmt.Errorf's
// %w where a backend needs to add context), not as one of these
// sentinels.
var (
	// ErrInvalidAddress is returned by Connect when the address argument
	// is not a parseable IPv4 or IPv6 literal. Listen reports the same
	// condition by returning false.
	ErrInvalidAddress = errors.New("coxnet: invalid address literal")

	// ErrStackMismatch names the case where the address family implied
	// by a Listen literal does not match the requested StackMode. Listen
	// reports it by returning false.
	ErrStackMismatch = errors.New("coxnet: address family does not match stack mode")

	// ErrAlreadyListening names the case where the Reactor already owns
	// a Listener. Listen reports it by returning false; no function
	// returns this value.
	ErrAlreadyListening = errors.New("coxnet: reactor already has a listener")

	// ErrConnectionClosed names an operation on a connection that is no
	// longer valid. Write reports it by returning writeSentinel; no
	// function returns this value.
	ErrConnectionClosed = errors.New("coxnet: operation on invalid connection")

	// ErrConnectTimeout is returned by Connect when the underlying
	// socket does not become writable within the configured connect
	// timeout.
	ErrConnectTimeout = errors.New("coxnet: connect timed out waiting for writability")

	// ErrPeerClosed is the error reported to an on-close callback when
	// the peer closed the connection in an orderly way (a zero-length
	// receive), as distinct from a user-initiated close (reported as a
	// nil error) or a fatal I/O error (reported as the underlying OS
	// error).
	ErrPeerClosed = errors.New("coxnet: peer closed the connection")

	// ErrShutdown is returned by Connect once RequestShutdown has been
	// called or Shut has run. Listen reports the same condition by
	// returning false.
	ErrShutdown = errors.New("coxnet: reactor is shut down")

	// ErrUnsupportedPlatform is returned by New on platforms with no
	// multiplexer backend.
	ErrUnsupportedPlatform = errors.New("coxnet: unsupported platform")
)

// writeSentinel is Write's fatal-error return value: -1 means the
// connection was invalid or a fatal error closed it during the call.
const writeSentinel = -1
