package coxnet

import "log"

// DiagFunc receives internal diagnostic output: recovered callback
// panics and backend setup/teardown failures that have no other way to
// reach the caller. It is never used for protocol-level events (those
// go through the on-data/on-close/on-listener-error callbacks).
type DiagFunc func(format string, args ...any)

var diag DiagFunc = func(format string, args ...any) {
	log.Printf(format, args...)
}

// SetDiagnosticsFunc overrides where internal diagnostics are written.
// Passing nil restores the default (log.Printf).
func SetDiagnosticsFunc(fn DiagFunc) {
	if fn == nil {
		fn = func(format string, args ...any) { log.Printf(format, args...) }
	}
	diag = fn
}

// recoverCallback runs fn and swallows any panic, reporting it through
// the diagnostics hook instead of letting it unwind into the Poll call
// that triggered it. One misbehaving user callback must not take down
// the event loop.
func recoverCallback(who string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			diag("coxnet: panic recovered in %s callback: %v", who, r)
		}
	}()
	fn()
}
