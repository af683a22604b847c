// Package coxnet is a single-threaded, non-blocking TCP reactor: one
// multiplexer per OS family (epoll on Linux, kqueue on Darwin, IOCP on
// Windows) driving a connection table through a shared accept/read/write
// state machine. It is a building block for application-level servers and
// clients, not an application protocol itself.
//
// A Reactor is driven by repeatedly calling Poll from a single goroutine;
// no callback is ever invoked concurrently with another for the same
// Reactor.
package coxnet
