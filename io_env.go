//go:build !windows

package coxnet

import "time"

// initEnv/shutdownEnv are the process-wide socket-environment
// initializer pair the design notes call for (mirroring
// _examples/original_source/coxnet/socket.h's init_socket_env /
// shut_socket_env). POSIX needs no such step; only Windows's winsock
// does, see io_env_windows.go.
func initEnv()     {}
func shutdownEnv() {}

func sleepDrain(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
