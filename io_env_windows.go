//go:build windows

package coxnet

import (
	"sync"
	"time"

	"golang.org/x/sys/windows"
)

var (
	envMu    sync.Mutex
	envCount int
)

// initEnv performs WSAStartup exactly once per process regardless of how
// many Reactors are constructed, mirroring
// _examples/original_source/coxnet/socket.h's init_socket_env, and
// shutdownEnv performs the matching WSACleanup only once the last
// Reactor using it has torn down.
func initEnv() {
	envMu.Lock()
	defer envMu.Unlock()
	if envCount == 0 {
		var data windows.WSAData
		_ = windows.WSAStartup(uint32(0x0202), &data)
	}
	envCount++
}

func shutdownEnv() {
	envMu.Lock()
	defer envMu.Unlock()
	if envCount == 0 {
		return
	}
	envCount--
	if envCount == 0 {
		_ = windows.WSACleanup()
	}
}

func sleepDrain(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
