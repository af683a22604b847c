// Command coxecho is a minimal TCP echo server exercising Listen, Write,
// and Shut end to end. It runs the reactor's poll loop on the calling
// goroutine and exits on SIGINT/SIGTERM.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaoyuan1943/coxnet"
)

func main() {
	addr := flag.String("addr", "::", "listen address (an IPv6 literal for dual-stack)")
	port := flag.Uint("port", 9002, "listen port")
	flag.Parse()

	coxnet.SetDiagnosticsFunc(func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, "[coxecho] "+format+"\n", args...)
	})

	r, err := coxnet.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "new reactor: %v\n", err)
		os.Exit(1)
	}

	ok := r.Listen(*addr, uint16(*port), coxnet.DualStack,
		func(c *coxnet.Connection) {
			ip, port := c.RemoteAddr()
			fmt.Printf("accepted %s:%d\n", ip, port)
		},
		func(c *coxnet.Connection, data []byte) {
			c.Write(data)
		},
		func(c *coxnet.Connection, err error) {
			ip, port := c.RemoteAddr()
			fmt.Printf("closed %s:%d: %v\n", ip, port, err)
		},
	)
	if !ok {
		fmt.Fprintf(os.Stderr, "listen on %s:%d failed\n", *addr, *port)
		os.Exit(1)
	}
	r.SetListenErrorFunc(func(err error) {
		fmt.Fprintf(os.Stderr, "listener error: %v\n", err)
	})

	fmt.Printf("listening on %s:%d\n", *addr, *port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sig:
			r.RequestShutdown()
			r.Shut()
			return
		case <-ticker.C:
			r.Poll()
		}
	}
}
