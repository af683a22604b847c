package coxnet_test

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaoyuan1943/coxnet"
)

// runLoop drives r.Poll() on a ticker until stop is closed.
func runLoop(r *coxnet.Reactor, stop <-chan struct{}) {
	t := time.NewTicker(2 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			r.Poll()
		}
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition")
}

func TestEchoRoundTrip(t *testing.T) {
	srv, err := coxnet.New()
	if err != nil {
		t.Fatalf("New() server: %v", err)
	}
	cli, err := coxnet.New()
	if err != nil {
		t.Fatalf("New() client: %v", err)
	}

	ok := srv.Listen("127.0.0.1", 19021, coxnet.IPv4Only,
		func(c *coxnet.Connection) {},
		func(c *coxnet.Connection, data []byte) { c.Write(data) },
		func(c *coxnet.Connection, err error) {},
	)
	if !ok {
		t.Fatalf("Listen() = false")
	}

	stop := make(chan struct{})
	defer close(stop)
	go runLoop(srv, stop)
	go runLoop(cli, stop)

	var mu sync.Mutex
	var got []byte
	conn, err := cli.Connect("127.0.0.1", 19021,
		func(c *coxnet.Connection, data []byte) {
			mu.Lock()
			got = append(got, data...)
			mu.Unlock()
		},
		func(c *coxnet.Connection, err error) {},
	)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	conn.Write([]byte("ping"))

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return bytes.Equal(got, []byte("ping"))
	})
}

func TestListenInvalidThenValid(t *testing.T) {
	r, err := coxnet.New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer r.Shut()

	noop := func(c *coxnet.Connection) {}
	noopData := func(c *coxnet.Connection, d []byte) {}
	noopClose := func(c *coxnet.Connection, err error) {}

	if ok := r.Listen("not-an-address", 19022, coxnet.IPv4Only, noop, noopData, noopClose); ok {
		t.Fatalf("Listen() with invalid address = true, want false")
	}
	if ok := r.Listen("127.0.0.1", 19023, coxnet.IPv4Only, noop, noopData, noopClose); !ok {
		t.Fatalf("Listen() with valid address = false, want true")
	}
}

func TestShutdownDeliversExactlyOneCloseEach(t *testing.T) {
	srv, err := coxnet.New()
	if err != nil {
		t.Fatalf("New() server: %v", err)
	}

	var closeCount atomic.Int32
	ok := srv.Listen("127.0.0.1", 19024, coxnet.IPv4Only,
		func(c *coxnet.Connection) {},
		func(c *coxnet.Connection, data []byte) {},
		func(c *coxnet.Connection, err error) { closeCount.Add(1) },
	)
	if !ok {
		t.Fatalf("Listen() = false")
	}

	stop := make(chan struct{})
	go runLoop(srv, stop)

	clients := make([]*coxnet.Reactor, 0, 3)
	for i := 0; i < 3; i++ {
		cli, err := coxnet.New()
		if err != nil {
			t.Fatalf("New() client: %v", err)
		}
		if _, err := cli.Connect("127.0.0.1", 19024, func(*coxnet.Connection, []byte) {}, func(*coxnet.Connection, error) {}); err != nil {
			t.Fatalf("Connect() error: %v", err)
		}
		clients = append(clients, cli)
	}

	waitFor(t, 2*time.Second, func() bool { return true })
	time.Sleep(50 * time.Millisecond)

	close(stop)
	srv.RequestShutdown()
	srv.Shut()

	if got := closeCount.Load(); got != 3 {
		t.Fatalf("close callbacks fired %d times, want 3", got)
	}

	for _, c := range clients {
		c.Shut()
	}
}
