package coxnet

import "github.com/eapache/queue"

// cleaner is the deferred-destruction set described by the design: a
// de-duplicated collection of native handles scheduled for teardown,
// drained once per poll cycle. De-duplication is the map; the queue
// gives drain a stable, insertion-order traversal, a strictly stronger
// guarantee than an unordered set would provide, and one that falls
// out naturally of using an ordered queue as the backing store; it
// makes close-callback ordering deterministic and testable across
// connections that close within the same poll cycle.
type cleaner struct {
	pending *queue.Queue
	member  map[uintptr]struct{}
}

func newCleaner() *cleaner {
	return &cleaner{
		pending: queue.New(),
		member:  make(map[uintptr]struct{}),
	}
}

// push registers h for teardown, a no-op if h is already pending.
func (c *cleaner) push(h uintptr) {
	if _, ok := c.member[h]; ok {
		return
	}
	c.member[h] = struct{}{}
	c.pending.Add(h)
}

// drain invokes handler exactly once for every handle pending at the
// moment drain was called, then removes them. Handles pushed by a
// handler invocation (re-entrant inserts) are not visited by this call;
// they surface on the next drain.
func (c *cleaner) drain(handler func(h uintptr)) {
	n := c.pending.Length()
	for i := 0; i < n; i++ {
		h := c.pending.Remove().(uintptr)
		delete(c.member, h)
		handler(h)
	}
}

func (c *cleaner) len() int { return c.pending.Length() }
