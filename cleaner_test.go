package coxnet

import "testing"

func TestCleanerDedup(t *testing.T) {
	c := newCleaner()
	c.push(1)
	c.push(1)
	c.push(2)

	if c.len() != 2 {
		t.Fatalf("len() = %d, want 2", c.len())
	}
}

func TestCleanerDrainOrderAndExhaustion(t *testing.T) {
	c := newCleaner()
	c.push(1)
	c.push(2)
	c.push(3)

	var seen []uintptr
	c.drain(func(h uintptr) { seen = append(seen, h) })

	want := []uintptr{1, 2, 3}
	if len(seen) != len(want) {
		t.Fatalf("drained %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("drained %v, want %v", seen, want)
		}
	}
	if c.len() != 0 {
		t.Fatalf("len() after drain = %d, want 0", c.len())
	}
}

func TestCleanerReentrantPushDeferredToNextDrain(t *testing.T) {
	c := newCleaner()
	c.push(1)
	c.push(2)

	var firstPass []uintptr
	c.drain(func(h uintptr) {
		firstPass = append(firstPass, h)
		if h == 1 {
			c.push(3)
		}
	})

	if len(firstPass) != 2 {
		t.Fatalf("first drain saw %v, want exactly the 2 originally pending", firstPass)
	}
	if c.len() != 1 {
		t.Fatalf("len() after first drain = %d, want 1 (the re-entrant push)", c.len())
	}

	var secondPass []uintptr
	c.drain(func(h uintptr) { secondPass = append(secondPass, h) })
	if len(secondPass) != 1 || secondPass[0] != 3 {
		t.Fatalf("second drain = %v, want [3]", secondPass)
	}
}
