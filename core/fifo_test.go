package core

import "testing"

func TestFifoBounds(t *testing.T) {
	ff := NewFifo(4)
	if !ff.Empty() || ff.Full() || ff.Len() != 0 {
		t.Fatalf("new fifo: empty=%v full=%v len=%d", ff.Empty(), ff.Full(), ff.Len())
	}
	for i := 0; i < 4; i++ {
		if !ff.Push(byte(i)) {
			t.Fatalf("push %d rejected", i)
		}
	}
	if !ff.Full() || ff.Len() != ff.Cap() {
		t.Fatalf("expected full, len %d cap %d", ff.Len(), ff.Cap())
	}
	if ff.Push(0xff) {
		t.Fatalf("push into full fifo accepted")
	}
	if ff.Len() != 4 {
		t.Fatalf("len %d after rejected push", ff.Len())
	}
	for i := 0; i < 4; i++ {
		b, ok := ff.Pop()
		if !ok || b != byte(i) {
			t.Fatalf("pop %d: got %d %v", i, b, ok)
		}
	}
	if _, ok := ff.Pop(); ok || !ff.Empty() {
		t.Fatalf("pop from empty fifo succeeded")
	}
}

func TestFifoWrapAndClear(t *testing.T) {
	ff := NewFifo(3)
	next := byte(0)
	expect := byte(0)
	for round := 0; round < 10; round++ {
		ff.Push(next)
		next++
		ff.Push(next)
		next++
		for i := 0; i < 2; i++ {
			b, _ := ff.Pop()
			if b != expect {
				t.Fatalf("round %d: got %d, expected %d", round, b, expect)
			}
			expect++
		}
	}
	ff.Push(1)
	ff.Push(2)
	ff.Clear()
	if !ff.Empty() || ff.Len() != 0 {
		t.Fatalf("clear left %d bytes", ff.Len())
	}
	if _, ok := ff.Peek(); ok {
		t.Fatalf("peek on cleared fifo")
	}
}
