package core

import "testing"

func TestBaudGenPeriod(t *testing.T) {
	for _, div := range []uint32{0, 1, 5, BAUD_MASK} {
		var bg BaudGen
		bg.Latch(div)
		var ticks []int
		for cycle := 0; cycle < int(div+1)*4; cycle++ {
			if bg.Step() {
				ticks = append(ticks, cycle)
			}
		}
		if len(ticks) != 4 {
			t.Fatalf("divisor %d: %d ticks in %d cycles", div, len(ticks), (div+1)*4)
		}
		for i := 1; i < len(ticks); i++ {
			if got := ticks[i] - ticks[i-1]; got != int(div+1) {
				t.Fatalf("divisor %d: period %d, expected %d", div, got, div+1)
			}
		}
	}
}

func TestBaudGenLatchMasks(t *testing.T) {
	var bg BaudGen
	bg.Latch(0x1234)
	if bg.Divisor() != 0x234 {
		t.Fatalf("divisor %#x, expected 0x234", bg.Divisor())
	}
}
