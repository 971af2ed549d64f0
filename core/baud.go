package core

// BaudGen emits one oversampling tick every divisor+1 base clock cycles.
// The live divisor only changes through Latch.
type BaudGen struct {
	divisor uint32
	count   uint32
}

func (bg *BaudGen) Divisor() uint32 {
	return bg.divisor
}

// Latch loads a new divisor. The phase restarts only when the value changes.
func (bg *BaudGen) Latch(divisor uint32) {
	divisor &= BAUD_MASK
	if divisor != bg.divisor {
		bg.divisor = divisor
		bg.count = 0
	}
}

// Step advances one base clock and reports whether a tick is emitted.
func (bg *BaudGen) Step() bool {
	if bg.count >= bg.divisor {
		bg.count = 0
		return true
	}
	bg.count++
	return false
}

func (bg *BaudGen) Reset() {
	bg.divisor = 0
	bg.count = 0
}
