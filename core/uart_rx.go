package core

const SYNC_STAGES = 3

// Synchronizer is a shift register that delays the asynchronous input by SYNC_STAGES cycles.
type Synchronizer struct {
	stages [SYNC_STAGES]bool
}

func NewSynchronizer() *Synchronizer {
	s := &Synchronizer{}
	s.Reset()
	return s
}

func (s *Synchronizer) Step(in bool) bool {
	for i := SYNC_STAGES - 1; i > 0; i-- {
		s.stages[i] = s.stages[i-1]
	}
	s.stages[0] = in
	return s.stages[SYNC_STAGES-1]
}

func (s *Synchronizer) Out() bool {
	return s.stages[SYNC_STAGES-1]
}

// Settled reports that every stage holds the same level.
func (s *Synchronizer) Settled() bool {
	for _, v := range s.stages {
		if v != s.stages[0] {
			return false
		}
	}
	return true
}

func (s *Synchronizer) Reset() {
	for i := range s.stages {
		s.stages[i] = true
	}
}

const (
	RX_IDLE = iota
	RX_START
	RX_DATA
	RX_STOP
)

// Receiver deserializes 8N1 frames from a synchronized line.
type Receiver struct {
	state int
	ticks int
	bit   int
	shift byte
	prev  bool
}

func NewReceiver() *Receiver {
	return &Receiver{prev: true}
}

func (rx *Receiver) Idle() bool {
	return rx.state == RX_IDLE
}

// Step advances one base clock. valid is set for one cycle when a stop bit has been sampled;
// frameErr reports a low stop bit, the byte is still returned.
func (rx *Receiver) Step(tick bool, in bool) (b byte, valid bool, frameErr bool) {
	if !tick {
		return 0, false, false
	}
	switch rx.state {
	case RX_IDLE:
		if rx.prev && !in {
			rx.state = RX_START
			rx.ticks = 0
		}
	case RX_START:
		rx.ticks++
		if rx.ticks == OVERSAMPLE/2 {
			rx.ticks = 0
			if in {
				// glitch
				rx.state = RX_IDLE
			} else {
				rx.state = RX_DATA
				rx.bit = 0
				rx.shift = 0
			}
		}
	case RX_DATA:
		rx.ticks++
		if rx.ticks == OVERSAMPLE {
			rx.ticks = 0
			rx.shift >>= 1
			if in {
				rx.shift |= 0x80
			}
			rx.bit++
			if rx.bit == 8 {
				rx.state = RX_STOP
			}
		}
	case RX_STOP:
		rx.ticks++
		if rx.ticks == OVERSAMPLE {
			rx.ticks = 0
			rx.state = RX_IDLE
			b, valid, frameErr = rx.shift, true, !in
		}
	}
	rx.prev = in
	return b, valid, frameErr
}

func (rx *Receiver) Reset() {
	*rx = Receiver{prev: true}
}
