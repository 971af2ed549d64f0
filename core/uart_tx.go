package core

const (
	TX_IDLE = iota
	TX_START
	TX_DATA
	TX_STOP
)

// Transmitter serializes one byte at a time as 8N1, LSB first, idle high.
// Every bit lasts OVERSAMPLE baud ticks.
type Transmitter struct {
	state   int
	ticks   int
	bit     int
	shift   byte
	pending bool
	next    byte
	line    bool
}

func NewTransmitter() *Transmitter {
	return &Transmitter{line: true}
}

// Ready reports whether Load would be accepted.
func (tx *Transmitter) Ready() bool {
	return tx.state == TX_IDLE && !tx.pending
}

// Idle reports that no bit is on the wire. A loaded byte that has not started yet still counts as idle.
func (tx *Transmitter) Idle() bool {
	return tx.state == TX_IDLE
}

func (tx *Transmitter) Load(b byte) bool {
	if !tx.Ready() {
		return false
	}
	tx.next = b
	tx.pending = true
	return true
}

func (tx *Transmitter) Line() bool {
	return tx.line
}

// Step advances one base clock. It returns true for exactly one cycle, when the stop bit of a byte completes.
func (tx *Transmitter) Step(tick bool) bool {
	if !tick {
		return false
	}
	switch tx.state {
	case TX_IDLE:
		if tx.pending {
			tx.pending = false
			tx.shift = tx.next
			tx.state = TX_START
			tx.ticks = 0
			tx.line = false
		}
	case TX_START:
		tx.ticks++
		if tx.ticks == OVERSAMPLE {
			tx.ticks = 0
			tx.bit = 0
			tx.state = TX_DATA
			tx.line = tx.shift&1 != 0
		}
	case TX_DATA:
		tx.ticks++
		if tx.ticks == OVERSAMPLE {
			tx.ticks = 0
			tx.bit++
			if tx.bit == 8 {
				tx.state = TX_STOP
				tx.line = true
			} else {
				tx.line = (tx.shift>>tx.bit)&1 != 0
			}
		}
	case TX_STOP:
		tx.ticks++
		if tx.ticks == OVERSAMPLE {
			tx.ticks = 0
			tx.state = TX_IDLE
			return true
		}
	}
	return false
}

func (tx *Transmitter) Reset() {
	*tx = Transmitter{line: true}
}
