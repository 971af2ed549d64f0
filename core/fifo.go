package core

// Fifo is a bounded byte queue with one producer and one consumer.
// Occupancy never exceeds the capacity fixed at construction.
type Fifo struct {
	buf   []byte
	head  int
	count int
}

func NewFifo(capacity int) *Fifo {
	if capacity < 1 {
		capacity = 1
	}
	return &Fifo{buf: make([]byte, capacity)}
}

// Push appends b and reports false without storing it when the queue is full.
func (ff *Fifo) Push(b byte) bool {
	if ff.count == len(ff.buf) {
		return false
	}
	ff.buf[(ff.head+ff.count)%len(ff.buf)] = b
	ff.count++
	return true
}

func (ff *Fifo) Pop() (byte, bool) {
	if ff.count == 0 {
		return 0, false
	}
	b := ff.buf[ff.head]
	ff.head = (ff.head + 1) % len(ff.buf)
	ff.count--
	return b, true
}

func (ff *Fifo) Peek() (byte, bool) {
	if ff.count == 0 {
		return 0, false
	}
	return ff.buf[ff.head], true
}

func (ff *Fifo) Len() int    { return ff.count }
func (ff *Fifo) Cap() int    { return len(ff.buf) }
func (ff *Fifo) Empty() bool { return ff.count == 0 }
func (ff *Fifo) Full() bool  { return ff.count == len(ff.buf) }

func (ff *Fifo) Clear() {
	ff.head = 0
	ff.count = 0
}
