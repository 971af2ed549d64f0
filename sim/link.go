// Package sim runs the I/O core against a simulated serial peer and serves
// register transactions to concurrent host code.
package sim

import (
	"eval_fpgaio/core"
)

// Link is the far end of the serial line. Step receives the level driven by
// the core and returns the level on the core input for the same cycle.
type Link interface {
	Step(tx bool) bool
	// Idle reports that the link produces nothing unless the core transmits.
	Idle() bool
}

// Loopback wires the core output back to its input through a fixed delay.
type Loopback struct {
	delay []bool
	pos   int
}

func NewLoopback(delay int) *Loopback {
	if delay < 0 {
		delay = 0
	}
	lb := &Loopback{delay: make([]bool, delay)}
	for i := range lb.delay {
		lb.delay[i] = true
	}
	return lb
}

func (lb *Loopback) Step(tx bool) bool {
	if len(lb.delay) == 0 {
		return tx
	}
	out := lb.delay[lb.pos]
	lb.delay[lb.pos] = tx
	lb.pos = (lb.pos + 1) % len(lb.delay)
	return out
}

func (lb *Loopback) Idle() bool {
	for _, v := range lb.delay {
		if !v {
			return false
		}
	}
	return true
}

// Peer is the chip side endpoint of the link: an 8N1 transmitter and receiver
// running at their own divisor.
type Peer struct {
	baud  core.BaudGen
	tx    *core.Transmitter
	rx    *core.Receiver
	sync  *core.Synchronizer
	txq   []byte
	rxq   []byte
	echo  bool
	OnRx  func(b byte) []byte
	Stats PeerStats
}

type PeerStats struct {
	TxBytes     uint64
	RxBytes     uint64
	FrameErrors uint64
}

func NewPeer(divisor uint32) *Peer {
	p := &Peer{
		tx:   core.NewTransmitter(),
		rx:   core.NewReceiver(),
		sync: core.NewSynchronizer(),
	}
	p.baud.Latch(divisor)
	return p
}

// NewEchoPeer returns a peer that sends every received byte back.
func NewEchoPeer(divisor uint32) *Peer {
	p := NewPeer(divisor)
	p.echo = true
	return p
}

// SetDivisor changes the peer baud rate. It applies to the next byte in either direction.
func (p *Peer) SetDivisor(divisor uint32) {
	p.baud.Latch(divisor)
}

// Send queues bytes for transmission towards the core.
func (p *Peer) Send(b ...byte) {
	p.txq = append(p.txq, b...)
}

// Received drains bytes the peer has received from the core.
func (p *Peer) Received() []byte {
	out := p.rxq
	p.rxq = nil
	return out
}

func (p *Peer) Step(in bool) bool {
	tick := p.baud.Step()
	if p.tx.Step(tick) {
		p.Stats.TxBytes++
	}
	if p.tx.Ready() && len(p.txq) > 0 {
		p.tx.Load(p.txq[0])
		p.txq = p.txq[1:]
	}
	if b, valid, frameErr := p.rx.Step(tick, p.sync.Step(in)); valid {
		p.Stats.RxBytes++
		if frameErr {
			p.Stats.FrameErrors++
		}
		switch {
		case p.OnRx != nil:
			p.txq = append(p.txq, p.OnRx(b)...)
		case p.echo:
			p.txq = append(p.txq, b)
		default:
			p.rxq = append(p.rxq, b)
		}
	}
	return p.tx.Line()
}

func (p *Peer) Idle() bool {
	return p.tx.Idle() && p.tx.Ready() && len(p.txq) == 0 && p.rx.Idle() && p.sync.Settled()
}

// Board is a core with its serial link.
type Board struct {
	Core *core.Core
	Link Link
}

func NewBoard(c *core.Core, link Link) *Board {
	return &Board{Core: c, Link: link}
}

func (b *Board) Tick() {
	b.Core.SetRxLine(b.Link.Step(b.Core.TxLine()))
	b.Core.Tick()
}

func (b *Board) Idle() bool {
	return b.Core.Idle() && b.Link.Idle()
}
