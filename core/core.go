// Package core models the hash-chain I/O block cycle by cycle: one serial
// link shared by a command and a work channel, byte FIFOs behind a register
// file, and level interrupts on FIFO occupancy.
package core

import (
	"eval_fpgaio/log"
	"eval_fpgaio/version"
)

type Queue int

const (
	QUEUE_CMD_RX Queue = iota
	QUEUE_CMD_TX
	QUEUE_WORK_RX
	QUEUE_WORK_TX
	NUM_QUEUE
)

var queueNames = [NUM_QUEUE]string{"cmd-rx", "cmd-tx", "work-rx", "work-tx"}

func (q Queue) String() string {
	if q < 0 || q >= NUM_QUEUE {
		return "queue?"
	}
	return queueNames[q]
}

const (
	CMD_FIFO_DEPTH     = 16
	WORK_RX_FIFO_DEPTH = 512
	WORK_TX_FIFO_DEPTH = 2048
)

type Config struct {
	CmdRxDepth   int
	CmdTxDepth   int
	WorkRxDepth  int
	WorkTxDepth  int
	RespFrameLen int
	VersionWord  uint32
	BuildId      uint32
}

func DefaultConfig() Config {
	return Config{
		CmdRxDepth:   CMD_FIFO_DEPTH,
		CmdTxDepth:   CMD_FIFO_DEPTH,
		WorkRxDepth:  WORK_RX_FIFO_DEPTH,
		WorkTxDepth:  WORK_TX_FIFO_DEPTH,
		RespFrameLen: RESP_FRAME_LEN,
		VersionWord:  version.VersionWord(),
		BuildId:      version.BuildID(),
	}
}

// Stats are model side counters. They are not visible through the register map.
type Stats struct {
	Cycles        uint64
	TxBytes       uint64
	RxBytes       uint64
	WorkItems     uint64
	FramingFaults uint64
	OverrunFaults uint64
	TxDrops       uint64
}

// Core is the whole I/O block in a single clock domain. It is not safe for
// concurrent use; every state change happens inside Tick.
type Core struct {
	cfg    Config
	regs   [REG_BLOCK_SIZE / 4]uint32
	queues [NUM_QUEUE]*Fifo

	baud BaudGen
	tx   *Transmitter
	rx   *Receiver
	sync *Synchronizer
	bus  BusAdapter
	rxIn bool

	errCounter uint32
	lastId     uint32
	workLeft   int
	workDelay  uint32
	txLastByte bool
	frame      []byte

	irq   IRQLines
	sink  IRQSink
	cycle uint64
	stats Stats
}

func New(cfg Config) *Core {
	if cfg.RespFrameLen < 1 || cfg.RespFrameLen > RESP_FRAME_MAX_LEN {
		cfg.RespFrameLen = RESP_FRAME_LEN
	}
	c := &Core{
		cfg:  cfg,
		tx:   NewTransmitter(),
		rx:   NewReceiver(),
		sync: NewSynchronizer(),
	}
	c.queues[QUEUE_CMD_RX] = NewFifo(cfg.CmdRxDepth)
	c.queues[QUEUE_CMD_TX] = NewFifo(cfg.CmdTxDepth)
	c.queues[QUEUE_WORK_RX] = NewFifo(cfg.WorkRxDepth)
	c.queues[QUEUE_WORK_TX] = NewFifo(cfg.WorkTxDepth)
	c.frame = make([]byte, 0, cfg.RespFrameLen)
	c.Reset()
	return c
}

// Reset returns every register and engine to its power-on state.
// The attached IRQ sink is notified of lines that drop.
func (c *Core) Reset() {
	c.resetRegs()
	for _, q := range c.queues {
		q.Clear()
	}
	c.baud.Reset()
	c.tx.Reset()
	c.rx.Reset()
	c.sync.Reset()
	c.bus.reset()
	c.rxIn = true
	c.errCounter = 0
	c.lastId = 0
	c.workLeft = 0
	c.workDelay = WORK_TIME_MASK
	c.txLastByte = false
	c.frame = c.frame[:0]
	c.updateIRQ()
}

func (c *Core) Config() Config {
	return c.cfg
}

func (c *Core) SetIRQSink(sink IRQSink) {
	c.sink = sink
}

func (c *Core) IRQ() IRQLines {
	return c.irq
}

func (c *Core) Bus() *BusAdapter {
	return &c.bus
}

// TxLine is the level the core drives on the serial output.
func (c *Core) TxLine() bool {
	return c.tx.Line()
}

// SetRxLine sets the asynchronous serial input sampled by the next Tick.
func (c *Core) SetRxLine(level bool) {
	c.rxIn = level
}

func (c *Core) Cycle() uint64 {
	return c.cycle
}

func (c *Core) Stats() Stats {
	s := c.stats
	s.Cycles = c.cycle
	return s
}

func (c *Core) QueueLen(q Queue) int {
	return c.queues[q].Len()
}

func (c *Core) QueueCap(q Queue) int {
	return c.queues[q].Cap()
}

func (c *Core) ctrl() uint32 {
	return c.regs[REG_CTRL/4]
}

func (c *Core) enabled() bool {
	return c.ctrl()&CTRL_ENABLE != 0
}

// Idle reports that further ticks cannot change any state until the bus or the serial input does.
func (c *Core) Idle() bool {
	if c.bus.ready() || c.pulsesPending() {
		return false
	}
	if !c.tx.Idle() || !c.rx.Idle() || !c.sync.Settled() || c.sync.Out() != c.rxIn {
		return false
	}
	if !c.tx.Ready() {
		return false
	}
	if c.enabled() {
		if c.workLeft > 0 || c.queues[QUEUE_WORK_TX].Len() >= c.workItemLen() {
			return false
		}
		if !c.queues[QUEUE_CMD_TX].Empty() {
			return false
		}
	}
	return true
}

func (c *Core) pulsesPending() bool {
	return c.regs[REG_CTRL/4]&CTRL_PULSES != 0 ||
		c.regs[REG_CMD_CTRL/4]&FIFO_CTRL_PULSES != 0 ||
		c.regs[REG_WORK_RX_CTRL/4]&FIFO_CTRL_RST_RX != 0 ||
		c.regs[REG_WORK_TX_CTRL/4]&FIFO_CTRL_RST_TX != 0
}

// Tick advances the core by one base clock cycle.
func (c *Core) Tick() {
	c.ackPulses()
	c.stepBus()

	if c.tx.Idle() {
		c.baud.Latch(c.regs[REG_BAUD/4])
	}
	tick := c.baud.Step()
	in := c.sync.Step(c.rxIn)

	if c.tx.Step(tick) {
		c.stats.TxBytes++
		if c.txLastByte {
			c.txLastByte = false
			c.lastId = (c.lastId + 1) & LAST_ID_MASK
			c.stats.WorkItems++
		}
	}
	c.arbitrate()

	if c.enabled() {
		if b, valid, frameErr := c.rx.Step(tick, in); valid {
			c.stats.RxBytes++
			if frameErr {
				c.fault(FAULT_FRAMING)
			}
			c.route(b)
		}
	} else {
		c.rx.Reset()
	}

	if c.workDelay < WORK_TIME_MASK {
		c.workDelay++
	}
	c.updateIRQ()
	c.cycle++
}

// ackPulses applies the effects of self clearing bits written during the previous cycle and clears them.
func (c *Core) ackPulses() {
	ctrl := c.regs[REG_CTRL/4]
	if ctrl&CTRL_PULSES != 0 {
		if ctrl&CTRL_ERR_CNT_CLEAR != 0 {
			c.errCounter = 0
		}
		if ctrl&CTRL_RST_CMD != 0 {
			c.resetQueue(QUEUE_CMD_RX)
			c.resetQueue(QUEUE_CMD_TX)
		}
		if ctrl&CTRL_RST_WORK_RX != 0 {
			c.resetQueue(QUEUE_WORK_RX)
		}
		if ctrl&CTRL_RST_WORK_TX != 0 {
			c.resetQueue(QUEUE_WORK_TX)
		}
		c.regs[REG_CTRL/4] &^= CTRL_PULSES
	}

	if v := c.regs[REG_CMD_CTRL/4]; v&FIFO_CTRL_PULSES != 0 {
		if v&FIFO_CTRL_RST_TX != 0 {
			c.resetQueue(QUEUE_CMD_TX)
		}
		if v&FIFO_CTRL_RST_RX != 0 {
			c.resetQueue(QUEUE_CMD_RX)
		}
		c.regs[REG_CMD_CTRL/4] &^= FIFO_CTRL_PULSES
	}
	if v := c.regs[REG_WORK_RX_CTRL/4]; v&FIFO_CTRL_RST_RX != 0 {
		c.resetQueue(QUEUE_WORK_RX)
		c.regs[REG_WORK_RX_CTRL/4] &^= FIFO_CTRL_RST_RX
	}
	if v := c.regs[REG_WORK_TX_CTRL/4]; v&FIFO_CTRL_RST_TX != 0 {
		c.resetQueue(QUEUE_WORK_TX)
		c.regs[REG_WORK_TX_CTRL/4] &^= FIFO_CTRL_RST_TX
	}
}

// resetQueue empties one queue. A byte already handed to the transmitter still completes.
func (c *Core) resetQueue(q Queue) {
	log.Debugf("cycle %d: reset %s queue (%d bytes)", c.cycle, q, c.queues[q].Len())
	c.queues[q].Clear()
	switch q {
	case QUEUE_WORK_TX:
		c.workLeft = 0
	case QUEUE_WORK_RX:
		c.frame = c.frame[:0]
	}
}

// workItemLen is the number of queued bytes needed to start a work item.
func (c *Core) workItemLen() int {
	n := WorkItemBytes(MidstateCount(c.ctrl() >> CTRL_MIDSTATE_SHIFT))
	if cp := c.queues[QUEUE_WORK_TX].Cap(); n > cp {
		return cp
	}
	return n
}

// arbitrate hands the next byte to the transmitter. A work item in progress is
// never interleaved, otherwise commands go first. A new work item starts only
// once all of its bytes are queued and WORK_TIME cycles have passed since the
// previous item start, so a partly written item never holds up commands.
func (c *Core) arbitrate() {
	if !c.enabled() || !c.tx.Ready() {
		return
	}
	work := c.queues[QUEUE_WORK_TX]
	if c.workLeft == 0 {
		if b, ok := c.queues[QUEUE_CMD_TX].Pop(); ok {
			c.tx.Load(b)
			c.txLastByte = false
			return
		}
		workTime := c.regs[REG_WORK_TIME/4] & WORK_TIME_MASK
		need := c.workItemLen()
		if work.Len() < need || c.workDelay < workTime {
			return
		}
		c.workDelay = 0
		c.workLeft = need
	}
	if b, ok := work.Pop(); ok {
		c.tx.Load(b)
		c.workLeft--
		c.txLastByte = c.workLeft == 0
	}
}

// route delivers a received byte according to CTRL.RX_MODE.
func (c *Core) route(b byte) {
	switch (c.ctrl() & CTRL_RX_MODE_MASK) >> CTRL_RX_MODE_SHIFT {
	case RX_MODE_WORK:
		c.deliver(QUEUE_WORK_RX, b)
	case RX_MODE_FRAMED:
		c.frame = append(c.frame, b)
		if len(c.frame) < c.cfg.RespFrameLen {
			return
		}
		q := QUEUE_WORK_RX
		if c.frame[len(c.frame)-1]&RESP_CMD_FLAG != 0 {
			q = QUEUE_CMD_RX
		}
		for _, fb := range c.frame {
			c.deliver(q, fb)
		}
		c.frame = c.frame[:0]
	default:
		c.deliver(QUEUE_CMD_RX, b)
	}
}

func (c *Core) deliver(q Queue, b byte) {
	if !c.queues[q].Push(b) {
		c.fault(FAULT_OVERRUN)
	}
}

// ReadReg issues a read and advances one cycle to complete it.
func (c *Core) ReadReg(addr uint32) (uint32, Resp) {
	if !c.bus.Issue(Request{Addr: addr, AddrValid: true}) {
		return 0, RESP_BUSY
	}
	c.Tick()
	resp, _ := c.bus.Take()
	return resp.Data, resp.Resp
}

// WriteReg issues a full word write and advances one cycle to complete it.
func (c *Core) WriteReg(addr, data uint32) Resp {
	return c.WriteRegStrobe(addr, data, STROBE_ALL)
}

func (c *Core) WriteRegStrobe(addr, data uint32, strobe uint8) Resp {
	req := Request{Write: true, Addr: addr, AddrValid: true, Data: data, DataValid: true, Strobe: strobe}
	if !c.bus.Issue(req) {
		return RESP_BUSY
	}
	c.Tick()
	resp, _ := c.bus.Take()
	return resp.Resp
}

// Peek reads a register without side effects and without advancing the clock.
// FIFO proxies read as zero.
func (c *Core) Peek(addr uint32) uint32 {
	if !Readable(addr) || addr&3 != 0 {
		return 0
	}
	v, _ := c.readReg(addr)
	return v
}
