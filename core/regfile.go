package core

import (
	"sort"

	"eval_fpgaio/util"
)

type regKind int

const (
	REG_PLAIN regKind = iota // read/write storage
	REG_PULSE                // read/write storage with self clearing bits
	REG_LIVE                 // read only, computed on read
	REG_FIFO_POP             // read pops a byte
	REG_FIFO_PUSH            // write pushes a byte, reads as zero
)

type regDef struct {
	name  string
	kind  regKind
	mask  uint32 // writable bits
	pulse uint32 // self clearing bits, REG_PULSE only
	reset uint32
	queue Queue
	live  func(c *Core) uint32
}

func (rd *regDef) readOnly() bool {
	return rd.kind == REG_LIVE || rd.kind == REG_FIFO_POP
}

var regTable = map[uint32]*regDef{
	REG_VERSION:     {name: "VERSION", kind: REG_LIVE, live: func(c *Core) uint32 { return c.cfg.VersionWord }},
	REG_BUILD_ID:    {name: "BUILD_ID", kind: REG_LIVE, live: func(c *Core) uint32 { return c.cfg.BuildId }},
	REG_CTRL:        {name: "CTRL", kind: REG_PULSE, mask: CTRL_MASK, pulse: CTRL_PULSES},
	REG_STAT:        {name: "STAT", kind: REG_LIVE, live: func(c *Core) uint32 { return 0 }},
	REG_BAUD:        {name: "BAUD_REG", kind: REG_PLAIN, mask: BAUD_MASK},
	REG_WORK_TIME:   {name: "WORK_TIME", kind: REG_PLAIN, mask: WORK_TIME_MASK, reset: 1},
	REG_ERR_COUNTER: {name: "ERR_COUNTER", kind: REG_LIVE, live: func(c *Core) uint32 { return c.errCounter }},

	REG_CMD_RX_FIFO: {name: "CMD_RX_FIFO", kind: REG_FIFO_POP, queue: QUEUE_CMD_RX},
	REG_CMD_TX_FIFO: {name: "CMD_TX_FIFO", kind: REG_FIFO_PUSH, queue: QUEUE_CMD_TX},
	REG_CMD_CTRL: {name: "CMD_CTRL_REG", kind: REG_PULSE, mask: FIFO_CTRL_RST_TX | FIFO_CTRL_RST_RX | FIFO_CTRL_IRQ_EN,
		pulse: FIFO_CTRL_PULSES, reset: FIFO_CTRL_IRQ_EN},
	REG_CMD_STAT: {name: "CMD_STAT_REG", kind: REG_LIVE, live: func(c *Core) uint32 {
		return c.rxStat(QUEUE_CMD_RX) | c.txStat(QUEUE_CMD_TX) | c.pendStat(IRQ_CMD_RX)
	}},

	REG_WORK_RX_FIFO: {name: "WORK_RX_FIFO", kind: REG_FIFO_POP, queue: QUEUE_WORK_RX},
	REG_WORK_RX_CTRL: {name: "WORK_RX_CTRL_REG", kind: REG_PULSE, mask: FIFO_CTRL_RST_RX | FIFO_CTRL_IRQ_EN,
		pulse: FIFO_CTRL_RST_RX, reset: FIFO_CTRL_IRQ_EN},
	REG_WORK_RX_STAT: {name: "WORK_RX_STAT_REG", kind: REG_LIVE, live: func(c *Core) uint32 {
		return c.rxStat(QUEUE_WORK_RX) | c.pendStat(IRQ_WORK_RX)
	}},

	REG_WORK_TX_FIFO: {name: "WORK_TX_FIFO", kind: REG_FIFO_PUSH, queue: QUEUE_WORK_TX},
	REG_WORK_TX_CTRL: {name: "WORK_TX_CTRL_REG", kind: REG_PULSE, mask: FIFO_CTRL_RST_TX | FIFO_CTRL_IRQ_EN,
		pulse: FIFO_CTRL_RST_TX, reset: FIFO_CTRL_IRQ_EN},
	REG_WORK_TX_STAT: {name: "WORK_TX_STAT_REG", kind: REG_LIVE, live: func(c *Core) uint32 {
		return c.txStat(QUEUE_WORK_TX) | c.pendStat(IRQ_WORK_TX)
	}},
	REG_WORK_TX_IRQ_THR: {name: "WORK_TX_IRQ_THR", kind: REG_PLAIN, mask: IRQ_THR_MASK},
	REG_WORK_TX_LAST_ID: {name: "WORK_TX_LAST_ID", kind: REG_LIVE, live: func(c *Core) uint32 { return c.lastId }},
}

func (c *Core) rxStat(q Queue) uint32 {
	var v uint32
	if c.queues[q].Empty() {
		v |= STAT_RX_EMPTY
	}
	if c.queues[q].Full() {
		v |= STAT_RX_FULL
	}
	return v
}

func (c *Core) txStat(q Queue) uint32 {
	var v uint32
	if c.queues[q].Empty() {
		v |= STAT_TX_EMPTY
	}
	if c.queues[q].Full() {
		v |= STAT_TX_FULL
	}
	return v
}

func (c *Core) pendStat(l IRQLine) uint32 {
	if c.irqConditions()[l] {
		return STAT_IRQ_PEND
	}
	return 0
}

func (c *Core) resetRegs() {
	for i := range c.regs {
		c.regs[i] = 0
	}
	for addr, rd := range regTable {
		if rd.kind == REG_PLAIN || rd.kind == REG_PULSE {
			c.regs[addr/4] = rd.reset
		}
	}
}

// readReg performs the register side of a bus read.
func (c *Core) readReg(addr uint32) (uint32, Resp) {
	if addr&3 != 0 {
		return 0, RESP_SLVERR
	}
	rd, ok := regTable[addr]
	if !ok {
		return 0, RESP_DECERR
	}
	switch rd.kind {
	case REG_LIVE:
		return rd.live(c), RESP_OKAY
	case REG_FIFO_POP:
		b, _ := c.queues[rd.queue].Pop()
		return uint32(b), RESP_OKAY
	case REG_FIFO_PUSH:
		return 0, RESP_OKAY
	default:
		return c.regs[addr/4], RESP_OKAY
	}
}

// writeReg performs the register side of a bus write.
func (c *Core) writeReg(addr, data uint32, strobe uint8) Resp {
	if addr&3 != 0 {
		return RESP_SLVERR
	}
	rd, ok := regTable[addr]
	if !ok {
		return RESP_DECERR
	}
	if rd.readOnly() {
		return RESP_OKAY
	}
	if rd.kind == REG_FIFO_PUSH {
		if strobe&1 == 0 {
			return RESP_OKAY
		}
		if !c.queues[rd.queue].Push(byte(data)) {
			c.stats.TxDrops++
		}
		return RESP_OKAY
	}
	c.regs[addr/4] = util.MergeByteLanes(c.regs[addr/4], data, strobe) & rd.mask
	return RESP_OKAY
}

// RegisterNames maps every register name to its offset.
func RegisterNames() map[string]uint32 {
	names := make(map[string]uint32, len(regTable))
	for addr, rd := range regTable {
		names[rd.name] = addr
	}
	return names
}

// RegisterName returns the name of the register at addr, or "" for unmapped offsets.
func RegisterName(addr uint32) string {
	if rd, ok := regTable[addr]; ok {
		return rd.name
	}
	return ""
}

// RegisterOffsets lists every mapped offset in ascending order.
func RegisterOffsets() []uint32 {
	offs := make([]uint32, 0, len(regTable))
	for addr := range regTable {
		offs = append(offs, addr)
	}
	sort.Slice(offs, func(i, j int) bool { return offs[i] < offs[j] })
	return offs
}

// Readable reports whether reading addr has no side effect.
func Readable(addr uint32) bool {
	rd, ok := regTable[addr]
	return ok && rd.kind != REG_FIFO_POP
}

// PulseMask returns the self clearing bits of the register at addr.
func PulseMask(addr uint32) uint32 {
	if rd, ok := regTable[addr]; ok {
		return rd.pulse
	}
	return 0
}
