package core

import (
	"eval_fpgaio/log"
	"eval_fpgaio/util"
)

type IRQLine int

const (
	IRQ_WORK_TX IRQLine = iota
	IRQ_WORK_RX
	IRQ_CMD_RX
	NUM_IRQ
)

var irqNames = [NUM_IRQ]string{"work-tx", "work-rx", "cmd-rx"}

func (l IRQLine) String() string {
	if l < 0 || l >= NUM_IRQ {
		return "irq?"
	}
	return irqNames[l]
}

func ParseIRQLine(s string) (IRQLine, bool) {
	for i, n := range irqNames {
		if n == s {
			return IRQLine(i), true
		}
	}
	return 0, false
}

// IRQLines holds the level of every interrupt output.
type IRQLines [NUM_IRQ]bool

func (ll IRQLines) Any() bool {
	for _, v := range ll {
		if v {
			return true
		}
	}
	return false
}

// IRQSink receives level changes of the interrupt outputs.
type IRQSink interface {
	SetIRQ(line IRQLine, level bool)
}

// irqConditions returns the raw (ungated) interrupt conditions.
func (c *Core) irqConditions() IRQLines {
	var cond IRQLines
	thr := c.regs[REG_WORK_TX_IRQ_THR/4] & IRQ_THR_MASK
	cond[IRQ_WORK_TX] = uint32(c.queues[QUEUE_WORK_TX].Len()) < thr
	cond[IRQ_WORK_RX] = !c.queues[QUEUE_WORK_RX].Empty()
	cond[IRQ_CMD_RX] = !c.queues[QUEUE_CMD_RX].Empty()
	return cond
}

var irqCtrlReg = [NUM_IRQ]uint32{REG_WORK_TX_CTRL, REG_WORK_RX_CTRL, REG_CMD_CTRL}

func (c *Core) updateIRQ() {
	cond := c.irqConditions()
	global := c.regs[REG_CTRL/4]&CTRL_IRQ_EN != 0
	for l := IRQLine(0); l < NUM_IRQ; l++ {
		level := global && c.regs[irqCtrlReg[l]/4]&FIFO_CTRL_IRQ_EN != 0 && cond[l]
		if level == c.irq[l] {
			continue
		}
		c.irq[l] = level
		if c.sink != nil {
			c.sink.SetIRQ(l, level)
		}
	}
}

// fault bumps the saturating error counter.
func (c *Core) fault(kind string) {
	c.errCounter = util.SaturatingInc(c.errCounter)
	log.Debugf("cycle %d: %s fault, error counter %d", c.cycle, kind, c.errCounter)
	switch kind {
	case FAULT_FRAMING:
		c.stats.FramingFaults++
	case FAULT_OVERRUN:
		c.stats.OverrunFaults++
	}
}

const (
	FAULT_FRAMING = "framing"
	FAULT_OVERRUN = "overrun"
)
