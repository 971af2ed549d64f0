package irqout

import (
	"fmt"

	"gobot.io/x/gobot/sysfs"

	"eval_fpgaio/core"
	"eval_fpgaio/log"
)

// SysfsSink drives legacy /sys/class/gpio pins.
type SysfsSink struct {
	pins [core.NUM_IRQ]sysfs.DigitalPinner
}

// NewSysfsSink exports pins[i] as the output for IRQ line i. Negative numbers are skipped.
func NewSysfsSink(pins [core.NUM_IRQ]int) (*SysfsSink, error) {
	ss := &SysfsSink{}
	for i, n := range pins {
		if n < 0 {
			continue
		}
		p := sysfs.NewDigitalPin(n)
		if err := p.Export(); err != nil {
			ss.Close()
			return nil, fmt.Errorf("export gpio%d: %w", n, err)
		}
		ss.pins[i] = p
		if err := p.Direction(sysfs.OUT); err != nil {
			ss.Close()
			return nil, fmt.Errorf("gpio%d direction: %w", n, err)
		}
		if err := p.Write(sysfs.LOW); err != nil {
			ss.Close()
			return nil, fmt.Errorf("gpio%d: %w", n, err)
		}
	}
	return ss, nil
}

func (ss *SysfsSink) SetIRQ(line core.IRQLine, level bool) {
	p := ss.pins[line]
	if p == nil {
		return
	}
	v := sysfs.LOW
	if level {
		v = sysfs.HIGH
	}
	if err := p.Write(v); err != nil {
		log.Errorf("irq %s: %v", line, err)
	}
}

func (ss *SysfsSink) Close() error {
	var first error
	for i, p := range ss.pins {
		if p == nil {
			continue
		}
		if err := p.Unexport(); err != nil && first == nil {
			first = err
		}
		ss.pins[i] = nil
	}
	return first
}
