//go:build linux
// +build linux

package irqout

import (
	"fmt"

	"github.com/warthog618/gpiod"

	"eval_fpgaio/core"
	"eval_fpgaio/log"
)

// GpiodSink drives one character-device GPIO line per interrupt.
type GpiodSink struct {
	chip  string
	lines [core.NUM_IRQ]*gpiod.Line
}

// NewGpiodSink requests offsets[i] on chip as the output for IRQ line i.
// A negative offset leaves that line unconnected.
func NewGpiodSink(chip string, offsets [core.NUM_IRQ]int) (*GpiodSink, error) {
	gs := &GpiodSink{chip: chip}
	for i, off := range offsets {
		if off < 0 {
			continue
		}
		l, err := gpiod.RequestLine(chip, off, gpiod.AsOutput(0), gpiod.WithConsumer("fpgaio-irq"))
		if err != nil {
			gs.Close()
			return nil, fmt.Errorf("%s line %d for %s: %w", chip, off, core.IRQLine(i), err)
		}
		gs.lines[i] = l
	}
	log.Infof("irq outputs on %s offsets %v", chip, offsets)
	return gs, nil
}

func (gs *GpiodSink) SetIRQ(line core.IRQLine, level bool) {
	l := gs.lines[line]
	if l == nil {
		return
	}
	v := 0
	if level {
		v = 1
	}
	if err := l.SetValue(v); err != nil {
		log.Errorf("%s irq %s: %v", gs.chip, line, err)
	}
}

func (gs *GpiodSink) Close() error {
	var first error
	for i, l := range gs.lines {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
		gs.lines[i] = nil
	}
	return first
}
