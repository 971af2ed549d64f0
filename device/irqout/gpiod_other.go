//go:build !linux
// +build !linux

package irqout

import (
	"errors"

	"eval_fpgaio/core"
)

var ErrUnsupported = errors.New("gpio character device not supported on this platform")

type GpiodSink struct{}

func NewGpiodSink(chip string, offsets [core.NUM_IRQ]int) (*GpiodSink, error) {
	return nil, ErrUnsupported
}

func (gs *GpiodSink) SetIRQ(line core.IRQLine, level bool) {}

func (gs *GpiodSink) Close() error { return nil }
