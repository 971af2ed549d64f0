// Package line puts the simulated serial link on real GPIO pins through periph.io.
package line

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"eval_fpgaio/log"
)

// PinLink drives the core output onto tx and samples the core input from rx.
// It satisfies sim.Link.
type PinLink struct {
	tx   gpio.PinOut
	rx   gpio.PinIn
	last gpio.Level
	// Toggles counts level changes written to tx.
	Toggles uint64
}

func NewPinLink(tx gpio.PinOut, rx gpio.PinIn) (*PinLink, error) {
	if err := rx.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("rx pin %v: %w", rx, err)
	}
	if err := tx.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("tx pin %v: %w", tx, err)
	}
	return &PinLink{tx: tx, rx: rx, last: gpio.High}, nil
}

// OpenPinLink resolves pins by name, for example "GPIO17".
func OpenPinLink(txName, rxName string) (*PinLink, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	tx := gpioreg.ByName(txName)
	if tx == nil {
		return nil, fmt.Errorf("no pin named %s", txName)
	}
	rx := gpioreg.ByName(rxName)
	if rx == nil {
		return nil, fmt.Errorf("no pin named %s", rxName)
	}
	log.Infof("Serial link on pins tx=%s rx=%s", tx, rx)
	return NewPinLink(tx, rx)
}

func (pl *PinLink) Step(txLevel bool) bool {
	if l := gpio.Level(txLevel); l != pl.last {
		if err := pl.tx.Out(l); err != nil {
			log.Errorf("tx pin %v: %v", pl.tx, err)
		} else {
			pl.last = l
			pl.Toggles++
		}
	}
	return bool(pl.rx.Read())
}

// Idle reports an idle (high) input line.
func (pl *PinLink) Idle() bool {
	return bool(pl.rx.Read())
}
