// Package regbus is the host side view of an I/O block: 32-bit register
// accesses plus waiting on its interrupt lines.
package regbus

import (
	"context"
	"errors"
	"fmt"

	"eval_fpgaio/core"
)

var (
	ErrBusResponse = errors.New("bus error response")
	ErrTimeout     = errors.New("timeout")
)

type Bus interface {
	Read32(addr uint32) (uint32, error)
	Write32(addr, value uint32) error
}

type IRQWaiter interface {
	// WaitIRQ blocks until line is asserted or ctx is done.
	WaitIRQ(ctx context.Context, line core.IRQLine) error
}

type Device interface {
	Bus
	IRQWaiter
}

// RespError wraps a non OKAY bus response.
func RespError(op string, addr uint32, resp core.Resp) error {
	if resp == core.RESP_OKAY {
		return nil
	}
	return fmt.Errorf("%w: %s %s(%#x): %v", ErrBusResponse, op, core.RegisterName(addr), addr, resp)
}

// SetBits performs a read modify write. Self clearing bits are never written back.
func SetBits(b Bus, addr, bits uint32) error {
	v, err := b.Read32(addr)
	if err != nil {
		return err
	}
	return b.Write32(addr, (v&^core.PulseMask(addr))|bits)
}

func ClearBits(b Bus, addr, bits uint32) error {
	v, err := b.Read32(addr)
	if err != nil {
		return err
	}
	return b.Write32(addr, v&^core.PulseMask(addr)&^bits)
}

// UpdateField replaces the bits selected by mask with value<<shift.
func UpdateField(b Bus, addr, mask uint32, shift uint, value uint32) error {
	v, err := b.Read32(addr)
	if err != nil {
		return err
	}
	v &^= core.PulseMask(addr) | mask
	return b.Write32(addr, v|(value<<shift)&mask)
}

// Dump reads every side effect free register.
func Dump(b Bus) (map[string]uint32, error) {
	out := make(map[string]uint32)
	for _, addr := range core.RegisterOffsets() {
		if !core.Readable(addr) {
			continue
		}
		v, err := b.Read32(addr)
		if err != nil {
			return nil, err
		}
		out[core.RegisterName(addr)] = v
	}
	return out, nil
}
