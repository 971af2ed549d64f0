// Package uio accesses the I/O block of a real board through Linux UIO devices.
package uio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"eval_fpgaio/core"
	"eval_fpgaio/log"
	"eval_fpgaio/regbus"
)

var (
	SysfsRoot = "/sys/class/uio"
	DevRoot   = "/dev"
)

var (
	ErrNotFound  = errors.New("uio device not found")
	ErrNotMapped = errors.New("uio device not mapped")
	ErrAccess    = errors.New("register access out of range")
)

const IRQ_POLL_SLICE = 50 * time.Millisecond

type Device struct {
	Name string
	Path string
	file *os.File
	mem  []byte
}

// List maps the sysfs name of every UIO device to its /dev node.
func List() (map[string]string, error) {
	entries, err := os.ReadDir(SysfsRoot)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		raw, err := os.ReadFile(filepath.Join(SysfsRoot, e.Name(), "name"))
		if err != nil {
			continue
		}
		out[strings.TrimSpace(string(raw))] = filepath.Join(DevRoot, e.Name())
	}
	return out, nil
}

// FindByName returns the /dev node of the UIO device whose sysfs name matches.
func FindByName(name string) (string, error) {
	devs, err := List()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotFound, name, err)
	}
	if path, ok := devs[name]; ok {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

func Open(name string) (*Device, error) {
	path, err := FindByName(name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0660)
	if err != nil {
		return nil, fmt.Errorf("error accessing device %v: %w", path, err)
	}
	return &Device{Name: name, Path: path, file: f}, nil
}

// Map maps the first size bytes of the device's register space.
func (d *Device) Map(size int) error {
	mem, err := unix.Mmap(int(d.file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap %s: %w", d.Path, err)
	}
	d.mem = mem
	return nil
}

func (d *Device) word(off uint32) (*uint32, error) {
	if d.mem == nil {
		return nil, ErrNotMapped
	}
	if off&3 != 0 || int(off)+4 > len(d.mem) {
		return nil, fmt.Errorf("%w: %s offset %#x", ErrAccess, d.Name, off)
	}
	return (*uint32)(unsafe.Pointer(&d.mem[off])), nil
}

func (d *Device) Read32(off uint32) (uint32, error) {
	p, err := d.word(off)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32(p), nil
}

func (d *Device) Write32(off, v uint32) error {
	p, err := d.word(off)
	if err != nil {
		return err
	}
	atomic.StoreUint32(p, v)
	return nil
}

// IRQEnable re-arms the interrupt, UIO masks it after every delivery.
func (d *Device) IRQEnable() error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], 1)
	_, err := d.file.Write(buf[:])
	return err
}

// pollMillis rounds a positive timeout up to whole milliseconds.
func pollMillis(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}

// pollSlice is the next wait of WaitIRQ, false once the deadline has passed.
func pollSlice(ctx context.Context) (time.Duration, bool) {
	slice := IRQ_POLL_SLICE
	if dl, ok := ctx.Deadline(); ok {
		left := time.Until(dl)
		if left <= 0 {
			return 0, false
		}
		if left < slice {
			slice = left
		}
	}
	return slice, true
}

// IRQWait waits up to timeout for an interrupt and reports whether one arrived.
func (d *Device) IRQWait(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(d.file.Fd()), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, pollMillis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, err
	}
	if n == 0 || fds[0].Revents&unix.POLLIN == 0 {
		return false, nil
	}
	// drain the interrupt count
	var buf [4]byte
	if _, err := d.file.Read(buf[:]); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Device) Close() error {
	if d.mem != nil {
		unix.Munmap(d.mem)
		d.mem = nil
	}
	return d.file.Close()
}

// Chain is one hash chain I/O block: a register mapping plus one UIO node per interrupt.
type Chain struct {
	Idx  int
	mem  *Device
	irqs [core.NUM_IRQ]*Device
}

func deviceName(idx int, kind string) string {
	return fmt.Sprintf("chain%d-%s", idx, kind)
}

func OpenChain(idx int) (*Chain, error) {
	c := &Chain{Idx: idx}
	mem, err := Open(deviceName(idx, "mem"))
	if err != nil {
		return nil, err
	}
	if err := mem.Map(core.REG_BLOCK_SIZE); err != nil {
		mem.Close()
		return nil, err
	}
	c.mem = mem
	for l := core.IRQLine(0); l < core.NUM_IRQ; l++ {
		d, err := Open(deviceName(idx, l.String()))
		if err != nil {
			c.Close()
			return nil, err
		}
		c.irqs[l] = d
	}
	log.Infof("Chain %d: registers at %s", idx, mem.Path)
	return c, nil
}

func (c *Chain) Read32(addr uint32) (uint32, error) {
	return c.mem.Read32(addr)
}

func (c *Chain) Write32(addr, v uint32) error {
	return c.mem.Write32(addr, v)
}

func (c *Chain) WaitIRQ(ctx context.Context, line core.IRQLine) error {
	d := c.irqs[line]
	for {
		if err := d.IRQEnable(); err != nil {
			return err
		}
		slice, ok := pollSlice(ctx)
		if !ok {
			return regbus.ErrTimeout
		}
		ok, err := d.IRQWait(slice)
		if err != nil || ok {
			return err
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return regbus.ErrTimeout
			}
			return err
		}
	}
}

func (c *Chain) Close() error {
	var first error
	for i, d := range c.irqs {
		if d != nil {
			if err := d.Close(); err != nil && first == nil {
				first = err
			}
			c.irqs[i] = nil
		}
	}
	if c.mem != nil {
		if err := c.mem.Close(); err != nil && first == nil {
			first = err
		}
		c.mem = nil
	}
	return first
}

var _ regbus.Device = (*Chain)(nil)
