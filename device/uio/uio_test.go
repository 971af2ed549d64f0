package uio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"eval_fpgaio/core"
)

// fakeUIO lays out sysfs names and backing files for one chain.
func fakeUIO(t *testing.T, idx int) {
	t.Helper()
	sysfs := t.TempDir()
	dev := t.TempDir()
	SysfsRoot, DevRoot = sysfs, dev
	t.Cleanup(func() { SysfsRoot, DevRoot = "/sys/class/uio", "/dev" })

	kinds := []string{"mem"}
	for l := core.IRQLine(0); l < core.NUM_IRQ; l++ {
		kinds = append(kinds, l.String())
	}
	for i, kind := range kinds {
		node := "uio" + string(rune('0'+i))
		if err := os.MkdirAll(filepath.Join(sysfs, node), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(sysfs, node, "name"), []byte(deviceName(idx, kind)+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dev, node), make([]byte, core.REG_BLOCK_SIZE), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFindByName(t *testing.T) {
	fakeUIO(t, 4)
	path, err := FindByName("chain4-work-tx")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "uio3" {
		t.Fatalf("found %s", path)
	}
	if _, err := FindByName("chain5-mem"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChainRegisterAccess(t *testing.T) {
	fakeUIO(t, 2)
	c, err := OpenChain(2)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Write32(core.REG_BAUD, 0x01020304); err != nil {
		t.Fatal(err)
	}
	v, err := c.Read32(core.REG_BAUD)
	if err != nil || v != 0x01020304 {
		t.Fatalf("read back %#x %v", v, err)
	}
	if _, err := c.Read32(core.REG_BAUD + 1); !errors.Is(err, ErrAccess) {
		t.Fatalf("misaligned access: %v", err)
	}
	if err := c.Write32(core.REG_BLOCK_SIZE, 1); !errors.Is(err, ErrAccess) {
		t.Fatalf("out of range access: %v", err)
	}
	if err := c.irqs[core.IRQ_CMD_RX].IRQEnable(); err != nil {
		t.Fatal(err)
	}
	memPath := c.mem.Path
	irqPath := c.irqs[core.IRQ_CMD_RX].Path
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(memPath)
	if err != nil {
		t.Fatal(err)
	}
	if raw[core.REG_BAUD] != 0x04 || raw[core.REG_BAUD+3] != 0x01 {
		t.Fatalf("mapping not shared: % x", raw[core.REG_BAUD:core.REG_BAUD+4])
	}
	raw, _ = os.ReadFile(irqPath)
	if raw[0] != 1 || raw[1] != 0 {
		t.Fatalf("irq enable wrote % x", raw[:4])
	}
}

func TestPollTimeouts(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 0},
		{-time.Millisecond, 0},
		{300 * time.Microsecond, 1},
		{time.Millisecond, 1},
		{1200 * time.Microsecond, 2},
		{IRQ_POLL_SLICE, 50},
	}
	for _, tt := range tests {
		if got := pollMillis(tt.in); got != tt.want {
			t.Errorf("pollMillis(%v) = %d, expected %d", tt.in, got, tt.want)
		}
	}

	if s, ok := pollSlice(context.Background()); !ok || s != IRQ_POLL_SLICE {
		t.Fatalf("no deadline: %v %v", s, ok)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Microsecond)
	defer cancel()
	if s, ok := pollSlice(ctx); ok && pollMillis(s) != 1 {
		t.Fatalf("sub-millisecond slice polls for %d ms", pollMillis(s))
	}
	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	if _, ok := pollSlice(expired); ok {
		t.Fatalf("slice returned after the deadline")
	}
}

func TestListMatchesFindByName(t *testing.T) {
	fakeUIO(t, 0)
	devs, err := List()
	if err != nil {
		t.Fatal(err)
	}
	if len(devs) != 1+int(core.NUM_IRQ) {
		t.Fatalf("listed %v", devs)
	}
	for name, path := range devs {
		got, err := FindByName(name)
		if err != nil || got != path {
			t.Fatalf("FindByName(%s) = %s %v, expected %s", name, got, err, path)
		}
	}
}
