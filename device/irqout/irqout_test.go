package irqout

import (
	"errors"
	"testing"

	"gobot.io/x/gobot/sysfs"

	"eval_fpgaio/core"
)

type recorder struct {
	levels core.IRQLines
	calls  int
	err    error
	closed bool
}

func (r *recorder) SetIRQ(line core.IRQLine, level bool) {
	r.levels[line] = level
	r.calls++
}

func (r *recorder) Close() error {
	r.closed = true
	return r.err
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	ms := NewMultiSink(a, LogSink{})
	ms.SetIRQ(core.IRQ_WORK_RX, true)
	ms.Add(b)
	if !b.levels[core.IRQ_WORK_RX] {
		t.Fatalf("late sink missed asserted line")
	}
	ms.SetIRQ(core.IRQ_WORK_RX, false)
	ms.SetIRQ(core.IRQ_CMD_RX, true)
	if a.calls != 3 || b.calls != 3 {
		t.Fatalf("calls %d/%d, expected 3/3", a.calls, b.calls)
	}
	if st := ms.State(); st[core.IRQ_WORK_RX] || !st[core.IRQ_CMD_RX] {
		t.Fatalf("state %v", st)
	}
}

func TestMultiSinkClose(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recorder{err: boom}, &recorder{}
	ms := NewMultiSink(a, b)
	if err := ms.Close(); err != boom {
		t.Fatalf("got %v, expected %v", err, boom)
	}
	if !a.closed || !b.closed {
		t.Fatalf("not every sink closed")
	}
}

func TestMultiSinkFromCore(t *testing.T) {
	r := &recorder{}
	c := core.New(core.DefaultConfig())
	c.SetIRQSink(NewMultiSink(r))
	c.WriteReg(core.REG_CMD_TX_FIFO, 0x11)
	c.WriteReg(core.REG_CTRL, core.CTRL_ENABLE|core.CTRL_IRQ_EN)
	for i := 0; i < 1000 && !r.levels[core.IRQ_CMD_RX]; i++ {
		c.SetRxLine(c.TxLine())
		c.Tick()
	}
	if !r.levels[core.IRQ_CMD_RX] {
		t.Fatalf("cmd-rx irq never forwarded")
	}
}

func TestSysfsSink(t *testing.T) {
	fs := sysfs.NewMockFilesystem([]string{
		"/sys/class/gpio/export",
		"/sys/class/gpio/unexport",
		"/sys/class/gpio/gpio10/value",
		"/sys/class/gpio/gpio10/direction",
	})
	sysfs.SetFilesystem(fs)
	defer sysfs.SetFilesystem(&sysfs.NativeFilesystem{})

	ss, err := NewSysfsSink([core.NUM_IRQ]int{-1, 10, -1})
	if err != nil {
		t.Fatal(err)
	}
	if got := fs.Files["/sys/class/gpio/gpio10/direction"].Contents; got != "out" {
		t.Fatalf("direction %q", got)
	}
	ss.SetIRQ(core.IRQ_WORK_RX, true)
	if got := fs.Files["/sys/class/gpio/gpio10/value"].Contents; got != "1" {
		t.Fatalf("value %q, expected 1", got)
	}
	ss.SetIRQ(core.IRQ_WORK_TX, true)
	ss.SetIRQ(core.IRQ_WORK_RX, false)
	if got := fs.Files["/sys/class/gpio/gpio10/value"].Contents; got != "0" {
		t.Fatalf("value %q, expected 0", got)
	}
	if err := ss.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSysfsSinkMissingPin(t *testing.T) {
	sysfs.SetFilesystem(sysfs.NewMockFilesystem([]string{"/sys/class/gpio/export"}))
	defer sysfs.SetFilesystem(&sysfs.NativeFilesystem{})
	if _, err := NewSysfsSink([core.NUM_IRQ]int{7, -1, -1}); err == nil {
		t.Fatalf("expected error for missing gpio7")
	}
}
