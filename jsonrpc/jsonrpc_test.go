package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"eval_fpgaio/core"
	"eval_fpgaio/regbus"
	"eval_fpgaio/sim"
)

func startAPI(t *testing.T) (*RemoteBus, *sim.Actor) {
	t.Helper()
	a := sim.NewActor(sim.NewBoard(core.New(core.DefaultConfig()), sim.NewLoopback(0)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	<-a.Started()

	api := NewAPI(a)
	api.DeviceStatus = func() (interface{}, error) { return a.Snapshot() }
	s, err := NewServer("127.0.0.1:0", api.Handler(), true)
	if err != nil {
		t.Fatal(err)
	}
	go s.ListenAndServe()

	rb := NewRemoteBus(s.Addr().String())
	t.Cleanup(func() {
		rb.Close()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := s.Shutdown(sctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
		cancel()
		<-done
	})
	return rb, a
}

func TestRemoteReadWrite(t *testing.T) {
	rb, a := startAPI(t)
	if err := rb.Write32(core.REG_BAUD, 0x123); err != nil {
		t.Fatal(err)
	}
	v, err := rb.Read32(core.REG_BAUD)
	if err != nil || v != 0x123 {
		t.Fatalf("got %#x %v, expected 0x123", v, err)
	}
	var rv RegValue
	if err := rb.Call(CMD_READ, RegParam{Reg: "BAUD_REG"}, &rv); err != nil || rv.Hex != "00000123" {
		t.Fatalf("read %+v %v", rv, err)
	}
	if err := rb.WriteStrobe(core.REG_WORK_TIME, 0xAABBCC, 0x2); err != nil {
		t.Fatal(err)
	}
	v, _ = a.Read32(core.REG_WORK_TIME)
	if v != 0xBB01 {
		t.Fatalf("WORK_TIME %#x, expected 0xbb01", v)
	}
}

func TestRemoteBusErrors(t *testing.T) {
	rb, _ := startAPI(t)
	if _, err := rb.Read32(0x20); !errors.Is(err, regbus.ErrBusResponse) {
		t.Fatalf("unmapped read: %v", err)
	}
	if err := rb.Write32(0x42, 1); !errors.Is(err, regbus.ErrBusResponse) {
		t.Fatalf("misaligned write: %v", err)
	}
	err := rb.Call("reboot", nil, nil)
	if !errors.Is(err, ErrRemote) || !strings.Contains(err.Error(), "14") {
		t.Fatalf("unknown command: %v", err)
	}
	err = rb.Call(CMD_READ, RegParam{Reg: "NOPE"}, nil)
	if !errors.Is(err, ErrRemote) {
		t.Fatalf("unknown register: %v", err)
	}
}

func TestRemoteIRQ(t *testing.T) {
	rb, _ := startAPI(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	err := rb.WaitIRQ(ctx, core.IRQ_CMD_RX)
	cancel()
	if !errors.Is(err, regbus.ErrTimeout) {
		t.Fatalf("got %v, expected timeout", err)
	}

	if err := regbus.SetBits(rb, core.REG_CTRL, core.CTRL_ENABLE|core.CTRL_IRQ_EN); err != nil {
		t.Fatal(err)
	}
	if err := rb.Write32(core.REG_CMD_TX_FIFO, 0x3C); err != nil {
		t.Fatal(err)
	}
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rb.WaitIRQ(ctx, core.IRQ_CMD_RX); err != nil {
		t.Fatal(err)
	}
	var rv RegValue
	if err := rb.Call(CMD_READ, RegParam{Reg: "cmd_rx_fifo"}, &rv); err != nil {
		t.Fatal(err)
	}
	if rv.Value != 0x3C || rv.Addr != core.REG_CMD_RX_FIFO {
		t.Fatalf("read %+v", rv)
	}
}

func TestRemoteInfo(t *testing.T) {
	rb, _ := startAPI(t)
	v, err := rb.Version()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(v.IOVersion, "1.0.0") || v.Software.Version == "" {
		t.Fatalf("version %+v", v)
	}
	regs, err := rb.Dump()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for i, r := range regs {
		if i > 0 && regs[i-1].Addr >= r.Addr {
			t.Fatalf("dump not sorted at %d", i)
		}
		if r.Name == "WORK_TIME" && r.Value == 1 {
			found = true
		}
		if r.Name == "CMD_RX_FIFO" {
			t.Fatalf("dump popped a fifo")
		}
	}
	if !found {
		t.Fatalf("WORK_TIME missing from dump %+v", regs)
	}
	st, err := rb.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.Requests < 2 || st.Device == nil {
		t.Fatalf("status %+v", st)
	}
}

func TestMalformedRequest(t *testing.T) {
	rb, _ := startAPI(t)
	buf, err := rb.client.SendAndReceive([]byte("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	var resp APIResponse
	if err := json.Unmarshal(buf, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != STATUS_ERROR || resp.Code != CODE_INVALID_COMMAND {
		t.Fatalf("response %+v", resp)
	}
}

func TestClientReconnects(t *testing.T) {
	rb, _ := startAPI(t)
	if _, err := rb.Read32(core.REG_VERSION); err != nil {
		t.Fatal(err)
	}
	rb.client.Conn.Close()
	if _, err := rb.Read32(core.REG_VERSION); err != nil {
		t.Fatalf("no transparent redial: %v", err)
	}
	if rb.client.RedialCount == 0 {
		t.Fatalf("expected a redial")
	}
}
