package hchainio

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"

	"eval_fpgaio/core"
	"eval_fpgaio/sim"
)

func TestCalcBaudClockDiv(t *testing.T) {
	clk := F_CLK_SPEED_HZ * physic.Hertz
	tests := []struct {
		baud   int
		div    uint32
		actual int
	}{
		{INIT_CHAIN_BAUD_RATE, 26, 115740},
		{TARGET_CHAIN_BAUD_RATE, 1, 1562500},
		{3125000, 0, 3125000},
		{1000000, 2, 1041666},
	}
	for _, tt := range tests {
		div, actual, err := CalcBaudClockDiv(tt.baud, clk, F_CLK_BASE_BAUD_DIV)
		if err != nil {
			t.Fatalf("%d baud: %v", tt.baud, err)
		}
		if div != tt.div || actual != tt.actual {
			t.Errorf("%d baud: div %d actual %d, expected %d %d", tt.baud, div, actual, tt.div, tt.actual)
		}
	}
	for _, baud := range []int{2000000, 100, 0} {
		if _, _, err := CalcBaudClockDiv(baud, clk, F_CLK_BASE_BAUD_DIV); !errors.Is(err, ErrBaudRate) {
			t.Errorf("%d baud: expected ErrBaudRate, got %v", baud, err)
		}
	}
}

func TestVersionDecoding(t *testing.T) {
	v := ParseVersion(0x19010000)
	if v != EXPECTED_IO_VERSION {
		t.Fatalf("parsed %+v", v)
	}
	if v.Word() != 0x19010000 {
		t.Fatalf("word %#x", v.Word())
	}
	if s := v.String(); s != "1.0.0 for Antminer S9" {
		t.Fatalf("string %q", s)
	}
	if s := ParseVersion(0x27030201).String(); s != "3.2.1 for Unknown[2, 7]" {
		t.Fatalf("string %q", s)
	}
}

func TestBuildId(t *testing.T) {
	if BuildId(0).SeemsLegit() || BuildId(0x80000000).SeemsLegit() || BuildId(BUILD_ID_MIN).SeemsLegit() {
		t.Fatalf("bogus build id accepted")
	}
	b := BuildId(1568822768)
	if !b.SeemsLegit() {
		t.Fatalf("build id rejected")
	}
	if s := b.String(); s != "2019-09-18 16:06:08 UTC" {
		t.Fatalf("string %q", s)
	}
}

func TestExtWorkId(t *testing.T) {
	tests := []struct {
		midstates int
		ext       uint32
		want      ExtWorkId
	}{
		{1, 0x8765, ExtWorkId{0x8765, 0}},
		{2, 0x8765, ExtWorkId{0x43b2, 1}},
		{4, 0x8765, ExtWorkId{0x21d9, 1}},
	}
	for _, tt := range tests {
		got := ExtWorkIdFromHW(tt.midstates, tt.ext)
		if got != tt.want {
			t.Errorf("FromHW(%d, %#x) = %+v, expected %+v", tt.midstates, tt.ext, got, tt.want)
		}
		back, err := got.ToHW(tt.midstates)
		if err != nil || back != tt.ext {
			t.Errorf("ToHW(%+v) = %#x %v", got, back, err)
		}
	}
	if WorkIdCount(4) != 0x4000 {
		t.Fatalf("WorkIdCount(4) = %#x", WorkIdCount(4))
	}
	if _, err := (ExtWorkId{WorkId: 0x8000}).ToHW(2); err == nil {
		t.Fatalf("oversized work id accepted")
	}
	if _, err := (ExtWorkId{MidstateIdx: 2}).ToHW(2); err == nil {
		t.Fatalf("midstate index out of range accepted")
	}
}

func TestEncodeWork(t *testing.T) {
	wt := &WorkTx{midstates: 2}
	w := &Work{Bits: 0x1d00ffff, Ntime: 0x11223344, MerkleRootTail: 0xa1b2c3d4,
		Midstates: make([][core.WORK_MIDSTATE_BYTES]byte, 2)}
	w.Midstates[0][0] = 0xAA
	w.Midstates[1][31] = 0xBB
	msg, err := wt.EncodeWork(w, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(msg) != core.WorkItemBytes(2) {
		t.Fatalf("encoded %d bytes", len(msg))
	}
	want := []byte{6, 0, 0, 0, 0xff, 0xff, 0x00, 0x1d, 0x44, 0x33, 0x22, 0x11, 0xd4, 0xc3, 0xb2, 0xa1}
	if !bytes.Equal(msg[:16], want) {
		t.Fatalf("header % x", msg[:16])
	}
	if msg[16] != 0xAA || msg[len(msg)-1] != 0xBB {
		t.Fatalf("midstates misplaced")
	}
	w.Midstates = w.Midstates[:1]
	if _, err := wt.EncodeWork(w, 3); !errors.Is(err, ErrBadMidstates) {
		t.Fatalf("midstate mismatch: %v", err)
	}
}

func TestSolutionFrame(t *testing.T) {
	s := Solution{Nonce: 0xdeadbeef, WorkId: 0x1234, MidstateIdx: 1, SolutionIdx: 5}
	raw, err := EncodeSolution(2, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != SOLUTION_FRAME_LEN || raw[len(raw)-1]&core.RESP_CMD_FLAG != 0 {
		t.Fatalf("frame % x", raw)
	}
	if _, err := EncodeSolution(2, Solution{SolutionIdx: 0x80}); err == nil {
		t.Fatalf("solution index clashing with the command flag accepted")
	}
}

func TestFifo(t *testing.T) {
	ff := NewFifo[[]byte]()
	ff.Push([]byte{1})
	ff.Push([]byte{2})
	if ff.Len() != 2 {
		t.Fatalf("len %d", ff.Len())
	}
	v, ok := ff.Pop()
	if !ok || v[0] != 1 {
		t.Fatalf("pop %v %v", v, ok)
	}
	ff.Clear()
	if _, ok := ff.Pop(); ok {
		t.Fatalf("pop after clear")
	}
}

// fakeChain answers 5-byte commands with a 7-byte response and work items with a solution.
type fakeChain struct {
	peer      *sim.Peer
	midstates int
	work      bool
	buf       []byte
}

func (fc *fakeChain) onRx(b byte) []byte {
	fc.buf = append(fc.buf, b)
	if !fc.work {
		if len(fc.buf) < 5 {
			return nil
		}
		fc.buf = fc.buf[:0]
		return []byte{0x13, 0x87, 0x90, 0x00, 0x00, 0x00, core.RESP_CMD_FLAG | 0x05}
	}
	if len(fc.buf) < core.WorkItemBytes(fc.midstates) {
		return nil
	}
	var hdr workHeader
	Unpack(fc.buf, &hdr)
	fc.buf = fc.buf[:0]
	ext := ExtWorkIdFromHW(fc.midstates, hdr.ExtWorkId)
	resp, _ := EncodeSolution(fc.midstates, Solution{Nonce: hdr.Ntime ^ 0xffffffff, WorkId: ext.WorkId, SolutionIdx: 3})
	return resp
}

func startChain(t *testing.T, cfg core.Config, midstates int) (*sim.Actor, *fakeChain, func()) {
	t.Helper()
	fc := &fakeChain{peer: sim.NewPeer(0), midstates: midstates}
	fc.peer.OnRx = fc.onRx
	a := sim.NewActor(sim.NewBoard(core.New(cfg), fc.peer))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	<-a.Started()
	return a, fc, func() {
		cancel()
		<-done
	}
}

func testConfig() core.Config {
	cfg := core.DefaultConfig()
	cfg.VersionWord = EXPECTED_IO_VERSION.Word()
	cfg.BuildId = 1568822768
	return cfg
}

func TestInitAndSplitAgainstSimulation(t *testing.T) {
	a, fc, stop := startChain(t, testConfig(), 1)
	defer stop()

	hc, err := NewCore(a, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	common, command, workRx, workTx, err := hc.InitAndSplit()
	if err != nil {
		t.Fatalf("InitAndSplit: %v", err)
	}
	ctrl, _ := a.Read32(core.REG_CTRL)
	want := uint32(core.CTRL_ENABLE | core.CTRL_IRQ_EN | core.RX_MODE_FRAMED<<core.CTRL_RX_MODE_SHIFT)
	if ctrl != want {
		t.Fatalf("CTRL %#x, expected %#x", ctrl, want)
	}
	if thr, _ := a.Read32(core.REG_WORK_TX_IRQ_THR); thr != WORK_TX_FIFO_THRESHOLD {
		t.Fatalf("threshold %d", thr)
	}

	actual, err := common.SetBaudRate(TARGET_CHAIN_BAUD_RATE, F_CLK_SPEED_HZ*physic.Hertz)
	if err != nil || actual != TARGET_CHAIN_BAUD_RATE {
		t.Fatalf("SetBaudRate: %d %v", actual, err)
	}
	a.Inspect(func(*sim.Board) { fc.peer.SetDivisor(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := command.SendCommand(ctx, []byte{0x55, 0xAA, 0x01, 0x02, 0x03}, true); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	resp, err := command.RecvResponse(ctx, time.Second)
	if err != nil {
		t.Fatalf("RecvResponse: %v", err)
	}
	if !bytes.Equal(resp, []byte{0x13, 0x87, 0x90, 0, 0, 0}) {
		t.Fatalf("response % x", resp)
	}
	resp, err = command.RecvResponse(ctx, 20*time.Millisecond)
	if err != nil || resp != nil {
		t.Fatalf("idle RecvResponse: % x %v", resp, err)
	}

	a.Inspect(func(*sim.Board) { fc.work = true })
	if ok, err := workTx.HasSpaceForOneJob(); err != nil || !ok {
		t.Fatalf("no room in an empty work queue: %v", err)
	}
	w := &Work{Bits: 1, Ntime: 0x5d8a1e00, MerkleRootTail: 2, Midstates: make([][core.WORK_MIDSTATE_BYTES]byte, 1)}
	if err := workTx.SendWork(ctx, w, 77); err != nil {
		t.Fatalf("SendWork: %v", err)
	}
	sol, err := workRx.RecvSolution(ctx)
	if err != nil {
		t.Fatalf("RecvSolution: %v", err)
	}
	if sol.WorkId != 77 || sol.Nonce != 0x5d8a1e00^0xffffffff || sol.SolutionIdx != 3 {
		t.Fatalf("solution %+v", sol)
	}
	if id, _ := workTx.LastWorkId(); id != 1 {
		t.Fatalf("LastWorkId %d", id)
	}
	if n, _ := common.ErrorCount(); n != 0 {
		t.Fatalf("error counter %d", n)
	}
}

func TestAsyncResponses(t *testing.T) {
	a, _, stop := startChain(t, testConfig(), 1)
	defer stop()

	hc, _ := NewCore(a, 1, 1)
	_, command, _, _, err := hc.InitAndSplit()
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	command.EnableAsyncRead(ctx, 50*time.Millisecond)
	for i := 0; i < 2; i++ {
		if err := command.SendCommand(ctx, []byte{1, 2, 3, 4, 5}, false); err != nil {
			t.Fatal(err)
		}
	}
	got := 0
	for got < 2 && ctx.Err() == nil {
		if _, ok := command.PopResponse(); ok {
			got++
			continue
		}
		time.Sleep(time.Millisecond)
	}
	if st := command.RxStats(); got != 2 || st.Responses != 2 {
		t.Fatalf("got %d responses, stats %+v", got, st)
	}
	// the reader keeps running while stats are sampled
	time.Sleep(120 * time.Millisecond)
	if st := command.RxStats(); st.Timeouts == 0 || st.Errors != 0 {
		t.Fatalf("stats while idle %+v", st)
	}
	command.DisableAsyncRead()
}

func TestInitRejectsBitstream(t *testing.T) {
	cfg := testConfig()
	cfg.BuildId = 0
	a, _, stop := startChain(t, cfg, 1)
	hc, _ := NewCore(a, 2, 1)
	if _, _, _, _, err := hc.InitAndSplit(); !errors.Is(err, ErrNoBitstream) {
		t.Fatalf("expected ErrNoBitstream, got %v", err)
	}
	stop()

	a, _, stop = startChain(t, testConfig(), 1)
	defer stop()
	hc, _ = NewCore(a, 2, 1)
	hc.SetExpectedVersion(Version{MinerType: MINER_TYPE_ANTMINER, Model: 9, Major: 2})
	if _, _, _, _, err := hc.InitAndSplit(); !errors.Is(err, ErrUnexpectedVersion) {
		t.Fatalf("expected ErrUnexpectedVersion, got %v", err)
	}
	if _, err := NewCore(a, 2, 3); !errors.Is(err, ErrBadMidstates) {
		t.Fatalf("3 midstates accepted")
	}
}
