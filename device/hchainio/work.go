package hchainio

import (
	"context"
	"fmt"

	"eval_fpgaio/core"
	"eval_fpgaio/regbus"
)

// WorkTx feeds work items to the chain.
type WorkTx struct {
	dev       regbus.Device
	midstates int
}

func (wt *WorkTx) init() error {
	if err := wt.dev.Write32(core.REG_WORK_TX_IRQ_THR, WORK_TX_FIFO_THRESHOLD); err != nil {
		return err
	}
	return wt.dev.Write32(core.REG_WORK_TX_CTRL, core.FIFO_CTRL_RST_TX|core.FIFO_CTRL_IRQ_EN)
}

func (wt *WorkTx) IsFull() (bool, error) {
	s, err := wt.dev.Read32(core.REG_WORK_TX_STAT)
	return s&core.STAT_TX_FULL != 0, err
}

// HasSpaceForOneJob reports whether the biggest work item fits.
func (wt *WorkTx) HasSpaceForOneJob() (bool, error) {
	s, err := wt.dev.Read32(core.REG_WORK_TX_STAT)
	return s&core.STAT_IRQ_PEND != 0, err
}

// WaitForRoom sleeps on the WORK_TX interrupt until one more job fits.
func (wt *WorkTx) WaitForRoom(ctx context.Context) error {
	return wt.dev.WaitIRQ(ctx, core.IRQ_WORK_TX)
}

// LastWorkId returns the count of work items fully sent, modulo 2^16.
func (wt *WorkTx) LastWorkId() (uint32, error) {
	return wt.dev.Read32(core.REG_WORK_TX_LAST_ID)
}

func (wt *WorkTx) WorkIdCount() int {
	return WorkIdCount(wt.midstates)
}

func (wt *WorkTx) MidstateCount() int {
	return wt.midstates
}

// EncodeWork serializes work under workId for the configured midstate count.
func (wt *WorkTx) EncodeWork(work *Work, workId int) ([]byte, error) {
	if len(work.Midstates) != wt.midstates {
		return nil, fmt.Errorf("%w: work has %d midstates, chain is configured for %d",
			ErrBadMidstates, len(work.Midstates), wt.midstates)
	}
	ext, err := ExtWorkId{WorkId: workId}.ToHW(wt.midstates)
	if err != nil {
		return nil, err
	}
	hdr := workHeader{
		ExtWorkId:      ext,
		Bits:           work.Bits,
		Ntime:          work.Ntime,
		MerkleRootTail: work.MerkleRootTail,
	}
	return Pack(&hdr, work.Midstates)
}

// SendWork waits for room and writes one work item.
func (wt *WorkTx) SendWork(ctx context.Context, work *Work, workId int) error {
	msg, err := wt.EncodeWork(work, workId)
	if err != nil {
		return err
	}
	if err := wt.WaitForRoom(ctx); err != nil {
		return err
	}
	for _, b := range msg {
		if err := wt.dev.Write32(core.REG_WORK_TX_FIFO, uint32(b)); err != nil {
			return err
		}
	}
	return nil
}

// WorkRx collects solutions reported by the chain.
type WorkRx struct {
	dev       regbus.Device
	midstates int
}

func (wr *WorkRx) init() error {
	return wr.dev.Write32(core.REG_WORK_RX_CTRL, core.FIFO_CTRL_RST_RX|core.FIFO_CTRL_IRQ_EN)
}

func (wr *WorkRx) IsEmpty() (bool, error) {
	s, err := wr.dev.Read32(core.REG_WORK_RX_STAT)
	return s&core.STAT_RX_EMPTY != 0, err
}

// Read returns the next byte, sleeping on the WORK_RX interrupt while the queue is empty.
func (wr *WorkRx) Read(ctx context.Context) (byte, error) {
	for {
		empty, err := wr.IsEmpty()
		if err != nil {
			return 0, err
		}
		if !empty {
			v, err := wr.dev.Read32(core.REG_WORK_RX_FIFO)
			return byte(v), err
		}
		if err := wr.dev.WaitIRQ(ctx, core.IRQ_WORK_RX); err != nil {
			return 0, err
		}
	}
}

func (wr *WorkRx) ReadN(ctx context.Context, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		b, err := wr.Read(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
	return out, nil
}

// RecvSolution blocks until a full solution frame has arrived.
func (wr *WorkRx) RecvSolution(ctx context.Context) (Solution, error) {
	raw, err := wr.ReadN(ctx, SOLUTION_FRAME_LEN)
	if err != nil {
		return Solution{}, err
	}
	var sf solutionFrame
	if _, err := Unpack(raw, &sf); err != nil {
		return Solution{}, err
	}
	ext := ExtWorkIdFromHW(wr.midstates, uint32(sf.ExtWorkId))
	return Solution{
		Nonce:       sf.Nonce,
		WorkId:      ext.WorkId,
		MidstateIdx: ext.MidstateIdx,
		SolutionIdx: int(sf.SolutionIdx),
	}, nil
}

// EncodeSolution builds the frame a chain sends for a nonce. Used by simulated chains.
func EncodeSolution(midstates int, s Solution) ([]byte, error) {
	ext, err := ExtWorkId{WorkId: s.WorkId, MidstateIdx: s.MidstateIdx}.ToHW(midstates)
	if err != nil {
		return nil, err
	}
	if s.SolutionIdx < 0 || s.SolutionIdx >= core.RESP_CMD_FLAG {
		return nil, fmt.Errorf("solution index %d out of range", s.SolutionIdx)
	}
	return Pack(&solutionFrame{Nonce: s.Nonce, ExtWorkId: uint16(ext), SolutionIdx: uint8(s.SolutionIdx)})
}
