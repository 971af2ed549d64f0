package hchainio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"eval_fpgaio/core"
	"eval_fpgaio/log"
	"eval_fpgaio/regbus"
)

// CommandRxTx is the command channel: bytes out to the chain, framed responses back.
type CommandRxTx struct {
	dev          regbus.Device
	ChainIdx     int
	PollInterval time.Duration

	qResp  *Fifo[[]byte]
	wg     sync.WaitGroup
	cancel context.CancelFunc

	responses atomic.Uint64
	timeouts  atomic.Uint64
	errs      atomic.Uint64
}

// CommandStats counts what the async reader has seen.
type CommandStats struct {
	Responses uint64
	Timeouts  uint64
	Errors    uint64
}

func (cm *CommandRxTx) init() error {
	return cm.dev.Write32(core.REG_CMD_CTRL, core.FIFO_CTRL_RST_TX|core.FIFO_CTRL_RST_RX|core.FIFO_CTRL_IRQ_EN)
}

func (cm *CommandRxTx) stat() (uint32, error) {
	return cm.dev.Read32(core.REG_CMD_STAT)
}

func (cm *CommandRxTx) IsRxEmpty() (bool, error) {
	s, err := cm.stat()
	return s&core.STAT_RX_EMPTY != 0, err
}

func (cm *CommandRxTx) IsTxEmpty() (bool, error) {
	s, err := cm.stat()
	return s&core.STAT_TX_EMPTY != 0, err
}

func (cm *CommandRxTx) IsTxFull() (bool, error) {
	s, err := cm.stat()
	return s&core.STAT_TX_FULL != 0, err
}

func (cm *CommandRxTx) sleep(ctx context.Context) error {
	t := time.NewTimer(cm.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WaitTxEmpty polls until every queued command byte has been handed to the transmitter.
func (cm *CommandRxTx) WaitTxEmpty(ctx context.Context) error {
	for {
		empty, err := cm.IsTxEmpty()
		if err != nil || empty {
			return err
		}
		if err := cm.sleep(ctx); err != nil {
			return err
		}
	}
}

func (cm *CommandRxTx) writeByte(ctx context.Context, b byte) error {
	for {
		full, err := cm.IsTxFull()
		if err != nil {
			return err
		}
		if !full {
			return cm.dev.Write32(core.REG_CMD_TX_FIFO, uint32(b))
		}
		if err := cm.sleep(ctx); err != nil {
			return err
		}
	}
}

// SendCommand queues cmd for transmission. With wait set it returns once the TX queue drained.
func (cm *CommandRxTx) SendCommand(ctx context.Context, cmd []byte, wait bool) error {
	for _, b := range cmd {
		if err := cm.writeByte(ctx, b); err != nil {
			return err
		}
	}
	if wait {
		return cm.WaitTxEmpty(ctx)
	}
	return nil
}

// Read returns the next response byte, sleeping on the CMD_RX interrupt while the queue is empty.
func (cm *CommandRxTx) Read(ctx context.Context) (byte, error) {
	for {
		empty, err := cm.IsRxEmpty()
		if err != nil {
			return 0, err
		}
		if !empty {
			v, err := cm.dev.Read32(core.REG_CMD_RX_FIFO)
			return byte(v), err
		}
		if err := cm.dev.WaitIRQ(ctx, core.IRQ_CMD_RX); err != nil {
			return 0, err
		}
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, regbus.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

func (cm *CommandRxTx) readWithTimeout(ctx context.Context, timeout time.Duration) (byte, bool, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	b, err := cm.Read(tctx)
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return 0, false, nil
		}
		return 0, false, err
	}
	return b, true, nil
}

// RecvResponse reads one response frame and strips its checksum byte.
// A timeout on the first byte means no response and returns nil, nil;
// a timeout inside the frame is ErrFraming.
func (cm *CommandRxTx) RecvResponse(ctx context.Context, timeout time.Duration) ([]byte, error) {
	resp := make([]byte, 0, CMD_RESP_LEN)
	for len(resp) < CMD_RESP_LEN {
		b, ok, err := cm.readWithTimeout(ctx, timeout)
		if err != nil {
			return nil, err
		}
		if !ok {
			if len(resp) == 0 {
				return nil, nil
			}
			return nil, fmt.Errorf("chain %d: %w after %d bytes", cm.ChainIdx, ErrFraming, len(resp))
		}
		resp = append(resp, b)
	}
	return resp[:CMD_RESP_LEN-1], nil
}

// EnableAsyncRead starts a reader that queues every response for PopResponse.
func (cm *CommandRxTx) EnableAsyncRead(ctx context.Context, timeout time.Duration) {
	ctx, cm.cancel = context.WithCancel(ctx)
	cm.wg.Add(1)
	go func() {
		defer cm.wg.Done()
		for ctx.Err() == nil {
			resp, err := cm.RecvResponse(ctx, timeout)
			switch {
			case err != nil && ctx.Err() != nil:
				return
			case err != nil:
				cm.errs.Add(1)
				log.Errorf("Chain %d: response reader %v", cm.ChainIdx, err)
				if !errors.Is(err, ErrFraming) {
					return
				}
			case resp == nil:
				cm.timeouts.Add(1)
			default:
				cm.responses.Add(1)
				cm.qResp.Push(resp)
			}
		}
	}()
}

// DisableAsyncRead stops the reader started by EnableAsyncRead and waits for it.
func (cm *CommandRxTx) DisableAsyncRead() {
	if cm.cancel != nil {
		cm.cancel()
		cm.wg.Wait()
		cm.cancel = nil
	}
}

// RxStats is safe to call while the async reader runs.
func (cm *CommandRxTx) RxStats() CommandStats {
	return CommandStats{
		Responses: cm.responses.Load(),
		Timeouts:  cm.timeouts.Load(),
		Errors:    cm.errs.Load(),
	}
}

func (cm *CommandRxTx) PopResponse() ([]byte, bool) {
	return cm.qResp.Pop()
}
