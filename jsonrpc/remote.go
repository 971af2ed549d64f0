package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eval_fpgaio/core"
	"eval_fpgaio/regbus"
)

var ErrRemote = errors.New("remote error")

// REMOTE_IRQ_SLICE bounds one irq_wait round trip so that cancellation is noticed.
const REMOTE_IRQ_SLICE = time.Second

// RemoteBus is a regbus.Device served by another process's API.
type RemoteBus struct {
	client *TCPClient
}

func NewRemoteBus(addr string) *RemoteBus {
	return &RemoteBus{client: NewTCPClient(addr)}
}

// Call sends one command and decodes the reply data into out, which may be nil.
func (rb *RemoteBus) Call(command string, param interface{}, out interface{}) error {
	req, err := PrepareJSONRequest(command, param)
	if err != nil {
		return err
	}
	buf, err := rb.client.SendAndReceive(req)
	if err != nil {
		return err
	}
	var resp APIResponse
	if err := json.Unmarshal(buf, &resp); err != nil {
		return fmt.Errorf("%s: bad reply: %w", command, err)
	}
	if resp.Status != STATUS_SUCCESS {
		if resp.Code == CODE_BUS_ERROR {
			return fmt.Errorf("%w: %s", regbus.ErrBusResponse, resp.Msg)
		}
		return fmt.Errorf("%w %d: %s", ErrRemote, resp.Code, resp.Msg)
	}
	if out != nil && len(resp.Data) > 0 {
		return json.Unmarshal(resp.Data, out)
	}
	return nil
}

func (rb *RemoteBus) Read32(addr uint32) (uint32, error) {
	var rv RegValue
	if err := rb.Call(CMD_READ, RegParam{Addr: &addr}, &rv); err != nil {
		return 0, err
	}
	return rv.Value, nil
}

func (rb *RemoteBus) Write32(addr, value uint32) error {
	return rb.Call(CMD_WRITE, RegParam{Addr: &addr, Value: value}, nil)
}

func (rb *RemoteBus) WriteStrobe(addr, value uint32, strobe uint8) error {
	return rb.Call(CMD_WRITE, RegParam{Addr: &addr, Value: value, Strobe: &strobe}, nil)
}

func (rb *RemoteBus) WaitIRQ(ctx context.Context, line core.IRQLine) error {
	for {
		slice := REMOTE_IRQ_SLICE
		if dl, ok := ctx.Deadline(); ok {
			if left := time.Until(dl); left < slice {
				slice = left
			}
		}
		if slice <= 0 {
			return regbus.ErrTimeout
		}
		var st IRQState
		p := RegParam{Line: line.String(), TimeoutMs: int(slice / time.Millisecond)}
		if p.TimeoutMs == 0 {
			p.TimeoutMs = 1
		}
		if err := rb.Call(CMD_IRQ_WAIT, p, &st); err != nil {
			return err
		}
		if st.Asserted {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return regbus.ErrTimeout
			}
			return ctx.Err()
		default:
		}
	}
}

func (rb *RemoteBus) Dump() ([]RegValue, error) {
	var out []RegValue
	err := rb.Call(CMD_DUMP, nil, &out)
	return out, err
}

func (rb *RemoteBus) Status() (StatusData, error) {
	var st StatusData
	err := rb.Call(CMD_STATUS, nil, &st)
	return st, err
}

func (rb *RemoteBus) Version() (VersionData, error) {
	var v VersionData
	err := rb.Call(CMD_VERSION, nil, &v)
	return v, err
}

func (rb *RemoteBus) Close() {
	rb.client.Shutdown()
}

var _ regbus.Device = (*RemoteBus)(nil)
