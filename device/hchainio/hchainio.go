// Package hchainio is the host driver of a hash chain I/O block. It splits
// the block into its Common, command, work transmit and work receive parts.
package hchainio

import (
	"fmt"

	"eval_fpgaio/core"
	"eval_fpgaio/regbus"
)

type Core struct {
	common  *Common
	command *CommandRxTx
	workRx  *WorkRx
	workTx  *WorkTx
}

func NewCore(dev regbus.Device, chainIdx int, midstates int) (*Core, error) {
	if _, ok := core.MidstateField(midstates); !ok {
		return nil, fmt.Errorf("%w: %d", ErrBadMidstates, midstates)
	}
	return &Core{
		common: &Common{dev: dev, ChainIdx: chainIdx, midstates: midstates, Expected: EXPECTED_IO_VERSION},
		command: &CommandRxTx{
			dev:          dev,
			ChainIdx:     chainIdx,
			PollInterval: CMD_POLL_INTERVAL,
			qResp:        NewFifo[[]byte](),
		},
		workRx: &WorkRx{dev: dev, midstates: midstates},
		workTx: &WorkTx{dev: dev, midstates: midstates},
	}, nil
}

// SetExpectedVersion overrides the version checked by InitAndSplit.
func (hc *Core) SetExpectedVersion(v Version) {
	hc.common.Expected = v
}

// InitAndSplit initializes the block, Common first, and hands out its parts.
func (hc *Core) InitAndSplit() (*Common, *CommandRxTx, *WorkRx, *WorkTx, error) {
	if err := hc.common.init(); err != nil {
		return nil, nil, nil, nil, err
	}
	if err := hc.command.init(); err != nil {
		return nil, nil, nil, nil, err
	}
	if err := hc.workRx.init(); err != nil {
		return nil, nil, nil, nil, err
	}
	if err := hc.workTx.init(); err != nil {
		return nil, nil, nil, nil, err
	}
	return hc.common, hc.command, hc.workRx, hc.workTx, nil
}
