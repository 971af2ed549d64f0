package hchainio

import (
	"fmt"

	"periph.io/x/conn/v3/physic"

	"eval_fpgaio/core"
	"eval_fpgaio/log"
	"eval_fpgaio/regbus"
)

// Common drives the control registers shared by all channels.
type Common struct {
	dev       regbus.Device
	ChainIdx  int
	midstates int
	Expected  Version
}

// NewCommon gives access to the shared registers without initializing the block.
func NewCommon(dev regbus.Device) *Common {
	return &Common{dev: dev, midstates: 1, Expected: EXPECTED_IO_VERSION}
}

func (cc *Common) GetVersion() (Version, error) {
	v, err := cc.dev.Read32(core.REG_VERSION)
	if err != nil {
		return Version{}, err
	}
	return ParseVersion(v), nil
}

func (cc *Common) GetBuildId() (BuildId, error) {
	v, err := cc.dev.Read32(core.REG_BUILD_ID)
	return BuildId(v), err
}

func (cc *Common) EnableIPCore() error {
	return regbus.SetBits(cc.dev, core.REG_CTRL, core.CTRL_ENABLE)
}

func (cc *Common) DisableIPCore() error {
	return regbus.ClearBits(cc.dev, core.REG_CTRL, core.CTRL_ENABLE)
}

func (cc *Common) EnableIRQ() error {
	return regbus.SetBits(cc.dev, core.REG_CTRL, core.CTRL_IRQ_EN)
}

func (cc *Common) SetWorkTime(workTime uint32) error {
	return cc.dev.Write32(core.REG_WORK_TIME, workTime&core.WORK_TIME_MASK)
}

func (cc *Common) SetBaudClockDiv(div uint32) error {
	return cc.dev.Write32(core.REG_BAUD, div&core.BAUD_MASK)
}

// SetBaudRate programs the divisor closest to baudRate and returns the resulting rate.
func (cc *Common) SetBaudRate(baudRate int, clk physic.Frequency) (int, error) {
	div, actual, err := CalcBaudClockDiv(baudRate, clk, F_CLK_BASE_BAUD_DIV)
	if err != nil {
		return 0, err
	}
	if err := cc.SetBaudClockDiv(div); err != nil {
		return 0, err
	}
	log.Infof("Chain %d: baud rate %d (requested %d, divisor %d)", cc.ChainIdx, actual, baudRate, div)
	return actual, nil
}

func (cc *Common) SetMidstateCount() error {
	field, ok := core.MidstateField(cc.midstates)
	if !ok {
		return fmt.Errorf("%w: %d", ErrBadMidstates, cc.midstates)
	}
	return regbus.UpdateField(cc.dev, core.REG_CTRL, core.CTRL_MIDSTATE_MASK, core.CTRL_MIDSTATE_SHIFT, field)
}

func (cc *Common) SetRxMode(mode uint32) error {
	return regbus.UpdateField(cc.dev, core.REG_CTRL, core.CTRL_RX_MODE_MASK, core.CTRL_RX_MODE_SHIFT, mode)
}

func (cc *Common) ErrorCount() (uint32, error) {
	return cc.dev.Read32(core.REG_ERR_COUNTER)
}

func (cc *Common) ClearErrorCount() error {
	return regbus.SetBits(cc.dev, core.REG_CTRL, core.CTRL_ERR_CNT_CLEAR)
}

func (cc *Common) checkVersion() error {
	ver, err := cc.GetVersion()
	if err != nil {
		return err
	}
	buildId, err := cc.GetBuildId()
	if err != nil {
		return err
	}
	if !buildId.SeemsLegit() {
		return fmt.Errorf("chain %d: %w (build id %d)", cc.ChainIdx, ErrNoBitstream, uint32(buildId))
	}
	log.Infof("Chain %d: I/O core %v built on %v", cc.ChainIdx, ver, buildId)
	if ver != cc.Expected {
		return fmt.Errorf("%w: found %v, expected %v", ErrUnexpectedVersion, ver, cc.Expected)
	}
	return nil
}

func (cc *Common) init() error {
	// toggling enable restarts the receiver
	if err := cc.DisableIPCore(); err != nil {
		return err
	}
	if err := cc.EnableIPCore(); err != nil {
		return err
	}
	if err := cc.checkVersion(); err != nil {
		return err
	}
	if err := cc.SetMidstateCount(); err != nil {
		return err
	}
	if err := cc.SetRxMode(core.RX_MODE_FRAMED); err != nil {
		return err
	}
	return cc.EnableIRQ()
}
