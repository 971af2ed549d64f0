package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"periph.io/x/conn/v3/physic"

	"eval_fpgaio/core"
	"eval_fpgaio/log"
	"eval_fpgaio/version"
)

const (
	BACKEND_SIM    = "sim"
	BACKEND_UIO    = "uio"
	BACKEND_REMOTE = "remote"

	LINK_LOOPBACK = "loopback"
	LINK_ECHO     = "echo"
	LINK_PEER     = "peer"
	LINK_PINS     = "pins"

	DEFAULT_LISTEN    = "127.0.0.1:4028"
	DEFAULT_CLOCK     = "50MHz"
	DEFAULT_BAUD_RATE = 115740
	MAX_CHAIN_INDEX   = 15
)

// CoreConfig sizes the queues of a simulated block. Zero fields take the
// core defaults.
type CoreConfig struct {
	CmdRxDepth   int
	CmdTxDepth   int
	WorkRxDepth  int
	WorkTxDepth  int
	RespFrameLen int
}

func (my *CoreConfig) ToCore() core.Config {
	cfg := core.DefaultConfig()
	if my.CmdRxDepth > 0 {
		cfg.CmdRxDepth = my.CmdRxDepth
	}
	if my.CmdTxDepth > 0 {
		cfg.CmdTxDepth = my.CmdTxDepth
	}
	if my.WorkRxDepth > 0 {
		cfg.WorkRxDepth = my.WorkRxDepth
	}
	if my.WorkTxDepth > 0 {
		cfg.WorkTxDepth = my.WorkTxDepth
	}
	if my.RespFrameLen > 0 {
		cfg.RespFrameLen = my.RespFrameLen
	}
	cfg.VersionWord = version.VersionWord()
	cfg.BuildId = version.BuildID()
	return cfg
}

func (my *CoreConfig) problem() string {
	for _, d := range []int{my.CmdRxDepth, my.CmdTxDepth, my.WorkRxDepth, my.WorkTxDepth} {
		if d < 0 || d > 1<<16 {
			return fmt.Sprintf("queue depth %d out of range", d)
		}
	}
	if my.RespFrameLen < 0 || my.RespFrameLen > core.RESP_FRAME_MAX_LEN {
		return fmt.Sprintf("response frame length %d out of range", my.RespFrameLen)
	}
	return ""
}

// BoardConfig selects and parameterizes the register backend.
type BoardConfig struct {
	Backend  string
	ChainIdx int
	Listen   string
	Remote   string

	SimLink      string
	LinkDelay    int
	PeerDivisor  uint32
	TxPin        string
	RxPin        string
	IrqChip      string
	IrqOffsets   []int
	IrqSysfsPins []int
	Clock        string
	BaudRate     int
	Midstates    int
	Core         CoreConfig

	clock        physic.Frequency
	Valid        bool   `json:"-"`
	Reason       string `json:"-"`
	firstInvalid bool
}

func Default() *BoardConfig {
	my := &BoardConfig{
		Backend:   BACKEND_SIM,
		Listen:    DEFAULT_LISTEN,
		SimLink:   LINK_LOOPBACK,
		Clock:     DEFAULT_CLOCK,
		BaudRate:  DEFAULT_BAUD_RATE,
		Midstates: 1,
	}
	my.Parse()
	return my
}

// Load reads a JSON file over the defaults.
func Load(path string) (*BoardConfig, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	my := Default()
	if err := json.Unmarshal(buf, my); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	my.Parse()
	if !my.Valid {
		return my, fmt.Errorf("%s: %s", path, my.Reason)
	}
	return my, nil
}

func (my *BoardConfig) Parse() {
	my.Backend = strings.ToLower(strings.TrimSpace(my.Backend))
	my.SimLink = strings.ToLower(strings.TrimSpace(my.SimLink))
	my.Reason = my.problem()
	my.Valid = my.Reason == ""
	if !my.Valid && !my.firstInvalid {
		my.firstInvalid = true
		log.Infof("Board config is not valid: %s", my.Reason)
	} else if my.Valid {
		my.firstInvalid = false
	}
}

func (my *BoardConfig) problem() string {
	switch my.Backend {
	case BACKEND_SIM:
		switch my.SimLink {
		case LINK_LOOPBACK, LINK_ECHO, LINK_PEER:
		case LINK_PINS:
			if my.TxPin == "" || my.RxPin == "" {
				return "pins link needs TxPin and RxPin"
			}
		default:
			return fmt.Sprintf("unknown sim link %q", my.SimLink)
		}
		if my.LinkDelay < 0 {
			return "negative link delay"
		}
	case BACKEND_UIO:
		if my.ChainIdx < 0 || my.ChainIdx > MAX_CHAIN_INDEX {
			return fmt.Sprintf("chain index %d out of range", my.ChainIdx)
		}
	case BACKEND_REMOTE:
		if my.Remote == "" {
			return "remote backend needs Remote address"
		}
	default:
		return fmt.Sprintf("unknown backend %q", my.Backend)
	}
	if err := my.clock.Set(my.Clock); err != nil || my.clock <= 0 {
		return fmt.Sprintf("bad clock %q", my.Clock)
	}
	if my.BaudRate <= 0 {
		return fmt.Sprintf("bad baud rate %d", my.BaudRate)
	}
	if _, ok := core.MidstateField(my.Midstates); !ok {
		return fmt.Sprintf("unsupported midstate count %d", my.Midstates)
	}
	if len(my.IrqOffsets) > int(core.NUM_IRQ) || len(my.IrqSysfsPins) > int(core.NUM_IRQ) {
		return fmt.Sprintf("at most %d irq outputs", int(core.NUM_IRQ))
	}
	return my.Core.problem()
}

// ClockFrequency is the parsed Clock, valid after Parse.
func (my *BoardConfig) ClockFrequency() physic.Frequency {
	return my.clock
}

// IrqOffsetArray pads a pin list to one entry per IRQ line, -1 meaning unconnected.
func IrqOffsetArray(pins []int) [core.NUM_IRQ]int {
	out := [core.NUM_IRQ]int{-1, -1, -1}
	copy(out[:], pins)
	return out
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (my *BoardConfig) Equal(cfg *BoardConfig) bool {
	if my.Backend != cfg.Backend || my.ChainIdx != cfg.ChainIdx {
		return false
	}
	if my.Listen != cfg.Listen || my.Remote != cfg.Remote {
		return false
	}
	if my.SimLink != cfg.SimLink || my.LinkDelay != cfg.LinkDelay || my.PeerDivisor != cfg.PeerDivisor {
		return false
	}
	if my.TxPin != cfg.TxPin || my.RxPin != cfg.RxPin || my.IrqChip != cfg.IrqChip {
		return false
	}
	if !intsEqual(my.IrqOffsets, cfg.IrqOffsets) || !intsEqual(my.IrqSysfsPins, cfg.IrqSysfsPins) {
		return false
	}
	if my.Clock != cfg.Clock || my.BaudRate != cfg.BaudRate || my.Midstates != cfg.Midstates {
		return false
	}
	return my.Core == cfg.Core
}
