package hchainio

import (
	"errors"
	"fmt"
	"time"

	"eval_fpgaio/core"
)

const (
	// base clock of the I/O core
	F_CLK_SPEED_HZ = 50_000_000

	// divisor of the base clock feeding the UART, the oversampling rate
	F_CLK_BASE_BAUD_DIV = core.OVERSAMPLE

	INIT_CHAIN_BAUD_RATE   = 115740
	TARGET_CHAIN_BAUD_RATE = 1562500
	MAX_BAUD_RATE_ERR_PERC = 5

	WORK_TX_FIFO_SIZE = core.WORK_TX_FIFO_DEPTH
	BIGGEST_WORK      = core.WORK_HEADER_BYTES + 4*core.WORK_MIDSTATE_BYTES

	// WORK_TX irq fires while there is room for the biggest work item
	WORK_TX_FIFO_THRESHOLD = WORK_TX_FIFO_SIZE - BIGGEST_WORK

	CMD_POLL_INTERVAL  = time.Millisecond
	CMD_RESP_LEN       = core.RESP_FRAME_LEN
	SOLUTION_FRAME_LEN = core.RESP_FRAME_LEN
	EXT_WORK_ID_COUNT  = 0x10000

	// bitstreams built after 2019 and before 2038
	BUILD_ID_MIN = 1546300800
	BUILD_ID_MAX = 0x80000000

	MINER_TYPE_ANTMINER = 1
)

var (
	ErrNoBitstream       = errors.New("no I/O core bitstream found")
	ErrUnexpectedVersion = errors.New("unexpected I/O core version")
	ErrBaudRate          = errors.New("baud rate out of tolerance")
	ErrBadMidstates      = errors.New("unsupported midstate count")
	ErrFraming           = errors.New("cmd RX fifo framing error")
)

// Version is the decoded VERSION register.
type Version struct {
	MinerType uint32
	Model     uint32
	Major     uint32
	Minor     uint32
	Patch     uint32
}

var EXPECTED_IO_VERSION = Version{MinerType: MINER_TYPE_ANTMINER, Model: 9, Major: 1, Minor: 0, Patch: 0}

func ParseVersion(word uint32) Version {
	return Version{
		MinerType: word >> 28,
		Model:     (word >> 24) & 0xf,
		Major:     (word >> 16) & 0xff,
		Minor:     (word >> 8) & 0xff,
		Patch:     word & 0xff,
	}
}

func (v Version) Word() uint32 {
	return (v.MinerType&0xf)<<28 | (v.Model&0xf)<<24 | (v.Major&0xff)<<16 | (v.Minor&0xff)<<8 | v.Patch&0xff
}

func (v Version) String() string {
	model := fmt.Sprintf("Unknown[%d, %d]", v.MinerType, v.Model)
	if v.MinerType == MINER_TYPE_ANTMINER {
		model = fmt.Sprintf("Antminer S%d", v.Model)
	}
	return fmt.Sprintf("%d.%d.%d for %s", v.Major, v.Minor, v.Patch, model)
}

// BuildId is the BUILD_ID register, a unix timestamp.
type BuildId uint32

func (b BuildId) SeemsLegit() bool {
	return b > BUILD_ID_MIN && b < BUILD_ID_MAX
}

func (b BuildId) String() string {
	return time.Unix(int64(b), 0).UTC().Format("2006-01-02 15:04:05 MST")
}

// ExtWorkId is the 16-bit work id sent to the chain. The low bits select the midstate.
type ExtWorkId struct {
	WorkId      int
	MidstateIdx int
}

func midstateBits(midstates int) uint {
	switch midstates {
	case 2:
		return 1
	case 4:
		return 2
	}
	return 0
}

// WorkIdCount is the range of work ids that fit next to the midstate bits.
func WorkIdCount(midstates int) int {
	return EXT_WORK_ID_COUNT >> midstateBits(midstates)
}

func ExtWorkIdFromHW(midstates int, ext uint32) ExtWorkId {
	bits := midstateBits(midstates)
	ext &= EXT_WORK_ID_COUNT - 1
	return ExtWorkId{
		WorkId:      int(ext >> bits),
		MidstateIdx: int(ext & (1<<bits - 1)),
	}
}

func (e ExtWorkId) ToHW(midstates int) (uint32, error) {
	if e.WorkId < 0 || e.WorkId >= WorkIdCount(midstates) || e.MidstateIdx < 0 || e.MidstateIdx >= midstates {
		return 0, fmt.Errorf("work id %d midstate %d does not fit %d midstates", e.WorkId, e.MidstateIdx, midstates)
	}
	return uint32(e.WorkId<<midstateBits(midstates) | e.MidstateIdx), nil
}

// Work is one job for the chain.
type Work struct {
	Bits           uint32
	Ntime          uint32
	MerkleRootTail uint32
	Midstates      [][core.WORK_MIDSTATE_BYTES]byte
}

// workHeader is the wire layout preceding the midstates, little endian.
type workHeader struct {
	ExtWorkId      uint32
	Bits           uint32
	Ntime          uint32
	MerkleRootTail uint32
}

// solutionFrame is a nonce report on the work channel, little endian.
// Bit 7 of SolutionIdx is always clear, which tells it apart from command responses.
type solutionFrame struct {
	Nonce       uint32
	ExtWorkId   uint16
	SolutionIdx uint8
}

type Solution struct {
	Nonce       uint32
	WorkId      int
	MidstateIdx int
	SolutionIdx int
}
