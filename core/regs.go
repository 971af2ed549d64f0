package core

// Register offsets inside the I/O block.
const (
	REG_VERSION     = 0x00
	REG_BUILD_ID    = 0x04
	REG_CTRL        = 0x08
	REG_STAT        = 0x0C
	REG_BAUD        = 0x10
	REG_WORK_TIME   = 0x14
	REG_ERR_COUNTER = 0x18

	REG_CMD_RX_FIFO = 0x40
	REG_CMD_TX_FIFO = 0x44
	REG_CMD_CTRL    = 0x48
	REG_CMD_STAT    = 0x4C

	REG_WORK_RX_FIFO = 0x80
	REG_WORK_RX_CTRL = 0x84
	REG_WORK_RX_STAT = 0x88

	REG_WORK_TX_FIFO    = 0xC0
	REG_WORK_TX_CTRL    = 0xC4
	REG_WORK_TX_STAT    = 0xC8
	REG_WORK_TX_IRQ_THR = 0xCC
	REG_WORK_TX_LAST_ID = 0xD0

	REG_BLOCK_SIZE = 0x100
)

// CTRL bits
const (
	CTRL_ENABLE         = 1 << 0
	CTRL_ERR_CNT_CLEAR  = 1 << 1
	CTRL_IRQ_EN         = 1 << 2
	CTRL_RST_CMD        = 1 << 3
	CTRL_RST_WORK_RX    = 1 << 4
	CTRL_RST_WORK_TX    = 1 << 5
	CTRL_MIDSTATE_SHIFT = 6
	CTRL_MIDSTATE_MASK  = 0x3 << CTRL_MIDSTATE_SHIFT
	CTRL_RX_MODE_SHIFT  = 8
	CTRL_RX_MODE_MASK   = 0x3 << CTRL_RX_MODE_SHIFT

	CTRL_PULSES = CTRL_ERR_CNT_CLEAR | CTRL_RST_CMD | CTRL_RST_WORK_RX | CTRL_RST_WORK_TX
	CTRL_MASK   = CTRL_ENABLE | CTRL_PULSES | CTRL_IRQ_EN | CTRL_MIDSTATE_MASK | CTRL_RX_MODE_MASK
)

// MIDSTATE_CNT field values
const (
	MIDSTATE_CNT_1 = 0
	MIDSTATE_CNT_2 = 1
	MIDSTATE_CNT_4 = 2
)

// RX_MODE field values
const (
	RX_MODE_CMD    = 0
	RX_MODE_WORK   = 1
	RX_MODE_FRAMED = 2
)

// Per FIFO block control bits
const (
	FIFO_CTRL_RST_TX = 1 << 0
	FIFO_CTRL_RST_RX = 1 << 1
	FIFO_CTRL_IRQ_EN = 1 << 2

	FIFO_CTRL_PULSES = FIFO_CTRL_RST_TX | FIFO_CTRL_RST_RX
)

// Per FIFO block status bits
const (
	STAT_RX_EMPTY = 1 << 0
	STAT_RX_FULL  = 1 << 1
	STAT_TX_EMPTY = 1 << 2
	STAT_TX_FULL  = 1 << 3
	STAT_IRQ_PEND = 1 << 4
)

const (
	BAUD_MASK      = 0xFFF
	WORK_TIME_MASK = 0xFFFFFF
	IRQ_THR_MASK   = 0x7FF
	LAST_ID_MASK   = 0xFFFF
)

const (
	OVERSAMPLE = 16

	// work item header: work id, nbits, ntime, merkle root tail
	WORK_HEADER_BYTES   = 16
	WORK_MIDSTATE_BYTES = 32

	// response frame length for RX_MODE_FRAMED, bit 7 of the last byte marks a command response
	RESP_FRAME_LEN     = 7
	RESP_CMD_FLAG      = 0x80
	RESP_FRAME_MAX_LEN = 64
)

// MidstateCount returns how many midstates a work item carries for a MIDSTATE_CNT field value.
func MidstateCount(field uint32) int {
	switch field & 0x3 {
	case MIDSTATE_CNT_2:
		return 2
	case MIDSTATE_CNT_4:
		return 4
	default:
		return 1
	}
}

// MidstateField is the inverse of MidstateCount.
func MidstateField(count int) (uint32, bool) {
	switch count {
	case 1:
		return MIDSTATE_CNT_1, true
	case 2:
		return MIDSTATE_CNT_2, true
	case 4:
		return MIDSTATE_CNT_4, true
	}
	return 0, false
}

// WorkItemBytes is the length of one serialized work item.
func WorkItemBytes(midstates int) int {
	return WORK_HEADER_BYTES + WORK_MIDSTATE_BYTES*midstates
}
