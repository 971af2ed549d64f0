package util

import (
	"fmt"
	"strconv"
	"strings"
)

// MergeByteLanes replaces the bytes of old selected by strobe (bit n selects byte n) with those of v.
func MergeByteLanes(old, v uint32, strobe uint8) uint32 {
	var mask uint32
	for lane := 0; lane < 4; lane++ {
		if strobe&(1<<lane) != 0 {
			mask |= 0xff << (8 * lane)
		}
	}
	return old&^mask | v&mask
}

func SaturatingInc(v uint32) uint32 {
	if v == ^uint32(0) {
		return v
	}
	return v + 1
}

func HexStringFromNumber(nBytes int, x uint64) string {
	if nBytes <= 0 {
		return "00"
	}

	ndigits := nBytes * 2 // each byte holds two hex digits
	fmtStr := fmt.Sprintf("%%0%dx", ndigits)
	b := fmt.Sprintf(fmtStr, x)

	l := len(b)
	if l > ndigits {
		return b[l-ndigits:]
	}
	return b
}

// ParseUint32 accepts decimal, 0x hex, 0o octal and 0b binary forms.
func ParseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
