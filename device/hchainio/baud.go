package hchainio

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// CalcBaudClockDiv returns the BAUD_REG divisor closest to baudRate and the
// rate it actually produces: clk / (baseDiv * (div + 1)).
func CalcBaudClockDiv(baudRate int, clk physic.Frequency, baseDiv int) (uint32, int, error) {
	hz := int64(clk / physic.Hertz)
	if baudRate <= 0 || baseDiv <= 0 || hz <= 0 {
		return 0, 0, fmt.Errorf("%w: requested %d baud from %v", ErrBaudRate, baudRate, clk)
	}
	br := int64(baudRate)
	bd := int64(baseDiv)
	// rounded in fixed point
	div := (10*hz/(bd*br)+5)/10 - 1
	if div < 0 {
		div = 0
	}
	if div > 0xFFF {
		return 0, 0, fmt.Errorf("%w: requested %d baud, divisor %d does not fit", ErrBaudRate, baudRate, div)
	}
	actual := hz / (bd * (div + 1))
	diff := actual - br
	if diff < 0 {
		diff = -diff
	}
	if diff > MAX_BAUD_RATE_ERR_PERC*br/100 {
		return 0, 0, fmt.Errorf("%w: requested %d baud, resulting %d baud", ErrBaudRate, baudRate, actual)
	}
	return uint32(div), int(actual), nil
}
