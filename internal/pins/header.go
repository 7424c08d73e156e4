package pins

import "fmt"

// physicalToBCM maps 40-pin header positions to Broadcom line offsets.
// Power and ground positions are absent.
var physicalToBCM = map[int]int{
	3: 2, 5: 3, 7: 4, 8: 14, 10: 15, 11: 17, 12: 18, 13: 27,
	15: 22, 16: 23, 18: 24, 19: 10, 21: 9, 22: 25, 23: 11, 24: 8,
	26: 7, 27: 0, 28: 1, 29: 5, 31: 6, 32: 12, 33: 13, 35: 19,
	36: 16, 37: 26, 38: 20, 40: 21,
}

// BCMOffset returns the gpiochip line offset for pin in mode.
func BCMOffset(mode Mode, pin int) (int, error) {
	switch mode {
	case ModeBCM:
		if pin < 0 || pin > MaxAllowedPin(ModeBCM) {
			return 0, fmt.Errorf("%w: bcm pin %d out of range", ErrInvalid, pin)
		}
		return pin, nil
	case ModePhysical:
		off, ok := physicalToBCM[pin]
		if !ok {
			return 0, fmt.Errorf("%w: physical pin %d is not a gpio", ErrInvalid, pin)
		}
		return off, nil
	}
	return 0, fmt.Errorf("%w: unknown gpio mode %s", ErrInvalid, mode)
}
