package pins

// Verdict is the outcome of validating a single pin. It is a value type and is
// never mutated after Validate returns it.
type Verdict struct {
	Legal         bool
	Hazard        Hazard
	MaxAllowedPin int
}

// Warning returns a user-facing message for the hazard, or "" for none.
func (v Verdict) Warning() string {
	switch v.Hazard {
	case HazardOutOfRange:
		return "pin number is out of range for this gpio mode"
	case HazardReservedPin:
		return "pin is a power, ground or reserved pin, choose another pin"
	case HazardPullUpConflict:
		return "pin has a fixed pull-up resistor, wire the sensor to ground instead of 3.3V"
	}
	return ""
}

// header describes the pin tables for one addressing mode.
type header struct {
	min, max int
	reserved map[int]bool
	pullUp   map[int]bool
}

var headers = map[Mode]header{
	ModePhysical: {
		min: 1,
		max: 40,
		// 3.3V, 5V and ground pins, plus the ID EEPROM pair (27, 28).
		reserved: set(1, 2, 4, 6, 9, 14, 17, 20, 25, 27, 28, 30, 34, 39),
		pullUp:   set(3, 5),
	},
	ModeBCM: {
		min: 0,
		max: 27,
		// GPIO1 is ID_SC on the HAT EEPROM bus.
		reserved: set(1),
		pullUp:   set(2, 3),
	},
}

func set(pins ...int) map[int]bool {
	m := make(map[int]bool, len(pins))
	for _, p := range pins {
		m[p] = true
	}
	return m
}

// MaxAllowedPin returns the highest pin number for mode, or 0 for unknown modes.
func MaxAllowedPin(mode Mode) int {
	return headers[mode].max
}

// Validate decides whether pin can be used as a sensor input in mode with the
// given wiring. It is total over all ints. Hazard precedence is
// out of range, then reserved, then pull-up conflict.
func Validate(mode Mode, pin int, wiring Wiring) Verdict {
	h, ok := headers[mode]
	if !ok {
		return Verdict{Hazard: HazardOutOfRange}
	}

	v := Verdict{Legal: true, Hazard: HazardNone, MaxAllowedPin: h.max}
	switch {
	case pin < h.min || pin > h.max:
		v.Legal = false
		v.Hazard = HazardOutOfRange
	case h.reserved[pin]:
		v.Legal = false
		v.Hazard = HazardReservedPin
	case wiring == WiringHigh && h.pullUp[pin]:
		// Advisory only: the pin still works, the pull-up fights the wiring.
		v.Hazard = HazardPullUpConflict
	}
	return v
}
