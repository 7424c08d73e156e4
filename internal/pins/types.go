// Package pins decides whether a GPIO pin number can carry a sensor input on a
// Raspberry Pi 40-pin header. It has NO I/O and NO state: every answer is
// derived from (mode, pin, wiring) on each call.
package pins

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects how pin numbers are interpreted.
// The values match the legacy settings codes (10 = BOARD, 11 = BCM).
type Mode int

const (
	ModePhysical Mode = 10 // header silkscreen numbering, 1-40
	ModeBCM      Mode = 11 // Broadcom SoC numbering, 0-27
)

func (m Mode) String() string {
	switch m {
	case ModePhysical:
		return "physical"
	case ModeBCM:
		return "bcm"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Wiring describes what the sensor switch connects the pin to.
// The values match the legacy "power" setting (0 = ground, 1 = 3.3V).
type Wiring int

const (
	WiringGround Wiring = 0
	WiringHigh   Wiring = 1
)

func (w Wiring) String() string {
	switch w {
	case WiringGround:
		return "ground"
	case WiringHigh:
		return "high"
	}
	return fmt.Sprintf("wiring(%d)", int(w))
}

// Pull is the bias resistor applied to an input line.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	}
	return "none"
}

// TriggerLevel is the input level that counts as "triggered".
type TriggerLevel string

const (
	// TriggerAuto is triggered when the switch connects the pin to its
	// reference: low for ground wiring, high for 3.3V wiring.
	TriggerAuto TriggerLevel = "auto"
	TriggerHigh TriggerLevel = "high"
	TriggerLow  TriggerLevel = "low"
)

// Hazard classifies why a pin is unusable or risky.
type Hazard string

const (
	HazardNone           Hazard = "none"
	HazardPullUpConflict Hazard = "pull_up_conflict"
	HazardReservedPin    Hazard = "reserved_pin"
	HazardOutOfRange     Hazard = "out_of_range"
)

// Reading is the result of a completed sensor probe.
type Reading struct {
	Triggered bool
	Level     bool // true = high
}

// ErrInvalid is returned when a configuration cannot be built.
var ErrInvalid = errors.New("invalid pin configuration")

// ParseMode accepts "physical", "board", "bcm" and the legacy codes "10"/"11".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "physical", "board", "10":
		return ModePhysical, nil
	case "bcm", "11":
		return ModeBCM, nil
	}
	return 0, fmt.Errorf("%w: unknown gpio mode %q", ErrInvalid, s)
}

// ParseWiring accepts "ground", "high" and the legacy codes "0"/"1".
func ParseWiring(s string) (Wiring, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ground", "gnd", "0":
		return WiringGround, nil
	case "high", "3.3v", "3v3", "1":
		return WiringHigh, nil
	}
	return 0, fmt.Errorf("%w: unknown wiring %q", ErrInvalid, s)
}

// ParseTrigger accepts "auto", "high", "low" (empty means auto) and the
// legacy codes: "0" triggers when the switch closes (auto), "1" when it opens.
func ParseTrigger(s string, w Wiring) (TriggerLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto", "0":
		return TriggerAuto, nil
	case "high":
		return TriggerHigh, nil
	case "low":
		return TriggerLow, nil
	case "1":
		if autoLevel(w) {
			return TriggerLow, nil
		}
		return TriggerHigh, nil
	}
	return "", fmt.Errorf("%w: unknown trigger level %q", ErrInvalid, s)
}

func autoLevel(w Wiring) bool {
	return w == WiringHigh
}
