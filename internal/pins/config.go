package pins

import "fmt"

// Config is a validated sensor pin configuration.
type Config struct {
	Mode    Mode
	Pin     int
	Wiring  Wiring
	Trigger TriggerLevel
}

// NewConfig builds a Config only if the pin validates as legal.
// The verdict is returned in both cases so callers can render warnings.
func NewConfig(mode Mode, pin int, wiring Wiring, trigger TriggerLevel) (Config, Verdict, error) {
	c := Config{Mode: mode, Pin: pin, Wiring: wiring, Trigger: trigger}
	v := Validate(mode, pin, wiring)
	if err := c.check(v); err != nil {
		return Config{}, v, err
	}
	return c, v, nil
}

// Check re-validates c from scratch.
func (c Config) Check() error {
	return c.check(Validate(c.Mode, c.Pin, c.Wiring))
}

func (c Config) check(v Verdict) error {
	if c.Wiring != WiringGround && c.Wiring != WiringHigh {
		return fmt.Errorf("%w: %s", ErrInvalid, c.Wiring)
	}
	switch c.Trigger {
	case TriggerAuto, TriggerHigh, TriggerLow:
	default:
		return fmt.Errorf("%w: trigger level %q", ErrInvalid, c.Trigger)
	}
	if !v.Legal {
		return fmt.Errorf("%w: %s pin %d: %s", ErrInvalid, c.Mode, c.Pin, v.Hazard)
	}
	return nil
}

// Pull returns the bias implied by the wiring: a grounded switch needs the
// line pulled up, a 3.3V switch needs it pulled down.
func (c Config) Pull() Pull {
	if c.Wiring == WiringHigh {
		return PullDown
	}
	return PullUp
}

// ExpectedLevel returns the level that counts as triggered.
func (c Config) ExpectedLevel() bool {
	switch c.Trigger {
	case TriggerHigh:
		return true
	case TriggerLow:
		return false
	}
	return autoLevel(c.Wiring)
}

// Read converts an observed level into a Reading.
func (c Config) Read(level bool) Reading {
	return Reading{Level: level, Triggered: level == c.ExpectedLevel()}
}

func (c Config) String() string {
	return fmt.Sprintf("%s pin %d (%s wiring, trigger %s)", c.Mode, c.Pin, c.Wiring, c.Trigger)
}
