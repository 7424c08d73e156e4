package gpio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/pin"
	"periph.io/x/host/v3"

	"github.com/sweeney/estop-sensor/internal/pins"
)

// PeriphDriver claims lines through periph.io's memory-mapped or sysfs
// drivers. It is an alternative for kernels without the character device.
// periph has no cross-process line ownership, so busy detection covers lines
// held by this driver and pins already switched to an output function.
type PeriphDriver struct {
	sampling Sampling

	mu      sync.Mutex
	claimed map[int]bool
}

// NewPeriphDriver initialises the periph host drivers.
func NewPeriphDriver(s Sampling) (*PeriphDriver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	return &PeriphDriver{sampling: s, claimed: make(map[int]bool)}, nil
}

// Acquire configures the pin through the periph registry.
func (d *PeriphDriver) Acquire(mode pins.Mode, n int, pull pins.Pull) (Line, error) {
	offset, err := pins.BCMOffset(mode, n)
	if err != nil {
		return nil, err
	}

	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", offset))
	if p == nil {
		return nil, fmt.Errorf("gpio%d: not found in periph registry", offset)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.claimed[offset] {
		return nil, fmt.Errorf("%w: gpio%d already claimed", ErrLineBusy, offset)
	}
	if isOutput(p) {
		return nil, fmt.Errorf("%w: gpio%d configured as output", ErrLineBusy, offset)
	}

	if err := p.In(periphPull(pull), pgpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure gpio%d: %w", offset, err)
	}

	d.claimed[offset] = true
	return &periphLine{driver: d, pin: p, offset: offset}, nil
}

// Close halts nothing; claimed lines are released individually.
func (d *PeriphDriver) Close() error {
	return nil
}

func (d *PeriphDriver) release(offset int) {
	d.mu.Lock()
	delete(d.claimed, offset)
	d.mu.Unlock()
}

func isOutput(p pgpio.PinIO) bool {
	pf, ok := p.(pin.PinFunc)
	if !ok {
		return false
	}
	return strings.HasPrefix(string(pf.Func()), string(pgpio.OUT))
}

func periphPull(p pins.Pull) pgpio.Pull {
	switch p {
	case pins.PullUp:
		return pgpio.PullUp
	case pins.PullDown:
		return pgpio.PullDown
	}
	return pgpio.Float
}

type periphLine struct {
	driver *PeriphDriver
	pin    pgpio.PinIO
	offset int
}

func (l *periphLine) ReadLevel(ctx context.Context, window time.Duration) (bool, error) {
	return SampleStable(ctx, func() (bool, error) {
		return l.pin.Read() == pgpio.High, nil
	}, window, l.driver.sampling)
}

// Release returns the pin to input with pull-down, the Pi boot default.
func (l *periphLine) Release() error {
	defer l.driver.release(l.offset)
	if err := l.pin.In(pgpio.PullDown, pgpio.NoEdge); err != nil {
		return fmt.Errorf("reset gpio%d: %w", l.offset, err)
	}
	return nil
}
