// Package gpio provides exclusive, single-line GPIO input access with hardware abstraction.
// The real implementations use the Linux GPIO character device or periph.io.
// The fake implementation allows testing without hardware.
package gpio

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/estop-sensor/internal/pins"
)

var (
	// ErrLineBusy means the line is already requested by another consumer
	// or configured as an output elsewhere.
	ErrLineBusy = errors.New("gpio: line busy")

	// ErrNoStableLevel means no level held for the required number of
	// consecutive samples within the read window.
	ErrNoStableLevel = errors.New("gpio: no stable level within window")

	// ErrUnsupported is returned on platforms without GPIO support.
	ErrUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")
)

// Driver hands out exclusive claims on single GPIO lines.
type Driver interface {
	// Acquire claims the line for (mode, pin) as an input with the given
	// pull. Fails with ErrLineBusy if the line is claimed by someone else.
	Acquire(mode pins.Mode, pin int, pull pins.Pull) (Line, error)

	// Close releases driver resources.
	Close() error
}

// Line is a claimed GPIO line.
type Line interface {
	// ReadLevel samples the line until it settles or the window elapses.
	// Returns true for high.
	ReadLevel(ctx context.Context, window time.Duration) (bool, error)

	// Release gives the line back. It must be called exactly once.
	Release() error
}
