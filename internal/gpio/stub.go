//go:build !linux

package gpio

import "github.com/sweeney/estop-sensor/internal/pins"

// CdevDriver is not available on non-Linux platforms.
type CdevDriver struct{}

// NewCdevDriver returns an error on non-Linux platforms.
func NewCdevDriver(chip string, s Sampling) (*CdevDriver, error) {
	return nil, ErrUnsupported
}

// Acquire is not implemented on non-Linux platforms.
func (d *CdevDriver) Acquire(mode pins.Mode, pin int, pull pins.Pull) (Line, error) {
	return nil, ErrUnsupported
}

// Close is not implemented on non-Linux platforms.
func (d *CdevDriver) Close() error {
	return nil
}
