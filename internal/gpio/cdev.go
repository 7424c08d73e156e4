//go:build linux

package gpio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/sweeney/estop-sensor/internal/pins"
)

// Consumer is the label the kernel shows for lines we hold.
const Consumer = "estop-sensor"

// CdevDriver claims lines through the Linux GPIO character device.
type CdevDriver struct {
	chip     string
	sampling Sampling
}

// NewCdevDriver creates a driver for the named chip (e.g. "gpiochip0").
func NewCdevDriver(chip string, s Sampling) (*CdevDriver, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	c.Close()
	return &CdevDriver{chip: chip, sampling: s}, nil
}

// Acquire requests the line for (mode, pin). A line that is already used,
// including one configured as an output by another process, is reported as
// ErrLineBusy.
func (d *CdevDriver) Acquire(mode pins.Mode, pin int, pull pins.Pull) (Line, error) {
	offset, err := pins.BCMOffset(mode, pin)
	if err != nil {
		return nil, err
	}

	chip, err := gpiocdev.NewChip(d.chip, gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	info, err := chip.LineInfo(offset)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("line info %d: %w", offset, err)
	}
	if info.Used {
		chip.Close()
		return nil, fmt.Errorf("%w: line %d held by %q", ErrLineBusy, offset, info.Consumer)
	}
	if info.Config.Direction == gpiocdev.LineDirectionOutput {
		chip.Close()
		return nil, fmt.Errorf("%w: line %d configured as output", ErrLineBusy, offset)
	}

	line, err := chip.RequestLine(offset,
		gpiocdev.WithConsumer(Consumer), gpiocdev.AsInput, biasOption(pull))
	if err != nil {
		chip.Close()
		if errors.Is(err, unix.EBUSY) {
			return nil, fmt.Errorf("%w: line %d: %v", ErrLineBusy, offset, err)
		}
		return nil, fmt.Errorf("request line %d: %w", offset, err)
	}

	return &cdevLine{chip: chip, line: line, offset: offset, sampling: d.sampling}, nil
}

// Close is a no-op; chips are opened per claimed line.
func (d *CdevDriver) Close() error {
	return nil
}

func biasOption(p pins.Pull) gpiocdev.LineReqOption {
	switch p {
	case pins.PullUp:
		return gpiocdev.WithPullUp
	case pins.PullDown:
		return gpiocdev.WithPullDown
	}
	return gpiocdev.WithBiasDisabled
}

type cdevLine struct {
	chip     *gpiocdev.Chip
	line     *gpiocdev.Line
	offset   int
	sampling Sampling
}

func (l *cdevLine) ReadLevel(ctx context.Context, window time.Duration) (bool, error) {
	return SampleStable(ctx, func() (bool, error) {
		v, err := l.line.Value()
		if err != nil {
			return false, fmt.Errorf("line %d: %w", l.offset, err)
		}
		return v != 0, nil
	}, window, l.sampling)
}

// Release reconfigures the line to input with pull-down (matching Pi boot
// defaults) before closing, so attached hardware sees a clean state.
func (l *cdevLine) Release() error {
	var err error
	if rerr := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); rerr != nil {
		err = multierr.Append(err, fmt.Errorf("reconfigure line %d: %w", l.offset, rerr))
	}
	if cerr := l.line.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("close line %d: %w", l.offset, cerr))
	}
	if cerr := l.chip.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("close chip: %w", cerr))
	}
	return err
}
