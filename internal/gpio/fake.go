package gpio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/estop-sensor/internal/pins"
)

// FakeDriver is a test double that returns scripted levels and records every
// acquire and release. Safe for concurrent use.
type FakeDriver struct {
	mu sync.Mutex

	// Levels contains scripted levels, one per ReadLevel call.
	// If levels are exhausted, the last level is returned repeatedly.
	Levels []bool

	// ReadError, if set, will be returned by ReadLevel.
	ReadError error

	// AcquireError, if set, will be returned by Acquire.
	AcquireError error

	// Busy marks BCM line offsets as held elsewhere. A pin is busy in
	// either numbering if its line is listed.
	Busy map[int]bool

	// Block makes ReadLevel wait until its context is done.
	Block bool

	// Acquires and Releases count calls that reached the driver.
	Acquires int
	Releases int

	// LastPull and LastPin record the most recent successful Acquire.
	LastPull pins.Pull
	LastPin  int

	// Closed tracks if Close was called.
	Closed bool

	index   int
	reading chan struct{}
}

// NewFakeDriver creates a FakeDriver with the given levels.
func NewFakeDriver(levels ...bool) *FakeDriver {
	return &FakeDriver{
		Levels:  levels,
		Busy:    make(map[int]bool),
		reading: make(chan struct{}, 64),
	}
}

// Acquire records the claim unless the pin is marked busy.
func (f *FakeDriver) Acquire(mode pins.Mode, pin int, pull pins.Pull) (Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.AcquireError != nil {
		return nil, f.AcquireError
	}
	offset, err := pins.BCMOffset(mode, pin)
	if err != nil {
		return nil, err
	}
	if f.Busy[offset] {
		return nil, fmt.Errorf("%w: line %d", ErrLineBusy, offset)
	}
	f.Acquires++
	f.LastPull = pull
	f.LastPin = pin
	return &fakeLine{driver: f}, nil
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reading returns a channel that receives once per ReadLevel call, as soon
// as the read starts. Tests use it to act while a probe is in flight.
func (f *FakeDriver) Reading() <-chan struct{} {
	return f.reading
}

// SetBlock changes Block while probes may be running. A read already
// blocked keeps waiting on its context.
func (f *FakeDriver) SetBlock(block bool) {
	f.mu.Lock()
	f.Block = block
	f.mu.Unlock()
}

// Counts returns the acquire and release counts.
func (f *FakeDriver) Counts() (acquires, releases int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Acquires, f.Releases
}

// Reset resets the driver to the beginning of levels and clears counters.
func (f *FakeDriver) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
	f.Acquires = 0
	f.Releases = 0
	f.Closed = false
}

func (f *FakeDriver) next() (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return false, f.Block, f.ReadError
	}
	if len(f.Levels) == 0 {
		return false, f.Block, errors.New("no levels configured")
	}
	level := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}
	return level, f.Block, nil
}

type fakeLine struct {
	driver   *FakeDriver
	released bool
}

func (l *fakeLine) ReadLevel(ctx context.Context, window time.Duration) (bool, error) {
	select {
	case l.driver.reading <- struct{}{}:
	default:
	}

	level, block, err := l.driver.next()
	if block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return level, err
}

func (l *fakeLine) Release() error {
	l.driver.mu.Lock()
	defer l.driver.mu.Unlock()
	if l.released {
		return errors.New("line already released")
	}
	l.released = true
	l.driver.Releases++
	return nil
}
