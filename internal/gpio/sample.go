package gpio

import (
	"context"
	"fmt"
	"time"
)

// Sampling controls how a level is settled: the line is read every Interval
// and a level is accepted once Agree consecutive reads return it.
// This replaces a single instantaneous read and filters single-edge noise.
type Sampling struct {
	Interval time.Duration
	Agree    int
}

// DefaultSampling matches the plugin defaults: 5 reads, 100ms apart.
func DefaultSampling() Sampling {
	return Sampling{Interval: 100 * time.Millisecond, Agree: 5}
}

// SampleStable calls read until Agree consecutive equal values are seen.
// It returns ErrNoStableLevel if window elapses first, or the context error
// if ctx is done.
func SampleStable(ctx context.Context, read func() (bool, error), window time.Duration, s Sampling) (bool, error) {
	if s.Agree < 1 {
		s.Agree = 1
	}
	if s.Interval <= 0 {
		s.Interval = time.Millisecond
	}

	deadline := time.NewTimer(window)
	defer deadline.Stop()
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	var prev bool
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		level, err := read()
		if err != nil {
			return false, fmt.Errorf("read level: %w", err)
		}
		if count > 0 && level != prev {
			count = 0
		}
		prev = level
		count++
		if count >= s.Agree {
			return level, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, ErrNoStableLevel
		case <-ticker.C:
		}
	}
}
