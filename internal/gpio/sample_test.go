package gpio

import (
	"context"
	"errors"
	"testing"
	"time"
)

// scripted returns a read func yielding levels in order, then repeating the last.
func scripted(levels ...bool) (func() (bool, error), *int) {
	calls := 0
	return func() (bool, error) {
		i := calls
		if i >= len(levels) {
			i = len(levels) - 1
		}
		calls++
		return levels[i], nil
	}, &calls
}

func TestSampleStableAgreement(t *testing.T) {
	read, calls := scripted(true, false, false, false)
	s := Sampling{Interval: time.Millisecond, Agree: 3}

	level, err := SampleStable(context.Background(), read, time.Second, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level != false {
		t.Errorf("expected false, got %v", level)
	}
	if *calls != 4 {
		t.Errorf("expected 4 reads, got %d", *calls)
	}
}

func TestSampleStableSingleRead(t *testing.T) {
	read, calls := scripted(true)

	level, err := SampleStable(context.Background(), read, time.Second, Sampling{Agree: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !level || *calls != 1 {
		t.Errorf("expected one read returning true, got %v after %d reads", level, *calls)
	}
}

func TestSampleStableWindowElapses(t *testing.T) {
	flip := false
	read := func() (bool, error) {
		flip = !flip
		return flip, nil
	}
	s := Sampling{Interval: time.Millisecond, Agree: 3}

	_, err := SampleStable(context.Background(), read, 20*time.Millisecond, s)
	if !errors.Is(err, ErrNoStableLevel) {
		t.Errorf("expected ErrNoStableLevel, got %v", err)
	}
}

func TestSampleStableReadError(t *testing.T) {
	boom := errors.New("eio")
	read := func() (bool, error) { return false, boom }

	_, err := SampleStable(context.Background(), read, time.Second, DefaultSampling())
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped read error, got %v", err)
	}
}

func TestSampleStableCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	read := func() (bool, error) {
		cancel()
		return true, nil
	}
	s := Sampling{Interval: time.Millisecond, Agree: 5}

	_, err := SampleStable(ctx, read, time.Second, s)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDefaultSampling(t *testing.T) {
	s := DefaultSampling()
	if s.Agree != 5 || s.Interval != 100*time.Millisecond {
		t.Errorf("unexpected defaults: %+v", s)
	}
}
