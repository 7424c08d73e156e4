// Package session runs single-flight sensor test probes against a GPIO driver.
//
// A Session allows at most one probe in flight. Each probe claims the sensor
// line, reads it over a bounded window, releases the line on every exit path
// and then reports exactly one terminal Outcome.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/sweeney/estop-sensor/internal/gpio"
	"github.com/sweeney/estop-sensor/internal/pins"
)

// State is a probe lifecycle state.
type State string

const (
	StateIdle      State = "IDLE"
	StateRequested State = "REQUESTED"
	StateInFlight  State = "IN_FLIGHT"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// DefaultWindow bounds a single probe's read.
const DefaultWindow = 2 * time.Second

// releaseGrace is how long past the window a driver may take to honour
// cancellation before the probe gives up on it.
const releaseGrace = 500 * time.Millisecond

var (
	errCancelRequested = errors.New("cancel requested")
	errPreempted       = errors.New("preempted by sensor test")
)

// PrintState reports whether the printer is currently printing.
type PrintState interface {
	Printing() bool
}

// Outcome is the terminal record of a probe.
type Outcome struct {
	ID       ulid.ULID
	Config   pins.Config
	State    State // StateCompleted or StateFailed
	Reading  pins.Reading
	Err      error
	Started  time.Time
	Finished time.Time
}

// Kind returns the error kind of the outcome, KindNone on success.
func (o Outcome) Kind() Kind {
	return KindOf(o.Err)
}

// Option configures a Session.
type Option func(*Session)

// WithWindow sets the read window. Non-positive values are ignored.
func WithWindow(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithPrintState makes Start refuse to run while p reports printing.
func WithPrintState(p PrintState) Option {
	return func(s *Session) {
		s.printing = p
	}
}

// WithClock overrides the time source used for outcome timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// Session is the single-flight probe runner for one sensor.
type Session struct {
	driver   gpio.Driver
	window   time.Duration
	printing PrintState
	now      func() time.Time

	mu      sync.Mutex
	state   State
	current *Probe
	last    *Outcome
}

// New creates an idle Session over driver.
func New(driver gpio.Driver, opts ...Option) *Session {
	s := &Session{
		driver: driver,
		window: DefaultWindow,
		now:    time.Now,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches a user test for cfg. It fails without touching hardware if
// cfg does not validate, if a print is running, or if another user test is in
// flight. The in-flight test is never affected by a rejected Start.
// A monitor probe in flight is cancelled, and Start waits for it to release
// its line before claiming the slot.
// Cancelling ctx cancels the probe the same way Cancel does.
func (s *Session) Start(ctx context.Context, cfg pins.Config) (*Probe, error) {
	return s.start(ctx, cfg, false)
}

// Monitor launches a probe for the background sensor monitor. It is allowed
// while printing, since that is when the sensor matters most. It shares the
// single-flight slot with Start and yields to it: Monitor fails with
// ErrSessionBusy while a user test runs, and a user test preempts it.
func (s *Session) Monitor(ctx context.Context, cfg pins.Config) (*Probe, error) {
	return s.start(ctx, cfg, true)
}

func (s *Session) start(ctx context.Context, cfg pins.Config, monitor bool) (*Probe, error) {
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPinConfiguration, err)
	}
	if !monitor && s.printing != nil && s.printing.Printing() {
		return nil, ErrPrintInProgress
	}

	s.mu.Lock()
	for s.current != nil {
		cur := s.current
		if monitor || !cur.monitor {
			s.mu.Unlock()
			return nil, ErrSessionBusy
		}
		s.mu.Unlock()
		cur.cancel(errPreempted)
		<-cur.done
		s.mu.Lock()
	}
	pctx, cancel := context.WithCancelCause(ctx)
	p := &Probe{
		id:      ulid.Make(),
		cfg:     cfg,
		monitor: monitor,
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	s.current = p
	if !monitor {
		s.state = StateRequested
	}
	s.mu.Unlock()

	go s.run(pctx, p)
	return p, nil
}

// Cancel cancels the in-flight user test and waits until it has released its
// line and reported Failed(Cancelled). Returns false if no user test was in
// flight. Monitor probes are left alone; their context controls them.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	p := s.current
	s.mu.Unlock()
	if p == nil || p.monitor {
		return false
	}
	p.cancel(errCancelRequested)
	<-p.done
	return true
}

// State returns the lifecycle state of user tests. After a test finishes it
// reports that test's terminal state until the next Start. Monitor probes do
// not show here.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Last returns the most recent user test outcome, if any.
func (s *Session) Last() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Outcome{}, false
	}
	return *s.last, true
}

func (s *Session) run(ctx context.Context, p *Probe) {
	out := Outcome{ID: p.id, Config: p.cfg, Started: s.now()}

	if !p.monitor {
		s.mu.Lock()
		s.state = StateInFlight
		s.mu.Unlock()
	}

	reading, err := s.probe(ctx, p.cfg)
	out.Finished = s.now()
	out.Reading = reading
	out.Err = err
	if err != nil {
		out.State = StateFailed
	} else {
		out.State = StateCompleted
	}

	s.mu.Lock()
	s.current = nil
	if !p.monitor {
		s.state = out.State
		s.last = &out
	}
	s.mu.Unlock()

	p.cancel(nil)
	p.outcome = out
	close(p.done)
}

// probe holds the line for the duration of one read. The deferred release
// runs before the outcome is published.
func (s *Session) probe(ctx context.Context, cfg pins.Config) (pins.Reading, error) {
	line, err := s.driver.Acquire(cfg.Mode, cfg.Pin, cfg.Pull())
	if err != nil {
		if errors.Is(err, gpio.ErrLineBusy) {
			return pins.Reading{}, fmt.Errorf("%w: %w", ErrPinInUse, err)
		}
		return pins.Reading{}, fmt.Errorf("%w: acquire %s pin %d: %w", ErrHardware, cfg.Mode, cfg.Pin, err)
	}
	defer func() {
		if err := line.Release(); err != nil {
			zap.S().Warnf("session: release %s pin %d: %v", cfg.Mode, cfg.Pin, err)
		}
	}()

	rctx, cancel := context.WithTimeout(ctx, s.window+releaseGrace)
	defer cancel()

	level, err := line.ReadLevel(rctx, s.window)
	if ctx.Err() != nil {
		return pins.Reading{}, fmt.Errorf("%w: %v", ErrCancelled, context.Cause(ctx))
	}
	if err != nil {
		return pins.Reading{}, fmt.Errorf("%w: read %s pin %d: %w", ErrHardware, cfg.Mode, cfg.Pin, err)
	}
	return cfg.Read(level), nil
}

// Probe is a handle on one in-flight or finished test.
type Probe struct {
	id      ulid.ULID
	cfg     pins.Config
	monitor bool
	done    chan struct{}
	cancel  context.CancelCauseFunc
	outcome Outcome
}

// ID returns the probe's unique, time-ordered identifier.
func (p *Probe) ID() ulid.ULID {
	return p.id
}

// Done is closed once the outcome is available and the line is released.
func (p *Probe) Done() <-chan struct{} {
	return p.done
}

// Outcome returns the terminal outcome, or false if the probe is still running.
func (p *Probe) Outcome() (Outcome, bool) {
	select {
	case <-p.done:
		return p.outcome, true
	default:
		return Outcome{}, false
	}
}

// Wait blocks until the probe finishes or ctx is done. Cancelling ctx does
// not cancel the probe; use Session.Cancel for that.
func (p *Probe) Wait(ctx context.Context) (pins.Reading, error) {
	select {
	case <-p.done:
		return p.outcome.Reading, p.outcome.Err
	case <-ctx.Done():
		return pins.Reading{}, ctx.Err()
	}
}
