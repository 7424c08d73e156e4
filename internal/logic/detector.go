package logic

import "time"

// Detector debounces sensor readings and decides when to emit a stop.
//
// A stop is latched: once sent it is not repeated for the same trip until
// the sensor clears or Rearm is called.
type Detector struct {
	debounceDuration time.Duration
	ch               ChannelState
	stopped          bool
	startTime        time.Time
	eventCounts      EventCounts
	lastHeartbeat    time.Time
}

// NewDetector creates a new transition detector with the given debounce duration.
// The startTime is used for calculating uptime in heartbeat events.
func NewDetector(debounceDuration time.Duration, startTime time.Time) *Detector {
	return &Detector{
		debounceDuration: debounceDuration,
		startTime:        startTime,
		lastHeartbeat:    startTime,
	}
}

// Process takes a new input sample and returns any events that should be emitted.
// A baseline that settles as triggered emits a stop; after that only debounced
// transitions produce events.
func (d *Detector) Process(input Input) []Event {
	newState := boolToState(input.Triggered)

	if !d.ch.Baselined {
		if d.baseline(newState, input.Time) && d.ch.Stable == StateTriggered {
			return d.stop(input.Time, ReasonTriggered)
		}
		return nil
	}

	if !d.transition(newState, input.Time) {
		return nil
	}

	if d.ch.Stable == StateClear {
		d.stopped = false
		d.eventCounts.Cleared++
		return []Event{{Timestamp: input.Time, Type: EventCleared, State: StateClear}}
	}

	d.eventCounts.Triggered++
	events := []Event{{Timestamp: input.Time, Type: EventTriggered, State: StateTriggered}}
	return append(events, d.stop(input.Time, ReasonTriggered)...)
}

// Recheck handles an out-of-band read requested by a printer event. If the
// sensor is triggered a stop is sent even when one is already latched.
func (d *Detector) Recheck(now time.Time, triggered bool) []Event {
	if !d.ch.Baselined || !triggered {
		return nil
	}
	d.stopped = false
	return d.stop(now, ReasonStillActive)
}

// Rearm clears the stop latch.
func (d *Detector) Rearm() {
	d.stopped = false
}

// Stopped reports whether a stop has been sent for the current trip.
func (d *Detector) Stopped() bool {
	return d.stopped
}

func (d *Detector) stop(now time.Time, reason string) []Event {
	if d.stopped {
		return nil
	}
	d.stopped = true
	d.eventCounts.Stops++
	return []Event{{Timestamp: now, Type: EventStop, State: d.ch.Stable, Reason: reason}}
}

// baseline observes the first stable state. Returns true once established.
func (d *Detector) baseline(newState State, now time.Time) bool {
	ch := &d.ch
	if ch.Pending != newState {
		// First sample, or state changed during baseline: restart
		ch.Pending = newState
		ch.PendingSince = now
		return false
	}

	// Check if debounce period has passed
	if now.Sub(ch.PendingSince) >= d.debounceDuration {
		ch.Stable = newState
		ch.Baselined = true
		ch.Pending = ""
		return true
	}
	return false
}

// transition applies debounce to a baselined channel. Returns true when the
// stable state changed.
func (d *Detector) transition(newState State, now time.Time) bool {
	ch := &d.ch
	if newState == ch.Stable {
		// No change from stable state, clear any pending
		ch.Pending = ""
		return false
	}

	if ch.Pending != newState {
		ch.Pending = newState
		ch.PendingSince = now
		return false
	}

	if now.Sub(ch.PendingSince) >= d.debounceDuration {
		ch.Stable = newState
		ch.Pending = ""
		return true
	}
	return false
}

func boolToState(b bool) State {
	if b {
		return StateTriggered
	}
	return StateClear
}

// IsBaselined returns whether the detector has established a baseline.
func (d *Detector) IsBaselined() bool {
	return d.ch.Baselined
}

// CurrentState returns the current stable state.
func (d *Detector) CurrentState() State {
	return d.ch.Stable
}

// Counts returns the event counts since startup.
func (d *Detector) Counts() EventCounts {
	return d.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if not yet baselined, if the
// interval has not elapsed, or if interval is <= 0 (disabled).
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if !d.ch.Baselined {
		return nil
	}

	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.eventCounts,
	}
}
