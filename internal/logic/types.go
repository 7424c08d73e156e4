// Package logic contains pure business logic for emergency-stop sensor tracking.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the logical state of the sensor.
type State string

const (
	StateTriggered State = "TRIGGERED"
	StateClear     State = "CLEAR"
)

// EventType represents something to be published.
type EventType string

const (
	// EventTriggered and EventCleared are debounced sensor transitions.
	EventTriggered EventType = "TRIGGERED"
	EventCleared   EventType = "CLEARED"
	// EventStop asks the printer host to run the emergency-stop G-code.
	EventStop EventType = "STOP"
)

// Stop reasons, shown to the operator alongside the G-code.
const (
	ReasonTriggered   = "Triggered!"
	ReasonStillActive = "Emergency stop is still active! Please reset!"
)

// Event represents a sensor event to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	State     State
	// Reason is set on EventStop only.
	Reason string
}

// ChannelState tracks debounce state for the sensor.
type ChannelState struct {
	// Current stable (debounced) state
	Stable State
	// Pending state during debounce
	Pending State
	// Time when pending state was first observed
	PendingSince time.Time
	// Whether we have established a baseline
	Baselined bool
}

// Input represents a single sample of the sensor.
type Input struct {
	Triggered bool // already resolved against wiring and trigger level
	Time      time.Time
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Triggered int
	Cleared   int
	Stops     int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
