// Package mqtt provides MQTT publishing and printer event subscription with
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/estop-sensor/internal/logic"
	"github.com/sweeney/estop-sensor/internal/printer"
	"github.com/sweeney/estop-sensor/internal/session"
)

// Topic is the MQTT topic for sensor events.
const Topic = "estop/sensor/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "estop/sensor/system"

// TopicTests is the MQTT topic for sensor test outcomes.
const TopicTests = "estop/sensor/tests"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a sensor event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// PublishTest sends the outcome of a sensor test.
	PublishTest(outcome session.Outcome) error

	// Close disconnects from the broker.
	Close() error
}

// PrinterEvents delivers OctoPrint events received over MQTT.
type PrinterEvents interface {
	// SubscribePrinter subscribes to every event under prefix. The handler
	// runs on the client's goroutine and must not block.
	SubscribePrinter(prefix string, handler func(printer.Event)) error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Sensor SensorPayload `json:"sensor"`
}

// SensorPayload contains the sensor event details.
type SensorPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	State     string `json:"state"`
	GCode     string `json:"gcode,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// FormatPayload creates the JSON payload for a sensor event. The G-code is
// included on stop events only.
func FormatPayload(event logic.Event, gcode string) ([]byte, error) {
	p := SensorPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
		State:     string(event.State),
	}
	if event.Type == logic.EventStop {
		p.GCode = gcode
		p.Reason = event.Reason
	}
	return json.Marshal(Payload{Sensor: p})
}

// TestPayload represents the MQTT message payload for a sensor test.
type TestPayload struct {
	Test TestPayloadInner `json:"test"`
}

// TestPayloadInner contains the test outcome details.
type TestPayloadInner struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	State     string `json:"state"`
	Mode      string `json:"mode"`
	Pin       int    `json:"pin"`
	Triggered *bool  `json:"triggered,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FormatTestPayload creates the JSON payload for a finished sensor test.
// Triggered is present only for completed tests.
func FormatTestPayload(o session.Outcome) ([]byte, error) {
	inner := TestPayloadInner{
		ID:        o.ID.String(),
		Timestamp: o.Finished.UTC().Format(time.RFC3339),
		State:     string(o.State),
		Mode:      o.Config.Mode.String(),
		Pin:       o.Config.Pin,
		Error:     string(o.Kind()),
	}
	if o.Err == nil {
		triggered := o.Reading.Triggered
		inner.Triggered = &triggered
	}
	return json.Marshal(TestPayload{Test: inner})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillPayload is the last-will message the broker publishes if the daemon
// drops off without a clean shutdown. It has no timestamp.
func WillPayload() string {
	return `{"system":{"event":"OFFLINE","reason":"LWT"}}`
}
