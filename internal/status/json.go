package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/estop-sensor/internal/session"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Enabled       bool         `json:"enabled"`
	Sensor        string       `json:"sensor"`
	Stopped       bool         `json:"stopped"`
	Ready         bool         `json:"ready"`
	Printing      bool         `json:"printing"`
	Session       SessionJSON  `json:"session"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// SessionJSON reports the sensor test session.
type SessionJSON struct {
	State    string    `json:"state"`
	LastTest *TestJSON `json:"last_test,omitempty"`
}

// TestJSON is the JSON representation of a finished sensor test.
type TestJSON struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	Triggered *bool  `json:"triggered,omitempty"`
	Error     string `json:"error,omitempty"`
	Finished  string `json:"finished"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Triggered int `json:"triggered"`
	Cleared   int `json:"cleared"`
	Stops     int `json:"stops"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Mode        string `json:"gpio_mode"`
	Pin         int    `json:"pin"`
	Wiring      string `json:"power"`
	Trigger     string `json:"triggered"`
	GCode       string `json:"g_code"`
	Driver      string `json:"driver"`
	PollMs      int64  `json:"poll_ms"`
	DebounceMs  int64  `json:"bounce_time_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
}

// TestToJSON converts a session outcome for display.
func TestToJSON(o session.Outcome) *TestJSON {
	tj := &TestJSON{
		ID:       o.ID.String(),
		State:    string(o.State),
		Error:    string(o.Kind()),
		Finished: o.Finished.UTC().Format(time.RFC3339),
	}
	if o.Err == nil {
		triggered := o.Reading.Triggered
		tj.Triggered = &triggered
	}
	return tj
}

func buildInner(snap Snapshot) StatusInner {
	sensor := string(snap.Sensor)
	if sensor == "" {
		sensor = "UNKNOWN"
	}
	sess := SessionJSON{State: string(snap.Session)}
	if sess.State == "" {
		sess.State = string(session.StateIdle)
	}
	if snap.LastTest != nil {
		sess.LastTest = TestToJSON(*snap.LastTest)
	}

	return StatusInner{
		Enabled:       snap.Config.Enabled(),
		Sensor:        sensor,
		Stopped:       snap.Stopped,
		Ready:         snap.Baselined,
		Printing:      snap.Printing,
		Session:       sess,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Triggered: snap.Counts.Triggered,
			Cleared:   snap.Counts.Cleared,
			Stops:     snap.Counts.Stops,
		},
		Config: ConfigJSON{
			Mode:        snap.Config.Mode,
			Pin:         snap.Config.Pin,
			Wiring:      snap.Config.Wiring,
			Trigger:     snap.Config.Trigger,
			GCode:       snap.Config.GCode,
			Driver:      snap.Config.Driver,
			PollMs:      snap.Config.PollMs,
			DebounceMs:  snap.Config.DebounceMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
