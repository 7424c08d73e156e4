// Package status provides a thread-safe status tracker for the estop-sensor daemon.
// It is read by HTTP handlers and by the heartbeat publisher.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/estop-sensor/internal/logic"
	"github.com/sweeney/estop-sensor/internal/session"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Mode        string
	Pin         int // 0 = monitoring disabled
	Wiring      string
	Trigger     string
	GCode       string
	Driver      string
	PollMs      int64
	DebounceMs  int64
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
}

// Enabled reports whether a sensor pin is configured.
func (c Config) Enabled() bool {
	return c.Pin != 0
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Sensor        logic.State
	Baselined     bool
	Stopped       bool
	Counts        logic.EventCounts
	Printing      bool
	Session       session.State
	LastTest      *session.Outcome
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Session:   session.StateIdle,
		},
	}
}

// Update sets the sensor state, baseline and latch status, and event counts.
// Called from the monitor loop on every tick.
func (t *Tracker) Update(sensor logic.State, baselined, stopped bool, counts logic.EventCounts) {
	t.mu.Lock()
	t.snap.Sensor = sensor
	t.snap.Baselined = baselined
	t.snap.Stopped = stopped
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetPrinting sets whether a print job is running.
func (t *Tracker) SetPrinting(printing bool) {
	t.mu.Lock()
	t.snap.Printing = printing
	t.mu.Unlock()
}

// SetSession sets the sensor test session state.
func (t *Tracker) SetSession(state session.State) {
	t.mu.Lock()
	t.snap.Session = state
	t.mu.Unlock()
}

// RecordTest stores the outcome of a user-requested sensor test.
func (t *Tracker) RecordTest(o session.Outcome) {
	t.mu.Lock()
	t.snap.LastTest = &o
	t.snap.Session = o.State
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.LastTest != nil {
		o := *s.LastTest
		s.LastTest = &o
	}
	s.Now = time.Now()
	return s
}
