package logic

import (
	"testing"
	"time"
)

func TestNewDetector(t *testing.T) {
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(250*time.Millisecond, startTime)
	if d == nil {
		t.Fatal("NewDetector returned nil")
	}
	if d.debounceDuration != 250*time.Millisecond {
		t.Errorf("expected debounce duration 250ms, got %v", d.debounceDuration)
	}
	if d.IsBaselined() {
		t.Error("new detector should not be baselined")
	}
	if d.Stopped() {
		t.Error("new detector should not be stopped")
	}
	if !d.lastHeartbeat.Equal(startTime) {
		t.Errorf("expected lastHeartbeat %v, got %v", startTime, d.lastHeartbeat)
	}
}

func TestBaselineClear(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(250*time.Millisecond, now)

	// First sample - starts observation
	if events := d.Process(Input{Triggered: false, Time: now}); len(events) != 0 {
		t.Errorf("expected no events during baseline, got %d", len(events))
	}

	// Before debounce period
	d.Process(Input{Triggered: false, Time: now.Add(200 * time.Millisecond)})
	if d.IsBaselined() {
		t.Error("should not be baselined before debounce period")
	}

	// After debounce period - baseline established, no events
	events := d.Process(Input{Triggered: false, Time: now.Add(250 * time.Millisecond)})
	if len(events) != 0 {
		t.Errorf("expected no events at clear baseline, got %d", len(events))
	}
	if !d.IsBaselined() {
		t.Error("should be baselined after debounce period")
	}
	if d.CurrentState() != StateClear {
		t.Errorf("expected CLEAR, got %s", d.CurrentState())
	}
}

func TestBaselineTriggeredSendsStop(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(250*time.Millisecond, now)

	d.Process(Input{Triggered: true, Time: now})
	events := d.Process(Input{Triggered: true, Time: now.Add(250 * time.Millisecond)})
	if len(events) != 1 {
		t.Fatalf("expected 1 stop event at triggered baseline, got %d", len(events))
	}
	if events[0].Type != EventStop || events[0].Reason != ReasonTriggered {
		t.Errorf("unexpected event: %+v", events[0])
	}
	if events[0].State != StateTriggered {
		t.Errorf("expected state TRIGGERED, got %s", events[0].State)
	}
	if !d.Stopped() {
		t.Error("stop should be latched")
	}
}

func TestBaselineResetOnChange(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(250*time.Millisecond, now)

	d.Process(Input{Triggered: true, Time: now})
	// Change state before debounce completes
	d.Process(Input{Triggered: false, Time: now.Add(100 * time.Millisecond)})

	// Full debounce from the original time: timer was reset
	d.Process(Input{Triggered: false, Time: now.Add(250 * time.Millisecond)})
	if d.IsBaselined() {
		t.Error("should not be baselined, timer was reset")
	}

	d.Process(Input{Triggered: false, Time: now.Add(350 * time.Millisecond)})
	if !d.IsBaselined() {
		t.Error("should be baselined after debounce from state change")
	}
	if d.CurrentState() != StateClear {
		t.Errorf("expected CLEAR, got %s", d.CurrentState())
	}
}

func TestNoEventsForStableState(t *testing.T) {
	d := setupBaselinedDetector(t, false)
	now := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		events := d.Process(Input{Triggered: false, Time: now.Add(time.Duration(i) * 100 * time.Millisecond)})
		if len(events) != 0 {
			t.Errorf("iteration %d: expected no events for stable state, got %d", i, len(events))
		}
	}
}

func TestTriggerSendsStopOnce(t *testing.T) {
	d := setupBaselinedDetector(t, false)
	now := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)

	d.Process(Input{Triggered: true, Time: now})
	events := d.Process(Input{Triggered: true, Time: now.Add(250 * time.Millisecond)})
	if len(events) != 2 {
		t.Fatalf("expected TRIGGERED and STOP, got %d events", len(events))
	}
	if events[0].Type != EventTriggered {
		t.Errorf("expected TRIGGERED first, got %s", events[0].Type)
	}
	if events[1].Type != EventStop || events[1].Reason != ReasonTriggered {
		t.Errorf("expected STOP with reason %q, got %+v", ReasonTriggered, events[1])
	}
	if !events[1].Timestamp.Equal(now.Add(250 * time.Millisecond)) {
		t.Errorf("unexpected timestamp: %v", events[1].Timestamp)
	}

	// Staying triggered does not resend
	for i := 1; i <= 5; i++ {
		if events := d.Process(Input{Triggered: true, Time: now.Add(time.Duration(i) * time.Second)}); len(events) != 0 {
			t.Errorf("expected no events while latched, got %d", len(events))
		}
	}
}

func TestClearResetsLatch(t *testing.T) {
	d := setupBaselinedDetector(t, false)
	now := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)

	d.Process(Input{Triggered: true, Time: now})
	d.Process(Input{Triggered: true, Time: now.Add(250 * time.Millisecond)})

	t1 := now.Add(time.Second)
	d.Process(Input{Triggered: false, Time: t1})
	events := d.Process(Input{Triggered: false, Time: t1.Add(250 * time.Millisecond)})
	if len(events) != 1 || events[0].Type != EventCleared {
		t.Fatalf("expected single CLEARED event, got %+v", events)
	}
	if d.Stopped() {
		t.Error("clear should reset the latch")
	}

	// Second trip sends again
	t2 := t1.Add(time.Second)
	d.Process(Input{Triggered: true, Time: t2})
	events = d.Process(Input{Triggered: true, Time: t2.Add(250 * time.Millisecond)})
	if len(events) != 2 || events[1].Type != EventStop {
		t.Fatalf("expected TRIGGERED+STOP on second trip, got %+v", events)
	}
}

func TestBounceFiltered(t *testing.T) {
	d := setupBaselinedDetector(t, false)
	now := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)

	d.Process(Input{Triggered: true, Time: now})
	d.Process(Input{Triggered: false, Time: now.Add(100 * time.Millisecond)})
	d.Process(Input{Triggered: true, Time: now.Add(200 * time.Millisecond)})
	events := d.Process(Input{Triggered: true, Time: now.Add(300 * time.Millisecond)})
	if len(events) != 0 {
		t.Errorf("expected no events during bounce, got %d", len(events))
	}

	events = d.Process(Input{Triggered: true, Time: now.Add(450 * time.Millisecond)})
	if len(events) != 2 {
		t.Errorf("expected trigger after 250ms of stable input, got %d events", len(events))
	}
}

func TestDebounceExactTiming(t *testing.T) {
	d := setupBaselinedDetector(t, false)
	now := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)

	d.Process(Input{Triggered: true, Time: now})

	if events := d.Process(Input{Triggered: true, Time: now.Add(249 * time.Millisecond)}); len(events) != 0 {
		t.Error("should not trigger at 249ms")
	}
	if events := d.Process(Input{Triggered: true, Time: now.Add(250 * time.Millisecond)}); len(events) == 0 {
		t.Error("should trigger at exactly 250ms")
	}
}

func TestRecheckWhileTriggeredResends(t *testing.T) {
	d := setupBaselinedDetector(t, true)
	if !d.Stopped() {
		t.Fatal("expected latch after triggered baseline")
	}
	now := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)

	events := d.Recheck(now, true)
	if len(events) != 1 {
		t.Fatalf("expected 1 stop on recheck, got %d", len(events))
	}
	if events[0].Reason != ReasonStillActive {
		t.Errorf("expected reason %q, got %q", ReasonStillActive, events[0].Reason)
	}
	if d.Counts().Stops != 2 {
		t.Errorf("expected 2 stops, got %d", d.Counts().Stops)
	}
}

func TestRecheckClearIsQuiet(t *testing.T) {
	d := setupBaselinedDetector(t, false)
	now := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)

	if events := d.Recheck(now, false); len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestRecheckBeforeBaseline(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(250*time.Millisecond, now)

	if events := d.Recheck(now, true); len(events) != 0 {
		t.Errorf("expected no events before baseline, got %d", len(events))
	}
}

func TestRearm(t *testing.T) {
	d := setupBaselinedDetector(t, true)
	d.Rearm()
	if d.Stopped() {
		t.Error("rearm should clear the latch")
	}
}

// setupBaselinedDetector creates a detector that has already established baseline.
func setupBaselinedDetector(t *testing.T, triggered bool) *Detector {
	t.Helper()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(250*time.Millisecond, now)

	d.Process(Input{Triggered: triggered, Time: now})
	d.Process(Input{Triggered: triggered, Time: now.Add(250 * time.Millisecond)})

	if !d.IsBaselined() {
		t.Fatal("failed to establish baseline")
	}

	return d
}

// Heartbeat tests

func TestEventCountsIncrementOnTransition(t *testing.T) {
	d := setupBaselinedDetector(t, false)
	start := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)

	if d.Counts() != (EventCounts{}) {
		t.Error("event counts should be zero after clear baseline")
	}

	for i := 0; i < 2; i++ {
		t1 := start.Add(time.Duration(i) * 2 * time.Second)
		d.Process(Input{Triggered: true, Time: t1})
		d.Process(Input{Triggered: true, Time: t1.Add(250 * time.Millisecond)})
		t2 := t1.Add(time.Second)
		d.Process(Input{Triggered: false, Time: t2})
		d.Process(Input{Triggered: false, Time: t2.Add(250 * time.Millisecond)})
	}

	want := EventCounts{Triggered: 2, Cleared: 2, Stops: 2}
	if d.Counts() != want {
		t.Errorf("expected %+v, got %+v", want, d.Counts())
	}
}

func TestCheckHeartbeatDisabledWithZeroInterval(t *testing.T) {
	d := setupBaselinedDetector(t, false)
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if hb := d.CheckHeartbeat(startTime.Add(15*time.Minute), 0); hb != nil {
		t.Error("should not return heartbeat when interval is 0 (disabled)")
	}
	if hb := d.CheckHeartbeat(startTime.Add(15*time.Minute), -1*time.Minute); hb != nil {
		t.Error("should not return heartbeat when interval is negative")
	}
}

func TestCheckHeartbeatBeforeBaseline(t *testing.T) {
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(250*time.Millisecond, startTime)

	d.Process(Input{Triggered: false, Time: startTime})

	if hb := d.CheckHeartbeat(startTime.Add(15*time.Minute), 15*time.Minute); hb != nil {
		t.Error("should not return heartbeat before baseline")
	}
}

func TestCheckHeartbeatBeforeInterval(t *testing.T) {
	d := setupBaselinedDetector(t, false)
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if hb := d.CheckHeartbeat(startTime.Add(14*time.Minute), 15*time.Minute); hb != nil {
		t.Error("should not return heartbeat before interval")
	}
}

func TestCheckHeartbeatAtInterval(t *testing.T) {
	d := setupBaselinedDetector(t, false)
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	checkTime := startTime.Add(15 * time.Minute)
	hb := d.CheckHeartbeat(checkTime, 15*time.Minute)
	if hb == nil {
		t.Fatal("should return heartbeat at interval")
	}
	if !hb.Timestamp.Equal(checkTime) {
		t.Errorf("expected timestamp %v, got %v", checkTime, hb.Timestamp)
	}
	if hb.Uptime != 15*time.Minute {
		t.Errorf("expected uptime 15m, got %v", hb.Uptime)
	}
}

func TestCheckHeartbeatUpdatesLastTime(t *testing.T) {
	d := setupBaselinedDetector(t, false)
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t1 := startTime.Add(15 * time.Minute)
	if hb := d.CheckHeartbeat(t1, 15*time.Minute); hb == nil {
		t.Fatal("should return first heartbeat")
	}
	if hb := d.CheckHeartbeat(t1.Add(time.Second), 15*time.Minute); hb != nil {
		t.Error("should not return heartbeat immediately after previous")
	}
	if hb := d.CheckHeartbeat(t1.Add(15*time.Minute), 15*time.Minute); hb == nil {
		t.Error("should return heartbeat after another interval")
	}
}

func TestCheckHeartbeatIncludesCounts(t *testing.T) {
	d := setupBaselinedDetector(t, true)
	startTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	hb := d.CheckHeartbeat(startTime.Add(15*time.Minute), 15*time.Minute)
	if hb == nil {
		t.Fatal("expected heartbeat")
	}
	if hb.Counts.Stops != 1 {
		t.Errorf("expected 1 stop in heartbeat counts, got %d", hb.Counts.Stops)
	}
}
