package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sweeney/estop-sensor/internal/logic"
	"github.com/sweeney/estop-sensor/internal/pins"
	"github.com/sweeney/estop-sensor/internal/printer"
	"github.com/sweeney/estop-sensor/internal/session"
)

func TestFormatPayload(t *testing.T) {
	event := logic.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Type:      logic.EventTriggered,
		State:     logic.StateTriggered,
	}

	payload, err := FormatPayload(event, "M112")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Sensor.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Sensor.Timestamp)
	}
	if parsed.Sensor.Event != "TRIGGERED" {
		t.Errorf("unexpected event: %s", parsed.Sensor.Event)
	}
	if parsed.Sensor.State != "TRIGGERED" {
		t.Errorf("unexpected state: %s", parsed.Sensor.State)
	}
	if parsed.Sensor.GCode != "" {
		t.Errorf("gcode should be omitted on transitions, got %q", parsed.Sensor.GCode)
	}
}

func TestFormatPayloadStopExactJSON(t *testing.T) {
	event := logic.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Type:      logic.EventStop,
		State:     logic.StateTriggered,
		Reason:    logic.ReasonTriggered,
	}

	payload, err := FormatPayload(event, "M112")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"sensor":{"timestamp":"2026-02-02T22:18:12Z","event":"STOP","state":"TRIGGERED","gcode":"M112","reason":"Triggered!"}}`
	if string(payload) != expected {
		t.Errorf("payload mismatch:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	event := logic.Event{
		Timestamp: time.Date(2026, 2, 3, 0, 18, 12, 0, loc),
		Type:      logic.EventCleared,
		State:     logic.StateClear,
	}

	payload, _ := FormatPayload(event, "")
	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Sensor.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.Sensor.Timestamp)
	}
}

func TestFormatTestPayloadCompleted(t *testing.T) {
	o := session.Outcome{
		ID:       ulid.Make(),
		Config:   pins.Config{Mode: pins.ModePhysical, Pin: 40, Wiring: pins.WiringGround, Trigger: pins.TriggerHigh},
		State:    session.StateCompleted,
		Reading:  pins.Reading{Triggered: true, Level: true},
		Finished: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
	}

	payload, err := FormatTestPayload(o)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := fmt.Sprintf(`{"test":{"id":"%s","timestamp":"2026-02-02T22:18:12Z","state":"COMPLETED","mode":"physical","pin":40,"triggered":true}}`, o.ID)
	if string(payload) != expected {
		t.Errorf("payload mismatch:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatTestPayloadFailed(t *testing.T) {
	o := session.Outcome{
		ID:     ulid.Make(),
		Config: pins.Config{Mode: pins.ModeBCM, Pin: 4},
		State:  session.StateFailed,
		Err:    fmt.Errorf("%w: eio", session.ErrHardware),
	}

	payload, _ := FormatTestPayload(o)
	var parsed TestPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Test.Triggered != nil {
		t.Error("triggered must be absent on failure")
	}
	if parsed.Test.Error != "hardware_error" {
		t.Errorf("unexpected error kind: %s", parsed.Test.Error)
	}
	if parsed.Test.Mode != "bcm" {
		t.Errorf("unexpected mode: %s", parsed.Test.Mode)
	}
}

func TestTopics(t *testing.T) {
	if Topic != "estop/sensor/events" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "estop/sensor/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
	if TopicTests != "estop/sensor/tests" {
		t.Errorf("unexpected tests topic: %s", TopicTests)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-02T22:18:12Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("payload mismatch:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadOmitsReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Event:     "RECONNECTED",
	}

	payload, _ := FormatSystemPayload(event)
	expected := `{"system":{"timestamp":"2026-02-02T22:18:12Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("payload mismatch:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"HEARTBEAT"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload should pass through, got %s", payload)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	var parsed SystemPayload
	if err := json.Unmarshal([]byte(WillPayload()), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Event != "OFFLINE" {
		t.Errorf("expected OFFLINE, got %s", parsed.System.Event)
	}
	if parsed.System.Reason != "LWT" {
		t.Errorf("expected LWT, got %s", parsed.System.Reason)
	}
	if parsed.System.Timestamp != "" {
		t.Error("will payload should not carry a timestamp")
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	events := []logic.Event{
		{Timestamp: time.Now(), Type: logic.EventTriggered, State: logic.StateTriggered},
		{Timestamp: time.Now(), Type: logic.EventStop, State: logic.StateTriggered, Reason: logic.ReasonTriggered},
	}
	for _, e := range events {
		if err := f.Publish(e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	types := f.EventTypes()
	if len(types) != 2 || types[0] != logic.EventTriggered || types[1] != logic.EventStop {
		t.Errorf("unexpected event types: %v", types)
	}
	if len(f.Payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(f.Payloads))
	}

	var parsed Payload
	if err := json.Unmarshal(f.Payloads[1], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Sensor.GCode != "M112" {
		t.Errorf("expected default gcode M112, got %q", parsed.Sensor.GCode)
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("connection lost")

	err := f.Publish(logic.Event{Type: logic.EventStop})
	if err == nil {
		t.Error("expected error")
	}
	if len(f.Events) != 0 {
		t.Error("failed publish should not record event")
	}
}

func TestFakePublisherPublishSystemError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishSystemError = errors.New("broker down")

	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Error("expected error")
	}
	if len(f.SystemEventNames()) != 0 {
		t.Error("failed publish should not record system event")
	}
}

func TestFakePublisherPublishTest(t *testing.T) {
	f := NewFakePublisher()
	if err := f.PublishTest(session.Outcome{State: session.StateCompleted}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.TestCount() != 1 {
		t.Errorf("expected 1 test outcome, got %d", f.TestCount())
	}
}

func TestFakePublisherEmit(t *testing.T) {
	f := NewFakePublisher()
	if f.Emit("octoPrint/event/Home") {
		t.Error("emit without subscription should report false")
	}

	var got []printer.Event
	if err := f.SubscribePrinter("octoPrint/event", func(ev printer.Event) { got = append(got, ev) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !f.Emit("octoPrint/event/PrintStarted") {
		t.Error("expected event to be delivered")
	}
	if f.Emit("octoPrint/progress/printing") {
		t.Error("non-event topic should not be delivered")
	}
	if len(got) != 1 || got[0] != printer.EventPrintStarted {
		t.Errorf("unexpected events: %v", got)
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(logic.Event{Type: logic.EventTriggered})
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.PublishTest(session.Outcome{})
	f.Close()
	f.Connected = true

	f.Reset()

	if len(f.Events) != 0 || len(f.Payloads) != 0 || len(f.SystemEvents) != 0 || len(f.Tests) != 0 {
		t.Error("reset should clear recorded messages")
	}
	if f.Closed || f.Connected {
		t.Error("reset should clear flags")
	}

	// Reusable after reset
	if err := f.Publish(logic.Event{Type: logic.EventCleared}); err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
	if len(f.Events) != 1 {
		t.Errorf("expected 1 event after reset, got %d", len(f.Events))
	}
}

func TestFakePublisherRecordsRetainedFlag(t *testing.T) {
	f := NewFakePublisher()
	f.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true})
	if !f.SystemEvents[0].Retained {
		t.Error("retained flag should be recorded")
	}
}
