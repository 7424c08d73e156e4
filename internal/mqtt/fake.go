package mqtt

import (
	"strings"
	"sync"

	"github.com/sweeney/estop-sensor/internal/logic"
	"github.com/sweeney/estop-sensor/internal/printer"
	"github.com/sweeney/estop-sensor/internal/session"
)

// FakePublisher records published events for test assertions.
// Safe for concurrent use; read the recorded slices after the publishers
// have finished or through the accessor methods.
type FakePublisher struct {
	mu sync.Mutex

	// GCode is included in stop payloads.
	GCode string

	// Events contains all sensor events that were published.
	Events []logic.Event

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// Tests contains all test outcomes that were published.
	Tests []session.Outcome

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	prefix    string
	onPrinter func(printer.Event)
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{GCode: "M112"}
}

// Publish records the sensor event.
func (f *FakePublisher) Publish(event logic.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(event, f.GCode)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// PublishTest records the test outcome.
func (f *FakePublisher) PublishTest(outcome session.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Tests = append(f.Tests, outcome)
	return nil
}

// SubscribePrinter stores the handler for Emit.
func (f *FakePublisher) SubscribePrinter(prefix string, handler func(printer.Event)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	f.prefix = prefix
	f.onPrinter = handler
	return nil
}

// Emit simulates a message arriving on topic. Returns false if nothing is
// subscribed or the topic is not a printer event.
func (f *FakePublisher) Emit(topic string) bool {
	f.mu.Lock()
	prefix, handler := f.prefix, f.onPrinter
	f.mu.Unlock()
	if handler == nil {
		return false
	}
	ev, ok := printer.EventFromTopic(prefix, topic)
	if !ok {
		return false
	}
	handler(ev)
	return true
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// EventTypes returns the types of the recorded sensor events, in order.
func (f *FakePublisher) EventTypes() []logic.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]logic.EventType, len(f.Events))
	for i, e := range f.Events {
		types[i] = e.Type
	}
	return types
}

// SystemEventNames returns the names of the recorded system events, in order.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// TestCount returns the number of recorded test outcomes.
func (f *FakePublisher) TestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Tests)
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Tests = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
