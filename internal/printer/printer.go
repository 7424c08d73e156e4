// Package printer tracks the host printer's state from OctoPrint events.
package printer

import (
	"strings"
	"sync"
)

// Event is an OctoPrint event name as published by its MQTT plugin.
type Event string

const (
	EventHome           Event = "Home"
	EventZChange        Event = "ZChange"
	EventConnected      Event = "Connected"
	EventPrintStarted   Event = "PrintStarted"
	EventPrintResumed   Event = "PrintResumed"
	EventPrintDone      Event = "PrintDone"
	EventPrintFailed    Event = "PrintFailed"
	EventPrintCancelled Event = "PrintCancelled"
	EventError          Event = "Error"
	EventEStop          Event = "EStop"
	EventClientOpened   Event = "ClientOpened"
)

// Effect tells the monitor what an event requires of it.
type Effect struct {
	// Rearm clears the stop latch so the next trigger sends G-code again.
	Rearm bool
	// Recheck asks for an immediate sensor read.
	Recheck bool
	// Remind asks for a "configure me" notice if monitoring is disabled.
	Remind bool
}

// State is the printing flag driven by events. Safe for concurrent use.
type State struct {
	mu       sync.RWMutex
	printing bool
}

// NewState returns a State that is not printing.
func NewState() *State {
	return &State{}
}

// Printing reports whether a print job is running.
func (s *State) Printing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.printing
}

// Apply updates the state for ev and returns what the monitor should do.
// Z changes are frequent during a print and do not trigger a recheck then.
func (s *State) Apply(ev Event) Effect {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev {
	case EventHome, EventZChange, EventConnected, EventPrintStarted, EventPrintResumed:
		if ev == EventPrintStarted || ev == EventPrintResumed {
			s.printing = true
		}
		return Effect{Rearm: true, Recheck: ev != EventZChange || !s.printing}
	case EventPrintDone, EventPrintFailed, EventPrintCancelled, EventError, EventEStop:
		s.printing = false
		return Effect{Rearm: true}
	case EventClientOpened:
		return Effect{Remind: true}
	}
	return Effect{}
}

// EventFromTopic extracts the event name from an MQTT topic under prefix,
// e.g. "octoPrint/event/PrintStarted". Returns false for other topics.
func EventFromTopic(prefix, topic string) (Event, bool) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	name, ok := strings.CutPrefix(topic, prefix)
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return Event(name), true
}
