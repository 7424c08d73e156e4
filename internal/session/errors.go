package session

import "errors"

// Error sentinels. Every failure returned by Start or carried in an Outcome
// wraps exactly one of these; use errors.Is or KindOf to tell them apart.
var (
	ErrInvalidPinConfiguration = errors.New("invalid pin configuration")
	ErrPinInUse                = errors.New("pin in use")
	ErrSessionBusy             = errors.New("sensor test already in progress")
	ErrHardware                = errors.New("hardware error")
	ErrCancelled               = errors.New("sensor test cancelled")
	ErrPrintInProgress         = errors.New("print in progress")
)

// Kind names an error class for the presentation layer.
type Kind string

const (
	KindNone                    Kind = ""
	KindInvalidPinConfiguration Kind = "invalid_pin_configuration"
	KindPinInUse                Kind = "pin_in_use"
	KindSessionBusy             Kind = "session_busy"
	KindHardware                Kind = "hardware_error"
	KindCancelled               Kind = "cancelled"
	KindPrintInProgress         Kind = "print_in_progress"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidPinConfiguration, KindInvalidPinConfiguration},
	{ErrPinInUse, KindPinInUse},
	{ErrSessionBusy, KindSessionBusy},
	{ErrCancelled, KindCancelled},
	{ErrPrintInProgress, KindPrintInProgress},
	{ErrHardware, KindHardware},
}

// KindOf classifies err. Errors that wrap none of the sentinels are reported
// as hardware errors; nil is KindNone.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindHardware
}
