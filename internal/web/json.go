package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sweeney/estop-sensor/internal/pins"
	"github.com/sweeney/estop-sensor/internal/session"
)

const (
	errBadRequest  = "bad_request"
	errRateLimited = "rate_limited"

	msgRateLimited  = "Too many sensor tests, try again in a moment."
	msgTriggered    = "Sensor triggered! (This would send the G-code.)"
	msgNotTriggered = "Sensor not triggered!"
	msgPinInUse     = "This pin is already in use, choose other pin."
	msgBadPin       = "The pin selected is power, ground or out of range pin number, choose other pin"
	msgBusy         = "A sensor test is already running."
	msgPrinting     = "Cannot test the sensor while printing."
	msgHardware     = "Reading the sensor failed. Check the daemon log for further info."
	msgCancelled    = "The sensor test was cancelled."

	maxRequestBytes = 4096
)

// flexString accepts a JSON string or number. The settings page posts form
// values as strings; scripts tend to send numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

// TestRequest is the body of POST /api/test.
type TestRequest struct {
	GPIOMode  flexString `json:"gpio_mode"`
	Pin       flexString `json:"pin"`
	Power     flexString `json:"power"`
	Triggered flexString `json:"triggered"`
}

func (req TestRequest) config() (pins.Config, error) {
	mode, wiring, pin, err := parsePin(string(req.GPIOMode), string(req.Pin), string(req.Power))
	if err != nil {
		return pins.Config{}, fmt.Errorf("%w: %v", session.ErrInvalidPinConfiguration, err)
	}
	trigger, err := pins.ParseTrigger(string(req.Triggered), wiring)
	if err != nil {
		return pins.Config{}, fmt.Errorf("%w: %v", session.ErrInvalidPinConfiguration, err)
	}
	cfg, v, err := pins.NewConfig(mode, pin, wiring, trigger)
	if err != nil {
		return pins.Config{}, &verdictError{verdict: v, err: err}
	}
	return cfg, nil
}

// verdictError carries the verdict of a rejected pin to the response.
type verdictError struct {
	verdict pins.Verdict
	err     error
}

func (e *verdictError) Error() string { return e.err.Error() }

func (e *verdictError) Unwrap() []error {
	return []error{session.ErrInvalidPinConfiguration, e.err}
}

func parsePin(modeS, pinS, powerS string) (pins.Mode, pins.Wiring, int, error) {
	mode, err := pins.ParseMode(modeS)
	if err != nil {
		return 0, 0, 0, err
	}
	pin, err := strconv.Atoi(strings.TrimSpace(pinS))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("pin %q must be an integer", pinS)
	}
	wiring, err := pins.ParseWiring(powerS)
	if err != nil {
		return 0, 0, 0, err
	}
	return mode, wiring, pin, nil
}

// TestResponse is returned for a completed sensor test.
type TestResponse struct {
	ID        string `json:"id"`
	Triggered bool   `json:"triggered"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

func newTestResponse(o session.Outcome) TestResponse {
	resp := TestResponse{
		ID:        o.ID.String(),
		Triggered: o.Reading.Triggered,
		Level:     "low",
		Message:   msgNotTriggered,
	}
	if o.Reading.Level {
		resp.Level = "high"
	}
	if o.Reading.Triggered {
		resp.Message = msgTriggered
	}
	return resp
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error   string           `json:"error"`
	Message string           `json:"message"`
	Verdict *VerdictResponse `json:"verdict,omitempty"`
}

// VerdictResponse is the JSON form of a pin verdict.
type VerdictResponse struct {
	Legal         bool   `json:"legal"`
	Hazard        string `json:"hazard"`
	MaxAllowedPin int    `json:"max_allowed_pin"`
	Warning       string `json:"warning,omitempty"`
}

// StateResponse is returned by GET /api/state.
type StateResponse struct {
	Printing bool   `json:"printing"`
	Enabled  bool   `json:"enabled"`
	Session  string `json:"session_state"`
}

// CancelResponse is returned by DELETE /api/test.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// testErrorStatus maps each error kind to a distinct status and message.
var testErrorStatus = map[session.Kind]struct {
	code int
	msg  string
}{
	session.KindInvalidPinConfiguration: {http.StatusUnprocessableEntity, msgBadPin},
	session.KindPinInUse:                {http.StatusConflict, msgPinInUse},
	session.KindSessionBusy:             {http.StatusLocked, msgBusy},
	session.KindPrintInProgress:         {http.StatusLocked, msgPrinting},
	session.KindHardware:                {http.StatusBadGateway, msgHardware},
	session.KindCancelled:               {http.StatusServiceUnavailable, msgCancelled},
}

func writeTestError(w http.ResponseWriter, err error) {
	kind := session.KindOf(err)
	st := testErrorStatus[kind]
	resp := ErrorResponse{Error: string(kind), Message: st.msg}

	var ve *verdictError
	if errors.As(err, &ve) {
		resp.Verdict = &VerdictResponse{
			Legal:         ve.verdict.Legal,
			Hazard:        string(ve.verdict.Hazard),
			MaxAllowedPin: ve.verdict.MaxAllowedPin,
			Warning:       ve.verdict.Warning(),
		}
	} else if kind == session.KindInvalidPinConfiguration {
		resp.Message = err.Error()
	}
	writeJSON(w, st.code, resp)
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, ErrorResponse{Error: kind, Message: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}
