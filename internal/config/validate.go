package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/sweeney/estop-sensor/internal/pins"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateSensor(cfg, ve)
	validateGPIO(cfg, ve)
	validateMonitor(cfg, ve)
	validateMQTT(cfg, ve)
	validateHTTP(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// Warnings returns advisory problems that do not block startup.
func Warnings(cfg *Config) []string {
	if !cfg.Enabled() {
		return []string{"no sensor pin configured, monitoring disabled"}
	}
	_, v, err := cfg.PinConfig()
	if err != nil || v.Hazard != pins.HazardPullUpConflict {
		return nil
	}
	return []string{fmt.Sprintf("sensor.pin %d: %s", cfg.Sensor.Pin, v.Warning())}
}

func validateSensor(cfg *Config, ve *ValidationError) {
	s := cfg.Sensor
	mode, err := pins.ParseMode(s.GPIOMode)
	if err != nil {
		ve.Add("sensor.gpio_mode %q must be physical or bcm", s.GPIOMode)
	}
	wiring, err := pins.ParseWiring(s.Power)
	if err != nil {
		ve.Add("sensor.power %q must be ground or high", s.Power)
	}
	if _, err := pins.ParseTrigger(s.Triggered, wiring); err != nil {
		ve.Add("sensor.triggered %q must be auto, high or low", s.Triggered)
	}
	if s.Pin != 0 && mode != 0 {
		if v := pins.Validate(mode, s.Pin, wiring); !v.Legal {
			ve.Add("sensor.pin %d: %s (max %d)", s.Pin, v.Warning(), v.MaxAllowedPin)
		}
	}
	if s.GCode == "" {
		ve.Add("sensor.g_code must not be empty")
	}
	if s.ReadingIterations < 1 {
		ve.Add("sensor.reading_iterations must be >= 1")
	}
	if s.BounceTime < 0 {
		ve.Add("sensor.bounce_time must be >= 0")
	}
	if s.ReadingDelay < 0 {
		ve.Add("sensor.reading_delay must be >= 0")
	}
}

var validDrivers = map[string]bool{
	"cdev":   true,
	"periph": true,
}

func validateGPIO(cfg *Config, ve *ValidationError) {
	if !validDrivers[cfg.GPIO.Driver] {
		ve.Add("gpio.driver %q must be cdev or periph", cfg.GPIO.Driver)
	}
	if cfg.GPIO.Driver == "cdev" && cfg.GPIO.Chip == "" {
		ve.Add("gpio.chip must not be empty for the cdev driver")
	}
	if cfg.GPIO.TestWindow <= 0 {
		ve.Add("gpio.test_window must be > 0")
		return
	}
	// A read needs reading_iterations agreeing samples, reading_delay apart.
	s := cfg.Sensor
	if s.ReadingIterations >= 1 && s.ReadingDelay >= 0 {
		settle := time.Duration(s.ReadingIterations-1) * time.Duration(s.ReadingDelay) * time.Millisecond
		if settle >= cfg.GPIO.TestWindow {
			ve.Add("sensor.reading_iterations %d x reading_delay %dms (%s to settle) must fit in gpio.test_window %s",
				s.ReadingIterations, s.ReadingDelay, settle, cfg.GPIO.TestWindow)
		}
	}
}

func validateMonitor(cfg *Config, ve *ValidationError) {
	if cfg.Monitor.Poll <= 0 {
		ve.Add("monitor.poll must be > 0")
	}
}

func validateMQTT(cfg *Config, ve *ValidationError) {
	if cfg.MQTT.Broker == "" {
		ve.Add("mqtt.broker must not be empty")
	}
	if cfg.MQTT.ClientID == "" {
		ve.Add("mqtt.client_id must not be empty")
	}
	if cfg.MQTT.PrinterTopic == "" {
		ve.Add("mqtt.printer_topic must not be empty")
	}
	if cfg.MQTT.Heartbeat < 0 {
		ve.Add("mqtt.heartbeat must be >= 0")
	}
	if cfg.MQTT.BufferSize < 1 {
		ve.Add("mqtt.buffer_size must be >= 1")
	}
}

func validateHTTP(cfg *Config, ve *ValidationError) {
	if cfg.HTTP.TestRate <= 0 {
		ve.Add("http.test_rate must be > 0")
	}
	if cfg.HTTP.TestBurst < 1 {
		ve.Add("http.test_burst must be >= 1")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if _, err := zapcore.ParseLevel(cfg.Logger.Level); err != nil {
		ve.Add("logger.level %q is not a valid level", cfg.Logger.Level)
	}
	if cfg.Logger.Format != "console" && cfg.Logger.Format != "json" {
		ve.Add("logger.format %q must be console or json", cfg.Logger.Format)
	}
}
