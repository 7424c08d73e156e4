package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefaultsPass(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"iterations", func(c *Config) { c.Sensor.ReadingIterations = 0 }, "sensor.reading_iterations must be >= 1"},
		{"bounce", func(c *Config) { c.Sensor.BounceTime = -1 }, "sensor.bounce_time must be >= 0"},
		{"delay", func(c *Config) { c.Sensor.ReadingDelay = -5 }, "sensor.reading_delay must be >= 0"},
		{"gcode", func(c *Config) { c.Sensor.GCode = "" }, "sensor.g_code must not be empty"},
		{"mode", func(c *Config) { c.Sensor.GPIOMode = "wiringpi" }, "sensor.gpio_mode"},
		{"power", func(c *Config) { c.Sensor.Power = "5v" }, "sensor.power"},
		{"trigger", func(c *Config) { c.Sensor.Triggered = "sideways" }, "sensor.triggered"},
		{"reserved pin", func(c *Config) { c.Sensor.Pin = 6 }, "sensor.pin 6"},
		{"out of range", func(c *Config) { c.Sensor.Pin = 41 }, "(max 40)"},
		{"driver", func(c *Config) { c.GPIO.Driver = "sysfs" }, "gpio.driver"},
		{"chip", func(c *Config) { c.GPIO.Chip = "" }, "gpio.chip must not be empty"},
		{"window", func(c *Config) { c.GPIO.TestWindow = 0 }, "gpio.test_window must be > 0"},
		{"settle exceeds window", func(c *Config) { c.Sensor.ReadingIterations = 30 }, "must fit in gpio.test_window 2s"},
		{"settle equals window", func(c *Config) { c.Sensor.ReadingIterations = 21 }, "(2s to settle)"},
		{"poll", func(c *Config) { c.Monitor.Poll = 0 }, "monitor.poll must be > 0"},
		{"broker", func(c *Config) { c.MQTT.Broker = "" }, "mqtt.broker must not be empty"},
		{"heartbeat", func(c *Config) { c.MQTT.Heartbeat = -1 }, "mqtt.heartbeat must be >= 0"},
		{"buffer", func(c *Config) { c.MQTT.BufferSize = 0 }, "mqtt.buffer_size must be >= 1"},
		{"rate", func(c *Config) { c.HTTP.TestRate = 0 }, "http.test_rate must be > 0"},
		{"level", func(c *Config) { c.Logger.Level = "loud" }, "logger.level"},
		{"format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidatePullUpConflictIsNotAnError(t *testing.T) {
	cfg := Defaults()
	cfg.Sensor.Pin = 5
	cfg.Sensor.Power = "high"
	assert.NoError(t, Validate(cfg))
}

func TestValidateSettleWithinWindow(t *testing.T) {
	cfg := Defaults()
	cfg.Sensor.ReadingIterations = 20
	cfg.Sensor.ReadingDelay = 100
	assert.NoError(t, Validate(cfg))

	cfg.Sensor.ReadingDelay = 0
	cfg.Sensor.ReadingIterations = 100
	assert.NoError(t, Validate(cfg))
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Sensor.ReadingIterations = 0
	cfg.MQTT.Broker = ""
	cfg.Monitor.Poll = 0

	err := Validate(cfg)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 3)
}
