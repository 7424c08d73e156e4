// Package config loads the daemon configuration from YAML, the environment
// and command-line overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/estop-sensor/internal/gpio"
	"github.com/sweeney/estop-sensor/internal/pins"
)

// Config is the root configuration.
type Config struct {
	Sensor  SensorConfig  `yaml:"sensor"`
	GPIO    GPIOConfig    `yaml:"gpio"`
	Monitor MonitorConfig `yaml:"monitor"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logger  LoggerConfig  `yaml:"logger"`
}

// SensorConfig holds the sensor settings. Field names follow the OctoPrint
// plugin's settings keys so existing values can be copied across.
type SensorConfig struct {
	GPIOMode          string `yaml:"gpio_mode"` // physical|bcm, or 10|11
	Pin               int    `yaml:"pin"`       // 0 disables monitoring
	Power             string `yaml:"power"`     // ground|high, or 0|1
	Triggered         string `yaml:"triggered"` // auto|high|low, or 0|1
	GCode             string `yaml:"g_code"`
	BounceTime        int    `yaml:"bounce_time"`        // ms
	ReadingIterations int    `yaml:"reading_iterations"` // consecutive equal reads
	ReadingDelay      int    `yaml:"reading_delay"`      // ms between reads
}

// GPIOConfig selects the hardware backend.
type GPIOConfig struct {
	Driver     string        `yaml:"driver"` // cdev|periph
	Chip       string        `yaml:"chip"`
	TestWindow time.Duration `yaml:"test_window"`
}

// MonitorConfig controls the background sensor monitor.
type MonitorConfig struct {
	Poll time.Duration `yaml:"poll"`
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker       string        `yaml:"broker"`
	ClientID     string        `yaml:"client_id"`
	PrinterTopic string        `yaml:"printer_topic"`
	Heartbeat    time.Duration `yaml:"heartbeat"`
	BufferSize   int           `yaml:"buffer_size"`
}

// HTTPConfig configures the status and test API.
type HTTPConfig struct {
	Addr      string  `yaml:"addr"`
	TestRate  float64 `yaml:"test_rate"` // sensor tests per second
	TestBurst int     `yaml:"test_burst"`
}

// LoggerConfig configures zap.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console|json
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Sensor: SensorConfig{
			GPIOMode:          "physical",
			Pin:               0,
			Power:             "ground",
			Triggered:         "auto",
			GCode:             "M112",
			BounceTime:        250,
			ReadingIterations: 5,
			ReadingDelay:      100,
		},
		GPIO: GPIOConfig{
			Driver:     "cdev",
			Chip:       "gpiochip0",
			TestWindow: 2 * time.Second,
		},
		Monitor: MonitorConfig{
			Poll: 500 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			Broker:       "tcp://localhost:1883",
			ClientID:     "estop-sensor",
			PrinterTopic: "octoPrint/event/",
			Heartbeat:    15 * time.Minute,
			BufferSize:   100,
		},
		HTTP: HTTPConfig{
			Addr:      ":8080",
			TestRate:  1,
			TestBurst: 3,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. A missing file is not an error. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)
	return cfg, nil
}

// ApplyEnvOverrides applies ESTOP_* environment variables to cfg.
// Malformed numeric values are ignored.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ESTOP_GPIO_MODE"); v != "" {
		cfg.Sensor.GPIOMode = v
	}
	if v := os.Getenv("ESTOP_PIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sensor.Pin = n
		}
	}
	if v := os.Getenv("ESTOP_POWER"); v != "" {
		cfg.Sensor.Power = v
	}
	if v := os.Getenv("ESTOP_TRIGGERED"); v != "" {
		cfg.Sensor.Triggered = v
	}
	if v := os.Getenv("ESTOP_G_CODE"); v != "" {
		cfg.Sensor.GCode = v
	}
	if v := os.Getenv("ESTOP_GPIO_DRIVER"); v != "" {
		cfg.GPIO.Driver = v
	}
	if v := os.Getenv("ESTOP_GPIO_CHIP"); v != "" {
		cfg.GPIO.Chip = v
	}
	if v := os.Getenv("ESTOP_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("ESTOP_MQTT_HEARTBEAT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.MQTT.Heartbeat = d
		}
	}
	if v := os.Getenv("ESTOP_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("ESTOP_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("ESTOP_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
}

// Enabled reports whether a sensor pin is configured.
func (c *Config) Enabled() bool {
	return c.Sensor.Pin != 0
}

// PinConfig builds the validated sensor pin configuration.
func (c *Config) PinConfig() (pins.Config, pins.Verdict, error) {
	mode, err := pins.ParseMode(c.Sensor.GPIOMode)
	if err != nil {
		return pins.Config{}, pins.Verdict{}, err
	}
	wiring, err := pins.ParseWiring(c.Sensor.Power)
	if err != nil {
		return pins.Config{}, pins.Verdict{}, err
	}
	trigger, err := pins.ParseTrigger(c.Sensor.Triggered, wiring)
	if err != nil {
		return pins.Config{}, pins.Verdict{}, err
	}
	return pins.NewConfig(mode, c.Sensor.Pin, wiring, trigger)
}

// Sampling returns the read settling parameters for the GPIO driver.
func (c *Config) Sampling() gpio.Sampling {
	return gpio.Sampling{
		Interval: time.Duration(c.Sensor.ReadingDelay) * time.Millisecond,
		Agree:    c.Sensor.ReadingIterations,
	}
}

// Debounce returns the bounce time as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Sensor.BounceTime) * time.Millisecond
}
