// Command estop-sensor watches an emergency-stop switch on a Raspberry Pi GPIO
// pin and tells the printer host to stop over MQTT when it trips.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweeney/estop-sensor/internal/config"
	"github.com/sweeney/estop-sensor/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	gpioMode   string
	pin        int
	power      string
	triggered  string

	// run only
	broker   string
	httpAddr string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "estop-sensor",
		Short: "Emergency-stop sensor daemon for OctoPrint",
		Long: `Monitors an emergency-stop switch wired to a GPIO pin and publishes a stop
command for the printer host when it trips. Sensor wiring can be checked
before use with a one-shot test.

Examples:
  estop-sensor run --config /etc/estop-sensor.yaml   # Run the daemon
  estop-sensor validate 40 --power ground            # Check a physical pin
  estop-sensor test --pin 40                         # Read the sensor once`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "/etc/estop-sensor.yaml", "config file (missing file uses defaults)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level override (debug|info|warn|error)")
	pf.StringVar(&g.gpioMode, "gpio-mode", "", "pin numbering: physical|bcm")
	pf.IntVar(&g.pin, "pin", 0, "sensor pin (0 disables monitoring)")
	pf.StringVar(&g.power, "power", "", "sensor wiring: ground|high")
	pf.StringVar(&g.triggered, "triggered", "", "trigger level: auto|high|low")

	root.AddCommand(
		newRunCmd(g),
		newValidateCmd(g),
		newTestCmd(g),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the config file, applies flag overrides, validates the
// result and installs the global logger. The returned func flushes the logger.
func loadConfig(cmd *cobra.Command, g *globalFlags) (*config.Config, func(), error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	applyFlags(cmd, g, cfg)

	if err := config.Validate(cfg); err != nil {
		return nil, nil, err
	}

	_, sync, err := logging.New(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	for _, w := range config.Warnings(cfg) {
		zap.S().Warnf("config: %s", w)
	}
	return cfg, sync, nil
}

// applyFlags copies explicitly set persistent flags over cfg.
func applyFlags(cmd *cobra.Command, g *globalFlags, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logger.Level = g.logLevel
	}
	if flags.Changed("gpio-mode") {
		cfg.Sensor.GPIOMode = g.gpioMode
	}
	if flags.Changed("pin") {
		cfg.Sensor.Pin = g.pin
	}
	if flags.Changed("power") {
		cfg.Sensor.Power = g.power
	}
	if flags.Changed("triggered") {
		cfg.Sensor.Triggered = g.triggered
	}
	if flags.Changed("broker") {
		cfg.MQTT.Broker = g.broker
	}
	if flags.Changed("http") {
		cfg.HTTP.Addr = g.httpAddr
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
