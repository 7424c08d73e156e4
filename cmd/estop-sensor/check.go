package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sweeney/estop-sensor/internal/config"
	"github.com/sweeney/estop-sensor/internal/pins"
	"github.com/sweeney/estop-sensor/internal/session"
)

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pin>",
		Short: "Check whether a pin can carry the sensor",
		Long: `Checks a pin number against the Raspberry Pi header for the configured
gpio mode and wiring. Exits non-zero if the pin cannot be used.

Examples:
  estop-sensor validate 40
  estop-sensor validate 3 --power high
  estop-sensor validate 21 --gpio-mode bcm`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, g, cfg)
			return runValidate(cmd.OutOrStdout(), cfg, args[0])
		},
	}
}

func runValidate(w io.Writer, cfg *config.Config, pinArg string) error {
	pin, err := strconv.Atoi(pinArg)
	if err != nil {
		return fmt.Errorf("pin %q must be an integer", pinArg)
	}
	mode, err := pins.ParseMode(cfg.Sensor.GPIOMode)
	if err != nil {
		return err
	}
	wiring, err := pins.ParseWiring(cfg.Sensor.Power)
	if err != nil {
		return err
	}

	v := pins.Validate(mode, pin, wiring)
	switch {
	case !v.Legal:
		fmt.Fprintf(w, "%s pin %d (%s): %s: %s (max %d)\n", mode, pin, wiring, v.Hazard, v.Warning(), v.MaxAllowedPin)
		return fmt.Errorf("%s pin %d cannot be used", mode, pin)
	case v.Hazard != pins.HazardNone:
		fmt.Fprintf(w, "%s pin %d (%s): usable with warning: %s\n", mode, pin, wiring, v.Warning())
	default:
		fmt.Fprintf(w, "%s pin %d (%s): ok\n", mode, pin, wiring)
	}
	return nil
}

func newTestCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Read the sensor once and print the result",
		Long: `Claims the sensor pin, reads it until it settles and releases it again.
Use it to check the wiring before starting the daemon. The daemon must not be
running on the same pin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sync, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			defer sync()

			driver, err := newDriver(cfg)
			if err != nil {
				return err
			}
			defer driver.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s := session.New(driver, session.WithWindow(cfg.GPIO.TestWindow))
			return runTest(ctx, cmd.OutOrStdout(), s, cfg)
		},
	}
}

func runTest(ctx context.Context, w io.Writer, s *session.Session, cfg *config.Config) error {
	if !cfg.Enabled() {
		return errors.New("no sensor pin configured, set --pin or sensor.pin")
	}
	pc, _, err := cfg.PinConfig()
	if err != nil {
		return err
	}

	p, err := s.Start(ctx, pc)
	if err != nil {
		return err
	}
	<-p.Done()
	out, _ := p.Outcome()
	if out.Err != nil {
		return fmt.Errorf("sensor test %s: %w", out.ID, out.Err)
	}

	level := "low"
	if out.Reading.Level {
		level = "high"
	}
	state := "not triggered"
	if out.Reading.Triggered {
		state = "TRIGGERED"
	}
	fmt.Fprintf(w, "%s: %s (level %s)\n", pc, state, level)
	return nil
}
