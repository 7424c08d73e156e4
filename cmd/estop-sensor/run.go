package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sweeney/estop-sensor/internal/config"
	"github.com/sweeney/estop-sensor/internal/gpio"
	"github.com/sweeney/estop-sensor/internal/logic"
	"github.com/sweeney/estop-sensor/internal/mqtt"
	"github.com/sweeney/estop-sensor/internal/pins"
	"github.com/sweeney/estop-sensor/internal/printer"
	"github.com/sweeney/estop-sensor/internal/session"
	"github.com/sweeney/estop-sensor/internal/status"
	"github.com/sweeney/estop-sensor/internal/web"
)

// printerQueue bounds printer events waiting for the monitor loop.
const printerQueue = 32

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

func newRunCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sensor daemon",
		Long: `Runs the monitor loop, the MQTT publisher and the HTTP status and test API.
With no sensor pin configured the daemon still serves the API so a pin can be
tested, but does not monitor.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sync, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			defer sync()
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&g.broker, "broker", "", "MQTT broker address")
	cmd.Flags().StringVar(&g.httpAddr, "http", "", "HTTP status address")
	return cmd
}

func newDriver(cfg *config.Config) (gpio.Driver, error) {
	switch cfg.GPIO.Driver {
	case "periph":
		d, err := gpio.NewPeriphDriver(cfg.Sampling())
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		d, err := gpio.NewCdevDriver(cfg.GPIO.Chip, cfg.Sampling())
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		Mode:        cfg.Sensor.GPIOMode,
		Pin:         cfg.Sensor.Pin,
		Wiring:      cfg.Sensor.Power,
		Trigger:     cfg.Sensor.Triggered,
		GCode:       cfg.Sensor.GCode,
		Driver:      cfg.GPIO.Driver,
		PollMs:      cfg.Monitor.Poll.Milliseconds(),
		DebounceMs:  cfg.Debounce().Milliseconds(),
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPPort:    cfg.HTTP.Addr,
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// Initialize GPIO
	driver, err := newDriver(cfg)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer driver.Close()

	var pinCfg pins.Config
	if cfg.Enabled() {
		if pinCfg, _, err = cfg.PinConfig(); err != nil {
			return fmt.Errorf("sensor pin: %w", err)
		}
	}

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:     cfg.MQTT.Broker,
		ClientID:   cfg.MQTT.ClientID,
		GCode:      cfg.Sensor.GCode,
		BufferSize: cfg.MQTT.BufferSize,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	printerState := printer.NewState()
	sess := session.New(driver,
		session.WithWindow(cfg.GPIO.TestWindow),
		session.WithPrintState(printerState),
	)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.SetMQTTConnected(publisher.IsConnected())

	events := make(chan printer.Event, printerQueue)
	if err := publisher.SubscribePrinter(cfg.MQTT.PrinterTopic, queuePrinterEvent(events)); err != nil {
		zap.S().Warnf("mqtt: subscribe printer events: %v", err)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		zap.S().Warnf("failed to publish startup event: %v", err)
	} else {
		zap.S().Infof("published startup event")
	}

	m := &monitor{
		session:    sess,
		pin:        pinCfg,
		enabled:    cfg.Enabled(),
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		printer:    printerState,
		detector:   logic.NewDetector(cfg.Debounce(), time.Now()),
		heartbeat:  cfg.MQTT.Heartbeat,
		now:        time.Now,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, web.Deps{
			Tracker:  tracker,
			Tester:   sess,
			Printing: printerState,
			Limiter:  testLimiter(cfg),
			Results: func(o session.Outcome) {
				tracker.RecordTest(o)
				if err := publisher.PublishTest(o); err != nil {
					zap.S().Warnf("publish test result: %v", err)
				}
			},
		})
		g.Go(func() error {
			zap.S().Infof("http status server listening on %s", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	if m.enabled {
		zap.S().Infof("started: %s poll=%v debounce=%v broker=%s heartbeat=%v",
			pinCfg, cfg.Monitor.Poll, cfg.Debounce(), cfg.MQTT.Broker, cfg.MQTT.Heartbeat)
	} else {
		zap.S().Warnf("started without a sensor pin, monitoring disabled")
	}

	ticker := time.NewTicker(cfg.Monitor.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g.Go(func() error {
		defer cancel()
		return runLoop(gctx, m, ticker.C, events, sigCh)
	})
	return g.Wait()
}

func testLimiter(cfg *config.Config) *rate.Limiter {
	if cfg.HTTP.TestRate <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.HTTP.TestRate), cfg.HTTP.TestBurst)
}

// queuePrinterEvent hands events from the MQTT client goroutine to the
// monitor loop without blocking the client.
func queuePrinterEvent(ch chan<- printer.Event) func(printer.Event) {
	return func(ev printer.Event) {
		select {
		case ch <- ev:
		default:
			zap.S().Warnf("mqtt: printer event queue full, dropping %s", ev)
		}
	}
}

// monitor owns the sensor detector. Its methods run on the loop goroutine only.
type monitor struct {
	session    *session.Session
	pin        pins.Config
	enabled    bool
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	printer    *printer.State
	detector   *logic.Detector
	heartbeat  time.Duration
	now        func() time.Time
}

func runLoop(ctx context.Context, m *monitor, tick <-chan time.Time, events <-chan printer.Event, sig <-chan os.Signal) error {
	for {
		select {
		case <-ctx.Done():
			m.shutdown("CANCELLED")
			return ctx.Err()

		case s := <-sig:
			zap.S().Infof("received %v, shutting down", s)
			m.shutdown(signalName(s))
			return nil

		case ev := <-events:
			m.handlePrinter(ctx, ev)

		case <-tick:
			m.tick(ctx)
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// read probes the sensor through the shared session.
func (m *monitor) read(ctx context.Context) (pins.Reading, error) {
	p, err := m.session.Monitor(ctx, m.pin)
	if err != nil {
		return pins.Reading{}, err
	}
	return p.Wait(ctx)
}

func (m *monitor) tick(ctx context.Context) {
	if !m.enabled {
		return
	}
	t := m.now()

	reading, err := m.read(ctx)
	switch {
	case errors.Is(err, session.ErrSessionBusy):
		// A user test holds the session; pick up again next tick.
		zap.S().Debugf("monitor: sensor test in progress, skipping read")
		return
	case errors.Is(err, session.ErrCancelled) && ctx.Err() == nil:
		// A user test took the line mid-read.
		zap.S().Debugf("monitor: read handed over to sensor test")
		return
	case err != nil:
		zap.S().Warnf("monitor: sensor read error: %v", err)
		return
	}

	m.publish(m.detector.Process(logic.Input{Triggered: reading.Triggered, Time: t}))

	if !m.detector.IsBaselined() {
		// Still waiting for baseline
		return
	}

	if hb := m.detector.CheckHeartbeat(t, m.heartbeat); hb != nil {
		zap.S().Infof("heartbeat: uptime=%v triggered=%d cleared=%d stops=%d",
			hb.Uptime, hb.Counts.Triggered, hb.Counts.Cleared, hb.Counts.Stops)

		// Refresh network info for heartbeat
		if net := readNetworkInfo(); net != nil {
			m.tracker.SetNetwork(net)
		}
		m.updateTracker()
		ev := mqtt.SystemEvent{
			Timestamp:  hb.Timestamp,
			Event:      "HEARTBEAT",
			RawPayload: status.FormatStatusEvent(m.tracker.Snapshot(), "HEARTBEAT", ""),
		}
		if err := m.publisher.PublishSystem(ev); err != nil {
			zap.S().Warnf("heartbeat publish error: %v", err)
		}
	}

	m.updateTracker()
}

// handlePrinter applies a printer event: rearm the stop latch, and re-read
// the sensor so a switch left pressed stops the printer again.
func (m *monitor) handlePrinter(ctx context.Context, ev printer.Event) {
	eff := m.printer.Apply(ev)
	m.tracker.SetPrinting(m.printer.Printing())

	if !m.enabled {
		if eff.Remind {
			m.remind()
		}
		return
	}

	if eff.Rearm {
		m.detector.Rearm()
	}
	if eff.Recheck {
		zap.S().Debugf("monitor: reading sensor due to event %s", ev)
		reading, err := m.read(ctx)
		if err != nil {
			zap.S().Warnf("monitor: recheck after %s: %v", ev, err)
		} else {
			m.publish(m.detector.Recheck(m.now(), reading.Triggered))
		}
	}
	m.updateTracker()
}

func (m *monitor) remind() {
	zap.S().Warnf("monitor: no sensor pin configured, set sensor.pin to enable the emergency stop")
	ev := mqtt.SystemEvent{
		Timestamp: m.now(),
		Event:     "UNCONFIGURED",
		Reason:    "Don't forget to configure the emergency stop sensor.",
	}
	if err := m.publisher.PublishSystem(ev); err != nil {
		zap.S().Warnf("publish reminder: %v", err)
	}
}

func (m *monitor) publish(events []logic.Event) {
	for _, ev := range events {
		if ev.Type == logic.EventStop {
			zap.S().Warnf("monitor: emergency stop: %s", ev.Reason)
		} else {
			zap.S().Infof("event: %s (state=%s)", ev.Type, ev.State)
		}
		if err := m.publisher.Publish(ev); err != nil {
			// Don't crash on publish failure
			zap.S().Errorf("publish error: %v", err)
		}
	}
}

// updateTracker refreshes the status tracker for HTTP consumers.
func (m *monitor) updateTracker() {
	m.tracker.Update(m.detector.CurrentState(), m.detector.IsBaselined(), m.detector.Stopped(), m.detector.Counts())
	if m.mqttStatus != nil {
		m.tracker.SetMQTTConnected(m.mqttStatus.IsConnected())
	}
}

func (m *monitor) shutdown(reason string) {
	m.updateTracker()
	event := mqtt.SystemEvent{
		Timestamp:  m.now(),
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(m.tracker.Snapshot(), "SHUTDOWN", reason),
	}
	if err := m.publisher.PublishSystem(event); err != nil {
		zap.S().Warnf("failed to publish shutdown event: %v", err)
	} else {
		zap.S().Infof("published shutdown event")
	}
}
