// Command climate-agent samples a DHT11, drives heater, cooler and humidifier
// relays, reports telemetry and accepts manual overrides from a control hub.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/afroash/climate-agent/internal/actuator"
	"github.com/afroash/climate-agent/internal/client"
	"github.com/afroash/climate-agent/internal/clock"
	"github.com/afroash/climate-agent/internal/config"
	"github.com/afroash/climate-agent/internal/control"
	"github.com/afroash/climate-agent/internal/logging"
	"github.com/afroash/climate-agent/internal/metrics"
	"github.com/afroash/climate-agent/internal/models"
	"github.com/afroash/climate-agent/internal/mqtt"
	"github.com/afroash/climate-agent/internal/scheduler"
	"github.com/afroash/climate-agent/internal/sensor"
	"github.com/afroash/climate-agent/internal/status"
	"github.com/afroash/climate-agent/internal/telemetry"
)

const version = "v0.3.0"

// options are the command-line flags
type options struct {
	configPath  string
	showVersion bool
	printState  bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("climate-agent", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file (defaults and environment only when empty)")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	flagSet.BoolVar(&opts.printState, "print-state", false, "sample once, print the reading and the autonomous decision, and exit without actuating")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Println("climate-agent", version)
		return
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging, os.Stdout)

	dhtSensor, err := sensor.NewDHT11Reader(cfg.Sensor.GPIOPin, cfg.Sensor.MaxRetries)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open sensor")
	}

	if opts.printState {
		err := printState(context.Background(), cfg, dhtSensor, os.Stdout)
		dhtSensor.Close()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to read sensor")
		}
		return
	}

	bank, err := actuator.NewGPIOBank(cfg.Actuators.Chip, actuator.Pins{
		Heater:     cfg.Actuators.HeaterPin,
		Cooler:     cfg.Actuators.CoolerPin,
		Humidifier: cfg.Actuators.HumidifierPin,
	}, cfg.Actuators.ActiveLow)
	if err != nil {
		dhtSensor.Close()
		logger.Fatal().Err(err).Msg("Failed to acquire actuator lines")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newAgent(cfg, dhtSensor, bank, clock.System{}, logger)
	if err != nil {
		bank.Close()
		dhtSensor.Close()
		logger.Fatal().Err(err).Msg("Failed to start agent")
	}

	logger.Info().
		Str("version", version).
		Str("agent_id", cfg.Agent.ID).
		Str("transport", cfg.Control.Transport).
		Msg("Starting climate agent")

	if err := a.run(ctx); err != nil {
		logger.Error().Err(err).Msg("Agent stopped with error")
		os.Exit(1)
	}
}

// controlChannel is a control transport: websocket or MQTT
type controlChannel interface {
	control.Broadcaster
	IsConnected() bool
	Run(ctx context.Context) error
	Close() error
}

// actuatorBank is an actuator port that owns hardware
type actuatorBank interface {
	actuator.Port
	Close() error
}

// agent holds the wired components of one running agent
type agent struct {
	cfg       *config.Config
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	reader    *sensor.Reader
	bank      actuatorBank
	overrides *control.OverrideStore
	arbiter   *control.Arbiter
	channel   controlChannel
	reporter  *telemetry.Reporter
	scheduler *scheduler.Scheduler
	status    *status.Server
}

// newAgent wires every component around the given hardware
func newAgent(cfg *config.Config, dev sensor.DHTSensor, bank actuatorBank, clk clock.Clock, logger zerolog.Logger) (*agent, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &agent{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		bank:    bank,
	}

	a.reader = sensor.NewReader(dev, clk, logger.With().Str("component", "sensor").Logger())
	a.overrides = control.NewOverrideStore(logger.With().Str("component", "override").Logger())

	a.channel = newControlChannel(cfg, a.overrides, a.metrics, logger)

	var broadcaster control.Broadcaster
	if a.channel != nil {
		broadcaster = a.channel
	}
	a.arbiter = control.NewArbiter(a.overrides, bank, broadcaster, loc, logger.With().Str("component", "arbiter").Logger())
	a.arbiter.SetMetrics(a.metrics)

	var reporter scheduler.Reporter
	if !cfg.Server.Disabled {
		r := telemetry.NewReporter(cfg.Server.URL, cfg.Server.ParamsPath, cfg.Agent.ID, cfg.Server.Timeout, logger.With().Str("component", "telemetry").Logger())
		r.SetMetrics(a.metrics)
		a.reporter = r
		reporter = r
	}

	a.scheduler = scheduler.New(a.reader, a.arbiter, reporter, cfg.Sensor.ReadInterval, logger.With().Str("component", "scheduler").Logger())
	a.scheduler.SetMetrics(a.metrics)

	if cfg.Status.Listen != "" {
		src := status.Sources{
			AgentID:   cfg.Agent.ID,
			Version:   version,
			Transport: cfg.Control.Transport,
			StartTime: clk.Now(),
			Arbiter:   a.arbiter,
			Scheduler: a.scheduler,
			Overrides: a.overrides,
		}
		if a.channel != nil {
			src.Connection = a.channel
		}
		a.status = status.NewServer(cfg.Status.Listen, src, a.metrics, logger)
	}

	return a, nil
}

// newControlChannel builds the configured transport, or nil for none
func newControlChannel(cfg *config.Config, sink *control.OverrideStore, m *metrics.Metrics, logger zerolog.Logger) controlChannel {
	switch cfg.Control.Transport {
	case config.TransportWebsocket:
		conn := client.NewConnection(client.ConnectionConfig{
			URL:                  cfg.Control.URL,
			AuthToken:            cfg.Control.AuthToken,
			ConnectTimeout:       cfg.Control.ConnectTimeout,
			ReconnectInterval:    cfg.Control.ReconnectInterval,
			MaxReconnectInterval: cfg.Control.MaxReconnectInterval,
			PingInterval:         cfg.Control.PingInterval,
			PongTimeout:          cfg.Control.PongTimeout,
		}, models.NewAgentInfo(cfg.Agent.ID, version), sink, logger.With().Str("component", "control").Logger())
		conn.SetMetrics(m)
		return conn
	case config.TransportMQTT:
		ch := mqtt.NewChannel(mqtt.Config{
			Broker:            cfg.Control.MQTT.Broker,
			TopicPrefix:       cfg.Control.MQTT.TopicPrefix,
			ClientID:          cfg.Control.MQTT.ClientID,
			Username:          cfg.Control.MQTT.Username,
			Password:          cfg.Control.MQTT.Password,
			AgentID:           cfg.Agent.ID,
			ConnectTimeout:    cfg.Control.ConnectTimeout,
			ReconnectInterval: cfg.Control.ReconnectInterval,
			MaxReconnect:      cfg.Control.MaxReconnectInterval,
		}, sink, logger.With().Str("component", "control").Logger())
		ch.SetMetrics(m)
		return ch
	default:
		return nil
	}
}

// run blocks until ctx is cancelled, then forces every actuator off and
// releases the hardware.
func (a *agent) run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	background := 0

	if a.channel != nil {
		background++
		go func() {
			defer func() { done <- struct{}{} }()
			if err := a.channel.Run(runCtx); err != nil && runCtx.Err() == nil {
				a.logger.Error().Err(err).Msg("Control channel stopped")
			}
		}()
	}
	if a.status != nil {
		background++
		go func() {
			defer func() { done <- struct{}{} }()
			if err := a.status.Run(runCtx); err != nil {
				a.logger.Error().Err(err).Msg("Status server stopped")
			}
		}()
	}

	err := a.scheduler.Start(runCtx)
	if runCtx.Err() != nil && errors.Is(err, runCtx.Err()) {
		err = nil
	}

	a.logger.Info().Msg("Shutting down...")
	return errors.Join(err, a.shutdown(cancel, done, background))
}

// shutdown runs the fail-safe before anything else is torn down
func (a *agent) shutdown(cancel context.CancelFunc, done <-chan struct{}, background int) error {
	shutdownErr := a.arbiter.Shutdown()

	cancel()
	if a.channel != nil {
		a.channel.Close()
	}
	for i := 0; i < background; i++ {
		<-done
	}

	waited := make(chan struct{})
	go func() {
		a.scheduler.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(a.cfg.Server.Timeout + time.Second):
		a.logger.Warn().Msg("Telemetry still in flight at exit")
	}

	a.reader.Close()
	if err := a.bank.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to release actuator lines")
	}

	a.logger.Info().Msg("Agent stopped")
	return shutdownErr
}

// printState samples once and prints what the rule engine would command
func printState(ctx context.Context, cfg *config.Config, dev sensor.DHTSensor, w io.Writer) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	reader := sensor.NewReader(dev, clock.System{}, zerolog.Nop())
	reading, err := reader.Sample(ctx)
	if err != nil {
		return err
	}

	daytime := control.IsDaytime(reading.Timestamp(loc))
	decision := control.Decide(reading.Temperature, reading.Humidity, daytime)
	fmt.Fprintf(w, "%s\ndaytime: %v\ndecision: %s\n", reading, daytime, decision)
	return nil
}
