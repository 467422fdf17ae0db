//go:build integration
// +build integration

package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/climate-agent/internal/actuator"
	"github.com/afroash/climate-agent/internal/clock"
	"github.com/afroash/climate-agent/internal/config"
	"github.com/afroash/climate-agent/internal/models"
	"github.com/afroash/climate-agent/internal/sensor"
)

// TestHardware exercises the real sensor and relay lines.
// Run on the device with: go test -tags=integration -v ./cmd/agent/
func TestHardware(t *testing.T) {
	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	cfg.Control.Transport = config.TransportNone
	cfg.Server.Disabled = true
	cfg.Status.Listen = ""

	dev, err := sensor.NewDHT11Reader(cfg.Sensor.GPIOPin, cfg.Sensor.MaxRetries)
	if err != nil {
		t.Fatalf("Failed to open sensor: %v", err)
	}

	var out bytes.Buffer
	if err := printState(context.Background(), cfg, dev, &out); err != nil {
		t.Fatalf("printState: %v", err)
	}
	t.Log(out.String())

	bank, err := actuator.NewGPIOBank(cfg.Actuators.Chip, actuator.Pins{
		Heater:     cfg.Actuators.HeaterPin,
		Cooler:     cfg.Actuators.CoolerPin,
		Humidifier: cfg.Actuators.HumidifierPin,
	}, cfg.Actuators.ActiveLow)
	if err != nil {
		t.Fatalf("Failed to acquire actuator lines: %v", err)
	}

	a, err := newAgent(cfg, dev, bank, clock.System{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("newAgent: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*cfg.Sensor.ReadInterval+time.Second)
	defer cancel()

	if err := a.run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	snap := a.arbiter.State()
	if !snap.ShutDown || snap.State != models.AllOff {
		t.Errorf("final snapshot = %+v, want shut down and all off", snap)
	}
	t.Logf("System test passed: %d cycles, %d skipped", a.scheduler.Cycles(), a.scheduler.Skipped())
}
