package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/climate-agent/internal/actuator"
	"github.com/afroash/climate-agent/internal/clock"
	"github.com/afroash/climate-agent/internal/config"
	"github.com/afroash/climate-agent/internal/models"
	"github.com/afroash/climate-agent/internal/server"
)

// stubSensor returns a fixed reading
type stubSensor struct {
	mu          sync.Mutex
	temperature float64
	humidity    float64
	err         error
	closed      bool
}

func (s *stubSensor) Read() (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temperature, s.humidity, s.err
}

func (s *stubSensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSensor) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func testConfig(transport string) *config.Config {
	cfg := &config.Config{}
	cfg.Agent.ID = "test-agent"
	cfg.Agent.Timezone = "UTC"
	cfg.Sensor.ReadInterval = 20 * time.Millisecond
	cfg.Control.Transport = transport
	cfg.ApplyDefaults()
	cfg.Server.Disabled = true
	cfg.Server.Timeout = time.Second
	return cfg
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{"defaults", nil, options{}, false},
		{"config long", []string{"--config", "agent.yaml"}, options{configPath: "agent.yaml"}, false},
		{"config short", []string{"-c", "agent.yaml"}, options{configPath: "agent.yaml"}, false},
		{"version", []string{"--version"}, options{showVersion: true}, false},
		{"print state", []string{"--print-state"}, options{printState: true}, false},
		{"unknown flag", []string{"--bogus"}, options{}, true},
		{"positional", []string{"extra"}, options{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args, &bytes.Buffer{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("options = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPrintState(t *testing.T) {
	cfg := testConfig(config.TransportNone)
	var out bytes.Buffer

	if err := printState(context.Background(), cfg, &stubSensor{temperature: 30, humidity: 70}, &out); err != nil {
		t.Fatalf("printState: %v", err)
	}
	for _, want := range []string{"temp: 30.0°C, humidity: 70.0%", "heater=OFF cooler=ON humidifier=OFF"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output %q missing %q", out.String(), want)
		}
	}

	err := printState(context.Background(), cfg, &stubSensor{err: errors.New("checksum")}, &out)
	if err == nil {
		t.Error("expected sensor error")
	}
}

func TestAgent_RunAppliesRulesAndFailsSafe(t *testing.T) {
	cfg := testConfig(config.TransportNone)
	dev := &stubSensor{temperature: 10, humidity: 50}
	bank := actuator.NewFakeBank()

	a, err := newAgent(cfg, dev, bank, clock.System{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("newAgent: %v", err)
	}
	if a.channel != nil || a.status != nil {
		t.Fatal("transport none with no status listen should wire neither")
	}
	if a.reporter != nil {
		t.Fatal("disabled telemetry should not wire a reporter")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	want := models.ActuatorState{Heater: true, Humidifier: true}
	waitUntil(t, "rule-engine state", func() bool { return bank.State() == want })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return")
	}

	if got := bank.State(); got != models.AllOff {
		t.Errorf("state after shutdown = %v, want all off", got)
	}
	if !bank.Closed {
		t.Error("actuator bank not closed")
	}
	if !dev.Closed() {
		t.Error("sensor not closed")
	}
	if !a.arbiter.State().ShutDown {
		t.Error("arbiter not shut down")
	}
}

func TestAgent_EndToEndWithHub(t *testing.T) {
	store := server.NewMemoryStore(100)
	api := server.NewAPIHandler(store, zerolog.Nop())
	hub := server.NewHub("secret", zerolog.Nop())
	srv := httptest.NewServer(server.NewRouter(api, hub, "test"))
	defer srv.Close()

	cfg := testConfig(config.TransportWebsocket)
	cfg.Server.Disabled = false
	cfg.Server.URL = srv.URL
	cfg.Control.URL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/control"
	cfg.Control.AuthToken = "secret"

	dev := &stubSensor{temperature: 10, humidity: 50}
	bank := actuator.NewFakeBank()
	a, err := newAgent(cfg, dev, bank, clock.System{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("newAgent: %v", err)
	}
	if a.reporter == nil {
		t.Fatal("telemetry reporter not wired")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	auto := models.ActuatorState{Heater: true, Humidifier: true}
	waitUntil(t, "hub to record the autonomous state", func() bool {
		for _, ag := range hub.Agents() {
			if ag.AgentID == "test-agent" && ag.State != nil && *ag.State == auto {
				return true
			}
		}
		return false
	})
	waitUntil(t, "telemetry to reach the hub", func() bool {
		return store.GetCurrent("test-agent") != nil
	})

	manual := models.ActuatorState{Cooler: true}
	if n, err := hub.Relay("test-agent", models.ControlMessage{ManualControl: true, State: &manual}); err != nil || n != 1 {
		t.Fatalf("Relay = %d, %v", n, err)
	}
	waitUntil(t, "manual override applied", func() bool { return bank.State() == manual })

	if _, err := hub.Relay("test-agent", models.ControlMessage{ManualControl: false}); err != nil {
		t.Fatalf("Relay release: %v", err)
	}
	waitUntil(t, "autonomous control resumed", func() bool { return bank.State() == auto })

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
	if got := bank.State(); got != models.AllOff {
		t.Errorf("state after shutdown = %v, want all off", got)
	}
}
