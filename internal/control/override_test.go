package control

import (
	"sync"
	"testing"

	"github.com/afroash/climate-agent/internal/models"
	"github.com/rs/zerolog"
)

func TestOverrideStore_StartsEmpty(t *testing.T) {
	s := NewOverrideStore(zerolog.Nop())
	if _, ok := s.Current(); ok {
		t.Error("new store should have no override")
	}
}

func TestOverrideStore_Apply(t *testing.T) {
	s := NewOverrideStore(zerolog.Nop())
	want := State{Heater: true}

	s.Apply(models.ControlMessage{ManualControl: true, State: &want})
	got, ok := s.Current()
	if !ok || got != want {
		t.Fatalf("Current() = %+v, %v; want %+v, true", got, ok, want)
	}

	replacement := State{Cooler: true, Humidifier: true}
	s.Apply(models.ControlMessage{ManualControl: true, State: &replacement})
	got, _ = s.Current()
	if got != replacement {
		t.Errorf("Current() = %+v, want replacement %+v", got, replacement)
	}
}

func TestOverrideStore_ApplyClears(t *testing.T) {
	tests := []struct {
		name string
		msg  models.ControlMessage
	}{
		{"manual withdrawn", models.ControlMessage{ManualControl: false}},
		{"manual without state", models.ControlMessage{ManualControl: true}},
		{"withdrawn with stale state", models.ControlMessage{ManualControl: false, State: &State{Heater: true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewOverrideStore(zerolog.Nop())
			s.Apply(models.ControlMessage{ManualControl: true, State: &State{Heater: true}})
			s.Apply(tt.msg)
			if _, ok := s.Current(); ok {
				t.Error("override should be cleared")
			}
		})
	}
}

func TestOverrideStore_ClearOnDisconnect(t *testing.T) {
	s := NewOverrideStore(zerolog.Nop())
	s.Apply(models.ControlMessage{ManualControl: true, State: &State{Heater: true}})

	s.ClearOnDisconnect()
	if _, ok := s.Current(); ok {
		t.Error("override should be cleared on disconnect")
	}

	// Idempotent when nothing is set
	s.ClearOnDisconnect()
}

func TestOverrideStore_StoresCopy(t *testing.T) {
	s := NewOverrideStore(zerolog.Nop())
	state := State{Heater: true}
	s.Apply(models.ControlMessage{ManualControl: true, State: &state})

	state.Heater = false
	got, _ := s.Current()
	if !got.Heater {
		t.Error("store must not alias the caller's state")
	}
}

func TestOverrideStore_ConcurrentReadsSeeWholeValues(t *testing.T) {
	s := NewOverrideStore(zerolog.Nop())
	allOn := State{Heater: true, Cooler: true, Humidifier: true}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if i%2 == 0 {
				s.Apply(models.ControlMessage{ManualControl: true, State: &allOn})
			} else {
				s.ClearOnDisconnect()
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			got, ok := s.Current()
			if ok && got != allOn {
				t.Errorf("torn read: %+v", got)
				return
			}
			if !ok && got != (State{}) {
				t.Errorf("absent override returned non-zero state: %+v", got)
				return
			}
		}
	}()
	wg.Wait()
}
