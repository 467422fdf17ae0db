// internal/models/message_test.go
package models

import (
	"encoding/json"
	"testing"
)

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(MessageTypeControl, NewAutoControlMessage(ActuatorState{Heater: true}))
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	if msg.Type != MessageTypeControl {
		t.Errorf("Type = %v, want %v", msg.Type, MessageTypeControl)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
	if len(msg.Payload) == 0 {
		t.Error("Payload should not be empty")
	}
}

func TestControlMessage_Decode(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantOverride bool
		wantState    ActuatorState
	}{
		{
			name:         "manual with state",
			raw:          `{"manualControl":true,"state":{"heater":true,"cooler":false,"humidifier":true}}`,
			wantOverride: true,
			wantState:    ActuatorState{Heater: true, Humidifier: true},
		},
		{
			name:         "manual without state",
			raw:          `{"manualControl":true}`,
			wantOverride: false,
		},
		{
			name:         "manual withdrawn",
			raw:          `{"manualControl":false,"state":{"heater":true,"cooler":true,"humidifier":true}}`,
			wantOverride: false,
		},
		{
			name:         "empty object",
			raw:          `{}`,
			wantOverride: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg ControlMessage
			if err := json.Unmarshal([]byte(tt.raw), &msg); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			state, ok := msg.Override()
			if ok != tt.wantOverride {
				t.Fatalf("Override() ok = %v, want %v", ok, tt.wantOverride)
			}
			if ok && state != tt.wantState {
				t.Errorf("Override() state = %+v, want %+v", state, tt.wantState)
			}
		})
	}
}

func TestAutoControlMessage_JSON(t *testing.T) {
	data, err := json.Marshal(NewAutoControlMessage(ActuatorState{Cooler: true, Humidifier: true}))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `{"autoControl":true,"state":{"heater":false,"cooler":true,"humidifier":true}}`
	if string(data) != want {
		t.Errorf("JSON = %s, want %s", data, want)
	}
}

func TestMessage_IsAutoControl(t *testing.T) {
	auto, _ := NewMessage(MessageTypeControl, NewAutoControlMessage(ActuatorState{}))
	if !auto.IsAutoControl() {
		t.Error("autonomous broadcast should be detected")
	}

	manual, _ := NewMessage(MessageTypeControl, ControlMessage{ManualControl: true, State: &ActuatorState{}})
	if manual.IsAutoControl() {
		t.Error("operator command should not be detected as autonomous")
	}

	hb, _ := NewMessage(MessageTypeHeartbeat, HeartbeatMessage{AgentID: "a"})
	if hb.IsAutoControl() {
		t.Error("heartbeat is not a control message")
	}
}

func TestActuatorState_String(t *testing.T) {
	s := ActuatorState{Heater: true}
	if got := s.String(); got != "heater=ON cooler=OFF humidifier=OFF" {
		t.Errorf("String() = %q", got)
	}
}
