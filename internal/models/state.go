package models

import "fmt"

// ActuatorState is the full on/off command set for the three channels.
type ActuatorState struct {
	Heater     bool `json:"heater"`
	Cooler     bool `json:"cooler"`
	Humidifier bool `json:"humidifier"`
}

// AllOff is the fail-safe state
var AllOff = ActuatorState{}

func (s ActuatorState) String() string {
	return fmt.Sprintf("heater=%s cooler=%s humidifier=%s",
		onOff(s.Heater), onOff(s.Cooler), onOff(s.Humidifier))
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// ControlMode says where the applied state came from
type ControlMode string

const (
	ModeAuto   ControlMode = "auto"
	ModeManual ControlMode = "manual"
)

// ControlMessage is the inbound "control" event from the server.
// State is only meaningful when ManualControl is true.
type ControlMessage struct {
	ManualControl bool           `json:"manualControl"`
	State         *ActuatorState `json:"state,omitempty"`
}

// Override returns the commanded state and whether the message imposes manual control
func (m ControlMessage) Override() (ActuatorState, bool) {
	if !m.ManualControl || m.State == nil {
		return ActuatorState{}, false
	}
	return *m.State, true
}

// AutoControlMessage is the outbound "control" event announcing an autonomous decision
type AutoControlMessage struct {
	AutoControl bool          `json:"autoControl"`
	State       ActuatorState `json:"state"`
}

// NewAutoControlMessage wraps an autonomous decision for broadcast
func NewAutoControlMessage(state ActuatorState) AutoControlMessage {
	return AutoControlMessage{AutoControl: true, State: state}
}
