// Package mqtt carries the control channel over an MQTT broker as an
// alternative to the websocket transport.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/afroash/climate-agent/internal/models"
)

// ErrNotConnected is returned by BroadcastAuto while the broker is unreachable.
// Broadcasts are never queued.
var ErrNotConnected = errors.New("mqtt broker not connected")

// Retained payloads on the status topic
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Topics are the per-agent topic names under a common prefix
type Topics struct {
	Control string // inbound operator commands
	State   string // outbound autonomous decisions
	Status  string // retained online/offline, also the will
}

// NewTopics builds <prefix>/<agentID>/{control,state,status}
func NewTopics(prefix, agentID string) Topics {
	base := fmt.Sprintf("%s/%s", prefix, agentID)
	return Topics{
		Control: base + "/control",
		State:   base + "/state",
		Status:  base + "/status",
	}
}

// DecodeControl parses an operator command. Autonomous announcements that
// loop back onto the control topic are rejected.
func DecodeControl(payload []byte) (models.ControlMessage, error) {
	var probe struct {
		AutoControl bool `json:"autoControl"`
		models.ControlMessage
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return models.ControlMessage{}, fmt.Errorf("decode control payload: %w", err)
	}
	if probe.AutoControl {
		return models.ControlMessage{}, errors.New("autonomous announcement on control topic")
	}
	return probe.ControlMessage, nil
}

// EncodeState formats an autonomous decision for the state topic
func EncodeState(state models.ActuatorState) ([]byte, error) {
	return json.Marshal(models.NewAutoControlMessage(state))
}
