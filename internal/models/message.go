package models

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeControl   MessageType = "control"
	MessageTypeHeartbeat MessageType = "heartbeat"
	MessageTypeAck       MessageType = "ack"
	MessageTypeError     MessageType = "error"
)

// Message is the envelope for all WebSocket communications
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadJSON,
		Timestamp: time.Now(),
	}, nil
}

// HeartbeatMessage is the payload for MessageTypeHeartbeat
type HeartbeatMessage struct {
	AgentID string `json:"agent_id"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptime"`
}

// AckMessage is the payload for MessageTypeAck
type AckMessage struct {
	Status string `json:"status"`
}

// ErrorMessage is the payload for MessageTypeError
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UnmarshalPayload unmarshals the message payload into the provided struct
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// IsAutoControl reports whether a control payload is an autonomous broadcast
// rather than an operator command. Both travel under MessageTypeControl.
func (m *Message) IsAutoControl() bool {
	if m.Type != MessageTypeControl {
		return false
	}
	var probe struct {
		AutoControl bool `json:"autoControl"`
	}
	if err := json.Unmarshal(m.Payload, &probe); err != nil {
		return false
	}
	return probe.AutoControl
}
