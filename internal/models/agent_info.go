package models

import "time"

// AgentInfo identifies a running agent on the control channel
type AgentInfo struct {
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	StartTime time.Time `json:"start_time"`
}

// Uptime returns the duration since the agent started
func (a *AgentInfo) Uptime() time.Duration {
	return time.Since(a.StartTime)
}

// NewAgentInfo creates an AgentInfo with the current time as start time
func NewAgentInfo(id, version string) *AgentInfo {
	return &AgentInfo{
		ID:        id,
		Version:   version,
		StartTime: time.Now(),
	}
}
