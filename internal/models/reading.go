package models

import (
	"fmt"
	"time"
)

// Reading is one temperature/humidity sample. Time is whole seconds since the
// Unix epoch; the JSON form is exactly the telemetry body posted upstream.
type Reading struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Time        int64   `json:"time"`
}

// NewReading creates a Reading stamped with the given instant, truncated to seconds
func NewReading(temperature, humidity float64, at time.Time) Reading {
	return Reading{
		Temperature: temperature,
		Humidity:    humidity,
		Time:        at.Unix(),
	}
}

// Timestamp returns the sample time in the given location
func (r Reading) Timestamp(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(r.Time, 0).In(loc)
}

// IsValid checks the values are plausible for a DHT-class sensor
func (r Reading) IsValid() bool {
	const (
		minTemp     = -20.0
		maxTemp     = 60.0
		minHumidity = 0.0
		maxHumidity = 100.0
	)

	if r.Time <= 0 {
		return false
	}
	if r.Temperature < minTemp || r.Temperature > maxTemp {
		return false
	}
	if r.Humidity < minHumidity || r.Humidity > maxHumidity {
		return false
	}
	return true
}

// String formats the reading with one-decimal precision
func (r Reading) String() string {
	return fmt.Sprintf("temp: %.1f°C, humidity: %.1f%%", r.Temperature, r.Humidity)
}

// Sample is a Reading attributed to the agent that reported it.
// Only the hub server deals in samples.
type Sample struct {
	AgentID string `json:"agent_id"`
	Reading
}

// Copy returns a copy of the sample
func (s *Sample) Copy() *Sample {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
