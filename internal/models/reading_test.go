// internal/models/reading_test.go
package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestReading_IsValid(t *testing.T) {
	now := time.Now().Unix()
	tests := []struct {
		name     string
		reading  Reading
		expected bool
	}{
		{"valid reading", Reading{Temperature: 22.5, Humidity: 45.0, Time: now}, true},
		{"temperature too low", Reading{Temperature: -25.0, Humidity: 45.0, Time: now}, false},
		{"temperature too high", Reading{Temperature: 65.0, Humidity: 45.0, Time: now}, false},
		{"humidity negative", Reading{Temperature: 22.5, Humidity: -1.0, Time: now}, false},
		{"humidity over 100", Reading{Temperature: 22.5, Humidity: 101.0, Time: now}, false},
		{"missing time", Reading{Temperature: 22.5, Humidity: 45.0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.reading.IsValid(); got != tt.expected {
				t.Errorf("IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNewReading_TruncatesToSeconds(t *testing.T) {
	at := time.Date(2024, 6, 1, 14, 30, 15, 987_000_000, time.UTC)
	r := NewReading(25, 50, at)

	if r.Time != at.Unix() {
		t.Errorf("Time = %d, want %d", r.Time, at.Unix())
	}
	if got := r.Timestamp(time.UTC); got.Hour() != 14 || got.Second() != 15 {
		t.Errorf("Timestamp() = %v, want 14:30:15", got)
	}
}

func TestReading_JSONMatchesTelemetryBody(t *testing.T) {
	r := Reading{Temperature: 21.5, Humidity: 40, Time: 1700000000}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `{"temperature":21.5,"humidity":40,"time":1700000000}`
	if string(data) != want {
		t.Errorf("JSON = %s, want %s", data, want)
	}
}

func TestReading_String(t *testing.T) {
	r := Reading{Temperature: 25, Humidity: 50.04}
	if got := r.String(); got != "temp: 25.0°C, humidity: 50.0%" {
		t.Errorf("String() = %q", got)
	}
}

func TestSample_Copy(t *testing.T) {
	s := &Sample{AgentID: "greenhouse", Reading: Reading{Temperature: 20, Humidity: 55, Time: 10}}
	c := s.Copy()
	c.Temperature = 99

	if s.Temperature != 20 {
		t.Error("Copy should not share memory with original")
	}

	var nilSample *Sample
	if nilSample.Copy() != nil {
		t.Error("Copy of nil should be nil")
	}
}
