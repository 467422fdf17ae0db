package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/afroash/climate-agent/internal/models"
	"github.com/rs/zerolog"
)

func TestReporter_Send(t *testing.T) {
	var (
		gotPath   string
		gotAgent  string
		gotType   string
		gotFields map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get(AgentHeader)
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotFields)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reporter := NewReporter(server.URL+"/", "/api/params", "greenhouse-1", time.Second, zerolog.Nop())
	reading := models.Reading{Temperature: 25.0, Humidity: 50.0, Time: 1717250400}

	if err := reporter.Send(context.Background(), reading); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	if gotPath != "/api/params" {
		t.Errorf("path = %q, want /api/params", gotPath)
	}
	if gotAgent != "greenhouse-1" {
		t.Errorf("agent header = %q, want greenhouse-1", gotAgent)
	}
	if gotType != "application/json" {
		t.Errorf("content type = %q", gotType)
	}
	if len(gotFields) != 3 {
		t.Errorf("body has %d fields, want 3: %v", len(gotFields), gotFields)
	}
	if gotFields["time"] != float64(1717250400) {
		t.Errorf("time = %v, want seconds since epoch", gotFields["time"])
	}
	if gotFields["temperature"] != 25.0 || gotFields["humidity"] != 50.0 {
		t.Errorf("body = %v", gotFields)
	}
}

func TestReporter_SendServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	reporter := NewReporter(server.URL, "", "", time.Second, zerolog.Nop())
	err := reporter.Send(context.Background(), models.Reading{})
	if !errors.Is(err, ErrReport) {
		t.Errorf("Send() error = %v, want ErrReport", err)
	}
}

func TestReporter_SendUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	reporter := NewReporter(url, "/api/params", "", 200*time.Millisecond, zerolog.Nop())
	err := reporter.Send(context.Background(), models.Reading{})
	if !errors.Is(err, ErrReport) {
		t.Errorf("Send() error = %v, want ErrReport", err)
	}
}

func TestNewReporter_Endpoint(t *testing.T) {
	tests := []struct {
		server string
		path   string
		want   string
	}{
		{"http://localhost:3000", "/api/params", "http://localhost:3000/api/params"},
		{"http://localhost:3000/", "/api/params", "http://localhost:3000/api/params"},
		{"http://hub:8080", "api/params", "http://hub:8080/api/params"},
		{"http://hub:8080", "", "http://hub:8080/api/params"},
	}
	for _, tt := range tests {
		r := NewReporter(tt.server, tt.path, "", time.Second, zerolog.Nop())
		if got := r.Endpoint(); got != tt.want {
			t.Errorf("Endpoint(%q, %q) = %q, want %q", tt.server, tt.path, got, tt.want)
		}
	}
}
