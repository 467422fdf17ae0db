package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/climate-agent/internal/models"
)

func newTestRouter(t *testing.T, token string) (*httptest.Server, *MemoryStore, *Hub) {
	t.Helper()
	store := NewMemoryStore(10)
	api := NewAPIHandler(store, zerolog.Nop())
	hub := NewHub(token, zerolog.Nop())
	srv := httptest.NewServer(NewRouter(api, hub, "1.2.3"))
	t.Cleanup(srv.Close)
	return srv, store, hub
}

func TestRouter_Routes(t *testing.T) {
	srv, _, _ := newTestRouter(t, "")

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{"GET", "/health", "", http.StatusOK},
		{"POST", "/api/params", `{"temperature":20,"humidity":50,"time":1700000000}`, http.StatusOK},
		{"GET", "/api/params", "", http.StatusMethodNotAllowed},
		{"GET", "/api/current", "", http.StatusOK},
		{"GET", "/api/history", "", http.StatusOK},
		{"GET", "/api/stats", "", http.StatusOK},
		{"GET", "/api/daily/stats", "", http.StatusServiceUnavailable},
		{"GET", "/api/agents", "", http.StatusOK},
		{"GET", "/api/control", "", http.StatusOK},
		{"POST", "/api/control", `{"manualControl":false}`, http.StatusNotFound},
		{"GET", "/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRouter_ControlRequiresToken(t *testing.T) {
	srv, _, _ := newTestRouter(t, "secret")

	resp, err := http.Post(srv.URL+"/api/control", "application/json", strings.NewReader(`{"manualControl":false}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	// ingest stays open so agents only need the token for the control channel
	resp, err = http.Post(srv.URL+"/api/params", "application/json", strings.NewReader(`{"temperature":20,"humidity":50,"time":1700000000}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("params status = %d, want 200", resp.StatusCode)
	}
}

func TestRouter_OperatorCommandReachesAgent(t *testing.T) {
	srv, _, _ := newTestRouter(t, "secret")

	header := http.Header{}
	header.Set("Authorization", "Bearer secret")
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/control", header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	register(t, conn, "greenhouse-1")

	body := `{"agent_id":"greenhouse-1","manualControl":true,"state":{"heater":false,"cooler":true,"humidifier":false}}`
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/control", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var cr ControlResponse
	json.NewDecoder(resp.Body).Decode(&cr)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || cr.Delivered != 1 {
		t.Fatalf("status = %d, delivered = %d", resp.StatusCode, cr.Delivered)
	}

	msg := readMsg(t, conn)
	var cmd models.ControlMessage
	if err := msg.UnmarshalPayload(&cmd); err != nil {
		t.Fatal(err)
	}
	if got, ok := cmd.Override(); !ok || got != (models.ActuatorState{Cooler: true}) {
		t.Errorf("override = %v %v", got, ok)
	}
}
