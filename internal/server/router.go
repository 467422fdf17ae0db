package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter wires the hub's HTTP surface
func NewRouter(api *APIHandler, hub *Hub, version string) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
	}).Methods("GET")

	r.HandleFunc("/api/params", api.HandleParams).Methods("POST")
	r.HandleFunc("/api/current", api.HandleCurrent).Methods("GET")
	r.HandleFunc("/api/history", api.HandleHistory).Methods("GET")
	r.HandleFunc("/api/stats", api.HandleStats).Methods("GET")
	r.HandleFunc("/api/daily/stats", api.HandleDailyStats).Methods("GET")
	r.HandleFunc("/api/agents", api.HandleAgents).Methods("GET")

	r.Handle("/api/control", hub.RequireToken(http.HandlerFunc(hub.HandleControl))).Methods("POST")
	r.Handle("/api/control", hub.RequireToken(http.HandlerFunc(hub.HandleControlState))).Methods("GET")

	r.Handle("/control", hub).Methods("GET")

	return r
}
