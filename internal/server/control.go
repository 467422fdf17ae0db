package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/afroash/climate-agent/internal/models"
)

// ControlRequest is an operator command. An empty AgentID targets every agent.
type ControlRequest struct {
	AgentID string `json:"agent_id,omitempty"`
	models.ControlMessage
}

// ControlResponse reports how many agent connections received the command
type ControlResponse struct {
	Delivered int `json:"delivered"`
}

// HandleControl relays an operator command to the agents.
// manualControl=false, or true without a state, releases manual control.
func (h *Hub) HandleControl(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxParamsBody)

	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	delivered, err := h.Relay(req.AgentID, req.ControlMessage)
	switch {
	case errors.Is(err, ErrNoAgents):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil && delivered == 0:
		h.logger.Error().Err(err).Str("agent_id", req.AgentID).Msg("Operator command not delivered")
		writeError(w, http.StatusBadGateway, "command not delivered")
		return
	case err != nil:
		h.logger.Warn().Err(err).Str("agent_id", req.AgentID).Msg("Operator command partially delivered")
	}

	writeJSON(w, http.StatusOK, ControlResponse{Delivered: delivered})
}

// HandleControlState returns the latest autonomous state per connected agent
func (h *Hub) HandleControlState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Agents())
}
