package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/climate-agent/internal/models"
	"github.com/afroash/climate-agent/internal/storage"
)

const (
	// AgentHeader names the reporting agent on telemetry posts
	AgentHeader = "X-Agent-ID"
	// DefaultAgentID is used when a post carries no AgentHeader
	DefaultAgentID = "default"

	maxParamsBody = 4 << 10
)

// APIHandler handles telemetry ingest and the query API
type APIHandler struct {
	store   SampleStore
	history HistoricalStore
	writer  SampleWriter
	logger  zerolog.Logger
	now     func() time.Time
}

// NewAPIHandler creates a new API handler backed by the memory store only
func NewAPIHandler(store SampleStore, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// SetHistory enables the SQLite-backed endpoints
func (api *APIHandler) SetHistory(history HistoricalStore) {
	api.history = history
}

// SetWriter persists every ingested sample through w
func (api *APIHandler) SetWriter(w SampleWriter) {
	api.writer = w
}

// HandleParams ingests one reading posted by an agent
func (api *APIHandler) HandleParams(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxParamsBody)

	var reading models.Reading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if reading.Time == 0 {
		reading.Time = api.now().Unix()
	}
	if !reading.IsValid() {
		api.logger.Warn().
			Float64("temp", reading.Temperature).
			Float64("humidity", reading.Humidity).
			Int64("time", reading.Time).
			Msg("Reading ignored: invalid")
		writeError(w, http.StatusUnprocessableEntity, "reading out of range")
		return
	}

	agentID := r.Header.Get(AgentHeader)
	if agentID == "" {
		agentID = DefaultAgentID
	}
	sample := &models.Sample{AgentID: agentID, Reading: reading}

	api.store.Add(sample)
	if api.writer != nil && !api.writer.Write(sample) {
		api.logger.Warn().Str("agent_id", agentID).Msg("History queue full, sample not persisted")
	}

	api.logger.Debug().
		Str("agent_id", agentID).
		Float64("temp", reading.Temperature).
		Float64("humidity", reading.Humidity).
		Msg("Reading stored")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleCurrent returns the latest sample for an agent (default: first agent)
func (api *APIHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	agentID := api.agentParam(r)
	if agentID == "" {
		writeError(w, http.StatusNotFound, "no agents found")
		return
	}

	sample := api.store.GetCurrent(agentID)
	if sample == nil && api.history != nil {
		var err error
		sample, err = api.history.GetLatestSample(agentID)
		if err != nil {
			api.logger.Error().Err(err).Str("agent_id", agentID).Msg("Failed to query latest sample")
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
	}
	if sample == nil {
		writeError(w, http.StatusNotFound, "no readings available")
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// HandleHistory returns recent samples, newest first. With start (RFC3339)
// the range is served from the database instead of memory.
func (api *APIHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := intParam(query.Get("limit"), 50)

	agentID := api.agentParam(r)
	if agentID == "" {
		writeJSON(w, http.StatusOK, []*models.Sample{})
		return
	}

	startStr := query.Get("start")
	if startStr == "" {
		samples := api.store.GetLatest(agentID, limit)
		if samples == nil {
			samples = []*models.Sample{}
		}
		writeJSON(w, http.StatusOK, samples)
		return
	}

	if api.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history database disabled")
		return
	}
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be RFC3339")
		return
	}
	end := api.now()
	if endStr := query.Get("end"); endStr != "" {
		if end, err = time.Parse(time.RFC3339, endStr); err != nil {
			writeError(w, http.StatusBadRequest, "end must be RFC3339")
			return
		}
	}

	samples, err := api.history.GetSamplesInRange(agentID, start, end, limit)
	if err != nil {
		api.logger.Error().Err(err).Str("agent_id", agentID).Msg("Failed to query history")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if samples == nil {
		samples = []*models.Sample{}
	}
	writeJSON(w, http.StatusOK, samples)
}

// StatsResponse combines memory and database statistics
type StatsResponse struct {
	Memory   StoreStats            `json:"memory"`
	Database *storage.StorageStats `json:"database,omitempty"`
}

// HandleStats returns store statistics
func (api *APIHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Memory: api.store.Stats()}
	if api.history != nil {
		dbStats, err := api.history.GetStorageStats()
		if err != nil {
			api.logger.Warn().Err(err).Msg("Failed to read database stats")
		} else {
			resp.Database = dbStats
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleDailyStats returns per-day aggregates over the last `days` days
func (api *APIHandler) HandleDailyStats(w http.ResponseWriter, r *http.Request) {
	if api.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history database disabled")
		return
	}

	agentID := api.agentParam(r)
	if agentID == "" {
		writeJSON(w, http.StatusOK, []storage.DailyStat{})
		return
	}
	days := intParam(r.URL.Query().Get("days"), 7)

	end := api.now()
	start := end.AddDate(0, 0, -days)
	stats, err := api.history.GetDailyStats(agentID, start, end)
	if err != nil {
		api.logger.Error().Err(err).Str("agent_id", agentID).Msg("Failed to query daily stats")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if stats == nil {
		stats = []storage.DailyStat{}
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleAgents lists every agent known to memory or history
func (api *APIHandler) HandleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.agentIDs())
}

func (api *APIHandler) agentIDs() []string {
	seen := make(map[string]struct{})
	for _, id := range api.store.GetAgentIDs() {
		seen[id] = struct{}{}
	}
	if api.history != nil {
		ids, err := api.history.GetAgentIDs()
		if err != nil {
			api.logger.Warn().Err(err).Msg("Failed to list agents from history")
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// agentParam returns the agent_id query parameter or the first known agent
func (api *APIHandler) agentParam(r *http.Request) string {
	if id := r.URL.Query().Get("agent_id"); id != "" {
		return id
	}
	ids := api.agentIDs()
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorMessage{Code: http.StatusText(status), Message: message})
}
