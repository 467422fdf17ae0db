// Package telemetry posts readings to the server.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/afroash/climate-agent/internal/metrics"
	"github.com/afroash/climate-agent/internal/models"
	"github.com/rs/zerolog"
)

// ErrReport wraps every failed delivery
var ErrReport = errors.New("telemetry report failed")

// AgentHeader names the agent a reading belongs to
const AgentHeader = "X-Agent-ID"

// Reporter sends readings as JSON to <server>/api/params
type Reporter struct {
	endpoint string
	agentID  string
	client   *http.Client
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewReporter creates a reporter. timeout bounds each request.
func NewReporter(serverURL, paramsPath, agentID string, timeout time.Duration, logger zerolog.Logger) *Reporter {
	if paramsPath == "" {
		paramsPath = "/api/params"
	}
	if !strings.HasPrefix(paramsPath, "/") {
		paramsPath = "/" + paramsPath
	}
	return &Reporter{
		endpoint: strings.TrimRight(serverURL, "/") + paramsPath,
		agentID:  agentID,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// SetMetrics attaches instruments
func (r *Reporter) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// Endpoint returns the URL readings are posted to
func (r *Reporter) Endpoint() string {
	return r.endpoint
}

// Send posts one reading. Any transport failure or non-2xx status is an ErrReport.
func (r *Reporter) Send(ctx context.Context, reading models.Reading) error {
	err := r.send(ctx, reading)
	r.metrics.ReportSent(err)
	return err
}

func (r *Reporter) send(ctx context.Context, reading models.Reading) error {
	body, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrReport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrReport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.agentID != "" {
		req.Header.Set(AgentHeader, r.agentID)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: server returned %s", ErrReport, resp.Status)
	}

	r.logger.Debug().
		Str("endpoint", r.endpoint).
		Int("status", resp.StatusCode).
		Msg("Reading delivered")
	return nil
}
