// Package metrics exposes the agent's Prometheus instruments.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/afroash/climate-agent/internal/models"
)

// Cycle outcomes
const (
	OutcomeOK          = "ok"
	OutcomeSensorError = "sensor_error"
)

// Report results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

type Metrics struct {
	registry *prometheus.Registry

	cycles         *prometheus.CounterVec
	skipped        prometheus.Counter
	reports        *prometheus.CounterVec
	actuatorOn     *prometheus.GaugeVec
	overrideActive prometheus.Gauge
	temperature    prometheus.Gauge
	humidity       prometheus.Gauge
	connected      prometheus.Gauge
	cycleDuration  prometheus.Histogram
}

// New creates the instruments on a private registry so several agents can
// coexist in one test binary.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "climate_cycles_total",
			Help: "Control cycles run, by outcome.",
		}, []string{"outcome"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "climate_cycles_skipped_total",
			Help: "Timer ticks dropped because a cycle overran its period.",
		}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "climate_telemetry_reports_total",
			Help: "Telemetry posts, by result.",
		}, []string{"result"}),
		actuatorOn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "climate_actuator_on",
			Help: "Last applied actuator command (1 on, 0 off).",
		}, []string{"channel"}),
		overrideActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "climate_override_active",
			Help: "1 while a remote manual override is in force.",
		}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "climate_temperature_celsius",
			Help: "Last sampled temperature.",
		}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "climate_humidity_percent",
			Help: "Last sampled relative humidity.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "climate_control_connected",
			Help: "1 while the control channel is connected.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "climate_cycle_duration_seconds",
			Help:    "Wall time of one sample/decide/actuate pass.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.cycles,
		m.skipped,
		m.reports,
		m.actuatorOn,
		m.overrideActive,
		m.temperature,
		m.humidity,
		m.connected,
		m.cycleDuration,
	)

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CycleCompleted(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(seconds)
}

func (m *Metrics) CyclesSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skipped.Add(float64(n))
}

func (m *Metrics) ReportSent(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.reports.WithLabelValues(ResultFailure).Inc()
		return
	}
	m.reports.WithLabelValues(ResultSuccess).Inc()
}

func (m *Metrics) ObserveReading(r models.Reading) {
	if m == nil {
		return
	}
	m.temperature.Set(r.Temperature)
	m.humidity.Set(r.Humidity)
}

func (m *Metrics) ObserveState(s models.ActuatorState, mode models.ControlMode) {
	if m == nil {
		return
	}
	m.actuatorOn.WithLabelValues("heater").Set(boolGauge(s.Heater))
	m.actuatorOn.WithLabelValues("cooler").Set(boolGauge(s.Cooler))
	m.actuatorOn.WithLabelValues("humidifier").Set(boolGauge(s.Humidifier))
	m.overrideActive.Set(boolGauge(mode == models.ModeManual))
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	m.connected.Set(boolGauge(connected))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
