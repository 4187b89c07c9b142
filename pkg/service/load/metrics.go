package load

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.keploy.io/testengine/pkg/models"
)

// Metrics holds the Prometheus collectors of one load test. Each tester
// owns its registry so concurrent tests do not share series.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	ActiveUsers     prometheus.Gauge
	MemoryPercent   prometheus.Gauge
	LoadAverage     prometheus.Gauge
	Phase           *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "testengine_load_requests_total",
				Help: "Workload invocations by outcome",
			},
			[]string{"outcome"},
		),
		RequestDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "testengine_load_request_duration_seconds",
				Help:    "Workload invocation duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		ActiveUsers: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "testengine_load_active_users",
				Help: "Virtual users currently running",
			},
		),
		MemoryPercent: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "testengine_load_memory_percent",
				Help: "System memory in use as a percentage of total memory",
			},
		),
		LoadAverage: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "testengine_load_load_average",
				Help: "One minute system load average",
			},
		),
		Phase: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "testengine_load_phase",
				Help: "1 for the current phase of the load test, 0 otherwise",
			},
			[]string{"phase"},
		),
	}
}

func (m *Metrics) observeRequest(latency time.Duration, failed bool) {
	outcome := "success"
	if failed {
		outcome = "failure"
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
	m.RequestDuration.Observe(latency.Seconds())
}

func (m *Metrics) observeHealth(s models.HealthSample) {
	m.MemoryPercent.Set(s.MemoryPercent)
	m.LoadAverage.Set(s.LoadAverage)
}

func (m *Metrics) setPhase(from, to models.LoadState) {
	if from != "" {
		m.Phase.WithLabelValues(string(from)).Set(0)
	}
	m.Phase.WithLabelValues(string(to)).Set(1)
}
