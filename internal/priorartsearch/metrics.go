package priorartsearch

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/joelkehle/prior-art-engine/internal/logging"
)

// Metrics holds the engine's collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	searches      *prometheus.CounterVec
	degraded      *prometheus.CounterVec
	llmCalls      *prometheus.CounterVec
	apiRequests   *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.searches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prior_art_searches_total",
			Help: "Completed search runs by outcome",
		},
		[]string{"outcome"},
	)
	m.degraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prior_art_degraded_items_total",
			Help: "Items that degraded to an empty or zero result, by phase",
		},
		[]string{"phase"},
	)
	m.llmCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prior_art_llm_calls_total",
			Help: "Model calls by purpose and outcome",
		},
		[]string{"purpose", "outcome"},
	)
	m.apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prior_art_patent_api_requests_total",
			Help: "Patent API HTTP requests by endpoint and status code",
		},
		[]string{"endpoint", "status"},
	)
	m.phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prior_art_phase_duration_seconds",
			Help:    "Wall time spent per pipeline phase",
			Buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"phase"},
	)
	m.registry.MustRegister(m.searches, m.degraded, m.llmCalls, m.apiRequests, m.phaseDuration)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the current values in the node-exporter textfile
// format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeSearch(outcome string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeDegraded(phase Phase) {
	if m == nil {
		return
	}
	m.degraded.WithLabelValues(string(phase)).Inc()
}

func (m *Metrics) observeLLMCall(purpose string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(classifyFailure(err))
	}
	m.llmCalls.WithLabelValues(purpose, outcome).Inc()
}

func (m *Metrics) observeAPIRequest(endpoint string, status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.apiRequests.WithLabelValues(endpoint, label).Inc()
}

func (m *Metrics) observePhase(phase Phase, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(string(phase)).Observe(d.Seconds())
}

func orDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return logging.Discard()
	}
	return l
}
