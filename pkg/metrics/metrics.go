// Package metrics exposes Prometheus counters for device trust decisions.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registration outcomes
const (
	OutcomeMatched  = "matched"
	OutcomeCreated  = "created"
	OutcomeBlocked  = "blocked"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
)

// Removal outcomes
const (
	OutcomeRemoved   = "removed"
	OutcomeThrottled = "throttled"
	OutcomeNotFound  = "not_found"
)

// Token results
const (
	TokenIssued  = "issued"
	TokenValid   = "valid"
	TokenInvalid = "invalid"
)

type Metrics struct {
	registrations *prometheus.CounterVec
	removals      *prometheus.CounterVec
	tokens        *prometheus.CounterVec
	accountBlocks prometheus.Counter
	matchScore    prometheus.Histogram
	alertFailures prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "device_registrations_total",
				Help: "Device registrations by outcome",
			},
			[]string{"outcome"},
		),
		removals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "device_removals_total",
				Help: "Device removal attempts by outcome",
			},
			[]string{"outcome"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "device_management_tokens_total",
				Help: "Management tokens issued and verified",
			},
			[]string{"result"},
		),
		accountBlocks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "device_account_blocks_total",
				Help: "Accounts blocked for exceeding the device limit",
			},
		),
		matchScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "device_match_score",
				Help:    "Best similarity score observed per registration",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		alertFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "device_block_alert_failures_total",
				Help: "Block alerts that could not be delivered",
			},
		),
	}
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.registrations.Describe(ch)
	m.removals.Describe(ch)
	m.tokens.Describe(ch)
	m.accountBlocks.Describe(ch)
	m.matchScore.Describe(ch)
	m.alertFailures.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.registrations.Collect(ch)
	m.removals.Collect(ch)
	m.tokens.Collect(ch)
	m.accountBlocks.Collect(ch)
	m.matchScore.Collect(ch)
	m.alertFailures.Collect(ch)
}

func (m *Metrics) Registration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) MatchScore(score float64) {
	if m == nil {
		return
	}
	m.matchScore.Observe(score)
}

func (m *Metrics) Removal(outcome string) {
	if m == nil {
		return
	}
	m.removals.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Token(result string) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(result).Inc()
}

func (m *Metrics) AccountBlocked() {
	if m == nil {
		return
	}
	m.accountBlocks.Inc()
}

func (m *Metrics) AlertFailed() {
	if m == nil {
		return
	}
	m.alertFailures.Inc()
}

// Handler serves the metrics of m from a dedicated registry
func Handler(m *Metrics) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(m); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
