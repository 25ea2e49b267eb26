// Package metrics provides Prometheus metrics for the email rename job.
// The job is short-lived, so metrics are pushed to a Pushgateway at the end of
// a run instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Record outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)

// Metrics holds all Prometheus metrics for one run.
type Metrics struct {
	registry *prometheus.Registry

	// Record metrics
	Records *prometheus.CounterVec

	// Timing metrics
	FetchDuration  prometheus.Histogram
	UpdateDuration *prometheus.HistogramVec
	RunDuration    prometheus.Gauge

	// Run outcome
	LastSuccess prometheus.Gauge
	RunFatal    *prometheus.CounterVec
}

// Config holds metrics configuration.
type Config struct {
	PushgatewayURL string
	Job            string
	Mode           string
}

// New creates the metric set on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "email_rename"
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Rename records by outcome",
			},
			[]string{"outcome"},
		),
		FetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Time to fetch the CSV object",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
		),
		UpdateDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "update_duration_seconds",
				Help:      "Time to apply one rename against the identity provider",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 11), // 10ms to ~20s
			},
			[]string{"outcome"},
		),
		RunDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of the last run",
			},
		),
		LastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_last_success_timestamp_seconds",
				Help:      "Unix time of the last run that finished with no failed records",
			},
		),
		RunFatal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "run_fatal_total",
				Help:      "Runs aborted before processing records",
			},
			[]string{"stage"},
		),
	}
}

// AddRecords adds n records with the given outcome.
func (m *Metrics) AddRecords(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Records.WithLabelValues(outcome).Add(float64(n))
}

// ObserveUpdate records one executor call.
func (m *Metrics) ObserveUpdate(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(outcome).Inc()
	m.UpdateDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveFetch records the fetch time.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// IncRunFatal counts a run that aborted at stage.
func (m *Metrics) IncRunFatal(stage string) {
	if m == nil {
		return
	}
	m.RunFatal.WithLabelValues(stage).Inc()
}

// FinishRun sets the run-level gauges.
func (m *Metrics) FinishRun(d time.Duration, clean bool) {
	if m == nil {
		return
	}
	m.RunDuration.Set(d.Seconds())
	if clean {
		m.LastSuccess.SetToCurrentTime()
	}
}

// Push sends all metrics to the Pushgateway. A no-op without a URL.
func (m *Metrics) Push(ctx context.Context, cfg Config) error {
	if m == nil || cfg.PushgatewayURL == "" {
		return nil
	}

	pusher := push.New(cfg.PushgatewayURL, cfg.Job).Gatherer(m.registry)
	if cfg.Mode != "" {
		pusher = pusher.Grouping("mode", cfg.Mode)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", cfg.PushgatewayURL, err)
	}
	return nil
}
