package cron

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes scheduler counters to Prometheus. A nil *Metrics is a
// valid no-op receiver so the service can run without a registry.
type Metrics struct {
	registry     prometheus.Registerer
	jobsTotal    prometheus.Gauge
	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	timerArms    prometheus.Counter
	stuckCleared prometheus.Counter
	saveErrors   prometheus.Counter
}

// InitMetrics registers the scheduler metrics on reg (the default registerer
// when nil).
func InitMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registry: reg,
		jobsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cron_jobs_total",
				Help:      "Number of jobs in the store",
			},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cron_runs_total",
				Help:      "Total number of job runs",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cron_run_duration_seconds",
				Help:      "Duration of job runs",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		timerArms: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cron_timer_arms_total",
				Help:      "Number of times the wake timer was armed",
			},
		),
		stuckCleared: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cron_stuck_markers_cleared_total",
				Help:      "Number of stale running markers force-cleared",
			},
		),
		saveErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cron_store_save_errors_total",
				Help:      "Number of failed job store writes",
			},
		),
	}

	reg.MustRegister(
		m.jobsTotal,
		m.runsTotal,
		m.runDuration,
		m.timerArms,
		m.stuckCleared,
		m.saveErrors,
	)

	return m
}

func (m *Metrics) RecordRun(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *Metrics) SetJobCount(count int) {
	if m == nil {
		return
	}
	m.jobsTotal.Set(float64(count))
}

func (m *Metrics) IncTimerArm() {
	if m == nil {
		return
	}
	m.timerArms.Inc()
}

func (m *Metrics) IncStuckCleared() {
	if m == nil {
		return
	}
	m.stuckCleared.Inc()
}

func (m *Metrics) IncSaveError() {
	if m == nil {
		return
	}
	m.saveErrors.Inc()
}
