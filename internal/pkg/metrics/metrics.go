// Package metrics exposes Prometheus collectors for the scoring, trigger
// detection and segmentation engines. All recording methods accept a nil
// *Manager, so engines can be built without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns the engine collectors.
type Manager struct {
	namespace    string
	scoreBuckets []float64
	registry     prometheus.Registerer

	leadScoresUpdated prometheus.Counter
	leadScoreErrors   prometheus.Counter
	leadScoreValue    prometheus.Histogram

	triggersMatched    *prometheus.CounterVec
	evaluationErrors   prometheus.Counter
	executionsQueued   prometheus.Counter
	segmentsRefreshed  prometheus.Counter
	segmentRefreshLast prometheus.Gauge
}

// NewManager registers the collectors on the configured registry (the
// default registerer unless WithPrometheusRegistry is given).
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:    "crm",
		scoreBuckets: prometheus.LinearBuckets(0, 10, 11),
		registry:     prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}

	auto := promauto.With(m.registry)
	m.leadScoresUpdated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "lead_scores_updated_total",
		Help:      "Lead scores computed and written back",
	})
	m.leadScoreErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "lead_score_errors_total",
		Help:      "Lead score updates that failed",
	})
	m.leadScoreValue = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "lead_score_value",
		Help:      "Distribution of written lead scores",
		Buckets:   m.scoreBuckets,
	})
	m.triggersMatched = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "workflow_triggers_matched_total",
		Help:      "Workflows whose conditions matched an event",
	}, []string{"trigger"})
	m.evaluationErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "workflow_evaluation_errors_total",
		Help:      "Workflows skipped because evaluation or queueing failed",
	})
	m.executionsQueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "workflow_executions_queued_total",
		Help:      "Pending workflow executions inserted",
	})
	m.segmentsRefreshed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "segment_counts_refreshed_total",
		Help:      "Segment member counts recomputed",
	})
	m.segmentRefreshLast = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "segment_refresh_last_unix",
		Help:      "Unix time of the last completed segment count refresh",
	})
	return m
}

// LeadScored records a successful score write.
func (m *Manager) LeadScored(score int) {
	if m == nil {
		return
	}
	m.leadScoresUpdated.Inc()
	m.leadScoreValue.Observe(float64(score))
}

// LeadScoreFailed records a failed score update.
func (m *Manager) LeadScoreFailed() {
	if m == nil {
		return
	}
	m.leadScoreErrors.Inc()
}

// TriggerMatched records a matched workflow for a trigger type.
func (m *Manager) TriggerMatched(trigger string) {
	if m == nil {
		return
	}
	m.triggersMatched.WithLabelValues(trigger).Inc()
}

// EvaluationFailed records a workflow skipped during detection.
func (m *Manager) EvaluationFailed() {
	if m == nil {
		return
	}
	m.evaluationErrors.Inc()
}

// ExecutionQueued records an inserted pending execution.
func (m *Manager) ExecutionQueued() {
	if m == nil {
		return
	}
	m.executionsQueued.Inc()
}

// SegmentsRefreshed records a completed refresh of n segments.
func (m *Manager) SegmentsRefreshed(n int, at time.Time) {
	if m == nil {
		return
	}
	m.segmentsRefreshed.Add(float64(n))
	m.segmentRefreshLast.Set(float64(at.Unix()))
}
