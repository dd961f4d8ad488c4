package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem. A nil
// *Metrics is safe to use everywhere and records nothing.
type Metrics struct {
	DecisionsTotal      *prometheus.CounterVec
	PipelineDuration    *prometheus.HistogramVec
	RedFlagHits         *prometheus.CounterVec
	TrendEscalations    prometheus.Counter
	OutbreakDetections  prometheus.Counter
	AdvisoryAttempts    *prometheus.CounterVec
	AdvisoryDuration    prometheus.Histogram
	AdvisoryCacheHits   prometheus.Counter
	AdvisoryFallbacks   prometheus.Counter
	SessionSaveFailures prometheus.Counter
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sahay_triage_decisions_total",
			Help: "Total triage decisions by final urgency and source.",
		}, []string{"urgency", "source"}),
		PipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sahay_triage_pipeline_duration_seconds",
			Help:    "Duration of triage pipeline runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~40s
		}, []string{"path"}),
		RedFlagHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sahay_triage_red_flag_hits_total",
			Help: "Red-flag rule matches by tier and rule.",
		}, []string{"tier", "rule"}),
		TrendEscalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sahay_triage_trend_escalations_total",
			Help: "Urgency escalations driven by a worsening trajectory.",
		}),
		OutbreakDetections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sahay_triage_outbreak_detections_total",
			Help: "Triage runs that merged an outbreak signal.",
		}),
		AdvisoryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sahay_advisory_attempts_total",
			Help: "Remote advisory call attempts by outcome.",
		}, []string{"outcome"}),
		AdvisoryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sahay_advisory_call_duration_seconds",
			Help:    "Duration of individual remote advisory calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51s
		}),
		AdvisoryCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sahay_advisory_cache_hits_total",
			Help: "Advisory cache hits.",
		}),
		AdvisoryFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sahay_advisory_fallbacks_total",
			Help: "Assessments served by the rule-based fallback classifier.",
		}),
		SessionSaveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sahay_session_save_failures_total",
			Help: "Triage session persistence failures (swallowed).",
		}),
	}

	reg.MustRegister(
		m.DecisionsTotal,
		m.PipelineDuration,
		m.RedFlagHits,
		m.TrendEscalations,
		m.OutbreakDetections,
		m.AdvisoryAttempts,
		m.AdvisoryDuration,
		m.AdvisoryCacheHits,
		m.AdvisoryFallbacks,
		m.SessionSaveFailures,
	)

	return m
}

// AdvisoryHooks are callbacks the advisory client invokes as it works.
type AdvisoryHooks struct {
	OnAttempt  func(outcome string, seconds float64)
	OnCacheHit func()
	OnFallback func()
}

// Hooks returns advisory hooks that increment the corresponding metrics.
func (m *Metrics) Hooks() AdvisoryHooks {
	if m == nil {
		return AdvisoryHooks{}
	}
	return AdvisoryHooks{
		OnAttempt: func(outcome string, seconds float64) {
			m.AdvisoryAttempts.WithLabelValues(outcome).Inc()
			m.AdvisoryDuration.Observe(seconds)
		},
		OnCacheHit: func() { m.AdvisoryCacheHits.Inc() },
		OnFallback: func() { m.AdvisoryFallbacks.Inc() },
	}
}

func (m *Metrics) observeDecision(d *Decision, path string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(string(d.Urgency), string(d.Source)).Inc()
	m.PipelineDuration.WithLabelValues(path).Observe(d.Duration)
}

func (m *Metrics) observeRedFlag(f Finding) {
	if m == nil {
		return
	}
	tier := TierUrgentCare
	if f.Triggered {
		tier = TierImmediateEmergency
	}
	m.RedFlagHits.WithLabelValues(string(tier), f.Rule).Inc()
}

func (m *Metrics) observeTrendEscalation() {
	if m == nil {
		return
	}
	m.TrendEscalations.Inc()
}

func (m *Metrics) observeOutbreak() {
	if m == nil {
		return
	}
	m.OutbreakDetections.Inc()
}

func (m *Metrics) observeSessionSaveFailure() {
	if m == nil {
		return
	}
	m.SessionSaveFailures.Inc()
}
