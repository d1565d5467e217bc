// Package metrics exposes Prometheus instrumentation for the engine.
package metrics

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once

	// Sentiment analysis metrics
	SegmentsScored   prometheus.Counter
	ScorerErrors     prometheus.Counter
	ScorerFallbacks  prometheus.Counter
	ScorerLatency    prometheus.Histogram
	TimelinesBuilt   prometheus.Counter
	AnalysesCanceled prometheus.Counter

	// Rule engine metrics
	RulesEvaluated   prometheus.Counter
	RulesSkipped     prometheus.Counter
	RulesFired       prometheus.Counter
	CooldownSuppress prometheus.Counter

	// Action executor metrics
	ActionsExecuted      *prometheus.CounterVec
	ActionFailures       *prometheus.CounterVec
	ConcurrencyConflicts prometheus.Counter

	// Sweep metrics
	SweepsTotal   prometheus.Counter
	SweepDuration prometheus.Histogram
)

func init() {
	// Counters must exist before any component touches them, including under
	// `go test` where main never runs.
	Init()
}

// Init initializes all metrics and registers them with a fresh registry.
// Safe to call more than once; only the first call takes effect.
func Init() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		SegmentsScored = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadpulse_segments_scored_total",
			Help: "Number of transcript segments successfully scored",
		})
		ScorerErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadpulse_scorer_errors_total",
			Help: "Number of failed sentiment scorer calls (before retry)",
		})
		ScorerFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadpulse_scorer_fallbacks_total",
			Help: "Number of segments degraded to fallback points",
		})
		ScorerLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadpulse_scorer_latency_seconds",
			Help:    "Latency of sentiment scorer calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		})
		TimelinesBuilt = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadpulse_timelines_built_total",
			Help: "Number of sentiment timelines published",
		})
		AnalysesCanceled = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadpulse_analyses_canceled_total",
			Help: "Number of analysis runs canceled before publishing",
		})

		RulesEvaluated = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadpulse_rules_evaluated_total",
			Help: "Number of (lead, rule) evaluations",
		})
		RulesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadpulse_rules_skipped_total",
			Help: "Number of evaluations skipped by constraints",
		})
		RulesFired = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadpulse_rules_fired_total",
			Help: "Number of rule firings",
		})
		CooldownSuppress = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadpulse_cooldown_suppressions_total",
			Help: "Number of firings suppressed by the cooldown window",
		})

		ActionsExecuted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadpulse_actions_executed_total",
			Help: "Number of actions executed, by kind",
		}, []string{"kind"})
		ActionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadpulse_action_failures_total",
			Help: "Number of failed actions, by kind",
		}, []string{"kind"})
		ConcurrencyConflicts = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadpulse_concurrency_conflicts_total",
			Help: "Number of status writes deferred after CAS conflicts",
		})

		SweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadpulse_sweeps_total",
			Help: "Number of batch evaluation sweeps",
		})
		SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadpulse_sweep_duration_seconds",
			Help:    "Duration of batch evaluation sweeps",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		})

		registry.MustRegister(
			SegmentsScored, ScorerErrors, ScorerFallbacks, ScorerLatency,
			TimelinesBuilt, AnalysesCanceled,
			RulesEvaluated, RulesSkipped, RulesFired, CooldownSuppress,
			ActionsExecuted, ActionFailures, ConcurrencyConflicts,
			SweepsTotal, SweepDuration,
		)
		slog.Debug("Metrics registry initialized")
	})
}

// Handler returns the HTTP handler serving the metrics registry. Init must
// have been called first.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Serve starts a metrics listener on addr. Blocks; intended to run in its
// own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	slog.Info("Metrics listener starting", "addr", addr)
	return http.ListenAndServe(addr, mux)
}
