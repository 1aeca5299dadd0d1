// Package metrics exposes the engine's Prometheus collectors. Recording is
// a no-op until Init has run, so packages can record unconditionally.
package metrics

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
	enabled      atomic.Bool

	SessionsActive     prometheus.Gauge
	SuggestionsTotal   *prometheus.CounterVec
	StageTransitions   *prometheus.CounterVec
	InterruptsTotal    *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	TranscriptEvents   *prometheus.CounterVec
)

// Init creates and registers every collector. Safe to call more than once.
func Init(logger *slog.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "closer_sessions_active",
			Help: "Number of sales-call sessions currently open",
		})

		SuggestionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "closer_suggestions_total",
				Help: "Suggestions produced, by stage and source (generated or fallback)",
			},
			[]string{"stage", "source"},
		)

		StageTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "closer_stage_transitions_total",
				Help: "Stage transitions, by source stage, target stage and whether the move was legal",
			},
			[]string{"from", "to", "legal"},
		)

		InterruptsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "closer_interrupts_total",
				Help: "Interruptions handled, by type and priority",
			},
			[]string{"type", "priority"},
		)

		GenerationDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "closer_generation_duration_seconds",
				Help:    "Latency of suggestion generation calls",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
			},
			[]string{"provider"},
		)

		TranscriptEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "closer_transcript_events_total",
				Help: "Transcript events received from the bus, by outcome",
			},
			[]string{"result"},
		)

		registry.MustRegister(
			SessionsActive,
			SuggestionsTotal,
			StageTransitions,
			InterruptsTotal,
			GenerationDuration,
			TranscriptEvents,
		)
		enabled.Store(true)

		if logger != nil {
			logger.Info("prometheus metrics initialised")
		}
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	Init(nil)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          registry,
	})
}

func SessionStarted() {
	if enabled.Load() {
		SessionsActive.Inc()
	}
}

func SessionEnded() {
	if enabled.Load() {
		SessionsActive.Dec()
	}
}

// RecordSuggestion counts one suggestion. source is "generated" or "fallback".
func RecordSuggestion(stage, source string) {
	if enabled.Load() {
		SuggestionsTotal.WithLabelValues(stage, source).Inc()
	}
}

func RecordTransition(from, to string, legal bool) {
	if enabled.Load() {
		StageTransitions.WithLabelValues(from, to, strconv.FormatBool(legal)).Inc()
	}
}

func RecordInterrupt(typ, priority string) {
	if enabled.Load() {
		InterruptsTotal.WithLabelValues(typ, priority).Inc()
	}
}

func RecordTranscriptEvent(result string) {
	if enabled.Load() {
		TranscriptEvents.WithLabelValues(result).Inc()
	}
}

// ObserveGeneration starts a timer; call the returned func when the
// generation call returns.
func ObserveGeneration(provider string) func() {
	if !enabled.Load() {
		return func() {}
	}
	start := time.Now()
	return func() {
		GenerationDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}
}
