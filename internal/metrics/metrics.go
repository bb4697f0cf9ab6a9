// Package metrics exposes Prometheus collectors for the screening engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hearcheck"

var (
	// TestsStarted counts screening runs started, including restarts.
	TestsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "screening",
		Name:      "tests_started_total",
		Help:      "Total screening runs started",
	})

	// Responses counts submitted responses.
	// Labels: heard (true, false)
	Responses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "screening",
		Name:      "responses_total",
		Help:      "Total responses submitted",
	}, []string{"heard"})

	// ItemsCompleted counts finished frequency/ear items.
	// Labels: rule (floor_reached, trial_budget)
	ItemsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "screening",
		Name:      "items_completed_total",
		Help:      "Total test items completed by completion rule",
	}, []string{"rule"})

	// TestsCompleted counts finished runs.
	// Labels: outcome (completed, abandoned)
	TestsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "screening",
		Name:      "tests_completed_total",
		Help:      "Total screening runs finished by outcome",
	}, []string{"outcome"})

	// StateErrors counts failed operations on persisted sessions.
	// Labels: kind (malformed, conflict, storage)
	StateErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "screening",
		Name:      "state_errors_total",
		Help:      "Total session state errors by kind",
	}, []string{"kind"})

	// ItemTrials tracks how many presentations an item needed.
	ItemTrials = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "screening",
		Name:      "item_trials",
		Help:      "Presentations needed to finish one test item",
		Buckets:   prometheus.LinearBuckets(1, 1, 12),
	})
)

// Outcome labels for TestsCompleted.
const (
	OutcomeCompleted = "completed"
	OutcomeAbandoned = "abandoned"
)

// Kind labels for StateErrors.
const (
	KindMalformed = "malformed"
	KindConflict  = "conflict"
	KindStorage   = "storage"
)
