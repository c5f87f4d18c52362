// Package metrics exposes Prometheus instrumentation for the resolution
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTotal counts resolution decisions by outcome and link method
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aster",
		Name:      "decisions_total",
		Help:      "Resolution decisions by outcome and link method",
	}, []string{"decision", "method"})

	// ReplaysTotal counts signals replayed from an earlier decision
	ReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aster",
		Name:      "decision_replays_total",
		Help:      "Signals answered from an earlier decision",
	})

	// ExactConflictsTotal counts signals whose exact identifiers pointed at
	// different actors
	ExactConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "aster",
		Name:      "exact_conflicts_total",
		Help:      "Signals with exact identifiers pointing at different actors",
	})

	// MergesTotal counts applied actor merges
	MergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aster",
		Name:      "merges_total",
		Help:      "Applied actor merges",
	}, []string{"trigger"})

	// ScanRunsTotal counts duplicate scan runs
	ScanRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aster",
		Name:      "duplicate_scan_runs_total",
		Help:      "Duplicate scan runs by result",
	}, []string{"result"})

	// ResolveDuration observes end to end resolution latency
	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aster",
		Name:      "resolve_duration_seconds",
		Help:      "End to end signal resolution latency",
		Buckets:   prometheus.DefBuckets,
	})

	// SignalsProcessedTotal counts consumed signals by result
	SignalsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aster",
		Name:      "signals_processed_total",
		Help:      "Consumed signals by result",
	}, []string{"result"})
)
