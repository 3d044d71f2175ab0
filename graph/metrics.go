package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// candidatePairsTotal counts candidate pairs by outcome.
	// Labels: outcome (judged, filtered)
	candidatePairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolsynth",
		Subsystem: "graph",
		Name:      "candidate_pairs_total",
		Help:      "Candidate tool pairs by outcome",
	}, []string{"outcome"})

	// edgesTotal counts edges accepted into built graphs.
	// Labels: kind (full, partial, prerequisite)
	edgesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolsynth",
		Subsystem: "graph",
		Name:      "edges_total",
		Help:      "Dependency edges accepted by kind",
	}, []string{"kind"})

	// oracleFallbacksTotal counts oracle failures replaced by a conservative default.
	// Labels: op (judge_edge, field_filter)
	oracleFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolsynth",
		Subsystem: "graph",
		Name:      "oracle_fallbacks_total",
		Help:      "Oracle failures degraded to a default during graph build",
	}, []string{"op"})

	buildDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "toolsynth",
		Subsystem: "graph",
		Name:      "build_duration_seconds",
		Help:      "Wall time of a full graph build",
		Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
	})
)
