package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pathsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolsynth",
		Subsystem: "pipeline",
		Name:      "paths_total",
		Help:      "Paths run by outcome",
	}, []string{"outcome"})
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolsynth",
		Subsystem: "pipeline",
		Name:      "turns_total",
		Help:      "Turns executed by outcome",
	}, []string{"outcome"})
	pathDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "toolsynth",
		Subsystem: "pipeline",
		Name:      "path_duration_seconds",
		Help:      "Wall time of one path",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	})
)
