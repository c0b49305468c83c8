package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// mergeRuns counts merge passes.
	// Labels: kind (node, document), status (success, error)
	mergeRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncspace",
		Subsystem: "merge",
		Name:      "runs_total",
		Help:      "Total update merge passes",
	}, []string{"kind", "status"})

	// mergedFragments counts fragments folded into a survivor and deleted.
	mergedFragments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncspace",
		Subsystem: "merge",
		Name:      "fragments_merged_total",
		Help:      "Total update fragments merged away",
	}, []string{"kind"})

	// mergeFailures counts groups whose merge transaction failed.
	mergeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncspace",
		Subsystem: "merge",
		Name:      "group_failures_total",
		Help:      "Total merge groups skipped after an error",
	}, []string{"kind"})

	// mergeDuration measures one merge pass.
	mergeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "syncspace",
		Subsystem: "merge",
		Name:      "duration_seconds",
		Help:      "Duration of one merge pass",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
)
