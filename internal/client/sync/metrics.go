package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// batchesApplied counts committed stream batches.
	// Labels: stream
	batchesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncspace",
		Subsystem: "synchronizer",
		Name:      "batches_applied_total",
		Help:      "Stream batches applied and committed to the cursor",
	}, []string{"stream"})

	// itemsApplied counts stream entries passed to handlers.
	// Labels: stream
	itemsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncspace",
		Subsystem: "synchronizer",
		Name:      "items_applied_total",
		Help:      "Stream entries applied to the local replica",
	}, []string{"stream"})

	// syncFailures counts failed pull iterations.
	// Labels: stream, stage (pull, apply, cursor)
	syncFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncspace",
		Subsystem: "synchronizer",
		Name:      "failures_total",
		Help:      "Synchronizer iterations that did not commit",
	}, []string{"stream", "stage"})

	// activeSynchronizers is the number of running synchronizers
	activeSynchronizers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "syncspace",
		Subsystem: "synchronizer",
		Name:      "active",
		Help:      "Synchronizers currently running",
	})
)
