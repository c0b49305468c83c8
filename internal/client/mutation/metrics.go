package mutation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// mutationsEnqueued counts local mutations appended to the queue.
	// Labels: kind
	mutationsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncspace",
		Subsystem: "mutation_queue",
		Name:      "enqueued_total",
		Help:      "Local mutations appended to the pending queue",
	}, []string{"kind"})

	// flushRuns counts flush attempts.
	// Labels: status (ok, transport_error, storage_error)
	flushRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncspace",
		Subsystem: "mutation_queue",
		Name:      "flushes_total",
		Help:      "Mutation queue flush attempts",
	}, []string{"status"})

	// mutationOutcomes counts mutations leaving or staying in the queue.
	// Labels: outcome (acknowledged, rejected, expired, compacted)
	mutationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncspace",
		Subsystem: "mutation_queue",
		Name:      "mutations_total",
		Help:      "Mutations by flush outcome",
	}, []string{"outcome"})
)
