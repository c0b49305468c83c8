package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// mutationsApplied counts submitted mutations.
	// Labels: kind, status (success, failure)
	mutationsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncspace",
		Subsystem: "api",
		Name:      "mutations_total",
		Help:      "Total mutations applied by kind and status",
	}, []string{"kind", "status"})

	// eventConnections tracks open event feed connections.
	eventConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "syncspace",
		Subsystem: "api",
		Name:      "event_connections",
		Help:      "Number of open websocket event feeds",
	})
)
