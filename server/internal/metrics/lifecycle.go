package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// NodeTransitions counts stored node state changes.
	NodeTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmcp_node_transitions_total",
			Help: "Total number of node state transitions",
		},
		[]string{"from", "to"},
	)

	// NodesByState tracks the number of nodes per observable state.
	NodesByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarmcp_nodes",
			Help: "Number of nodes per observable state",
		},
		[]string{"state"},
	)

	// ClusterCount tracks the number of clusters.
	ClusterCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "swarmcp_clusters",
			Help: "Total number of clusters",
		},
	)

	// CollaboratorCalls counts provisioning and naming calls by outcome.
	CollaboratorCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmcp_collaborator_calls_total",
			Help: "Total number of provisioning and naming calls",
		},
		[]string{"collaborator", "operation", "status"},
	)

	// CollaboratorDuration measures provisioning and naming call latency.
	CollaboratorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swarmcp_collaborator_call_duration_seconds",
			Help:    "Provisioning and naming call duration in seconds",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"collaborator", "operation"},
	)

	// ClusterNotifications counts node-to-cluster notifications.
	// result is "applied" or "skipped" (cluster already gone).
	ClusterNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmcp_cluster_notifications_total",
			Help: "Total number of cluster notifications",
		},
		[]string{"result"},
	)
)

var lifecycleCollectors = []prometheus.Collector{
	NodeTransitions,
	NodesByState,
	ClusterCount,
	CollaboratorCalls,
	CollaboratorDuration,
	ClusterNotifications,
}

// ObserveCollaborator records one provisioning or naming call.
func ObserveCollaborator(collaborator, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	CollaboratorCalls.WithLabelValues(collaborator, operation, status).Inc()
	CollaboratorDuration.WithLabelValues(collaborator, operation).Observe(time.Since(start).Seconds())
}
