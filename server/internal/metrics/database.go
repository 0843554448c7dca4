package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// StoreOperations counts store operations by name and outcome.
	StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmcp_store_operations_total",
			Help: "Total number of store operations",
		},
		[]string{"operation", "status"},
	)

	// StoreOperationDuration measures store operation latency.
	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swarmcp_store_operation_duration_seconds",
			Help:    "Store operation duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"operation"},
	)

	// StorePool exposes the connection pool: open, idle, in_use and max_open.
	StorePool = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarmcp_store_connections",
			Help: "Store connection pool statistics",
		},
		[]string{"state"},
	)
)

var databaseCollectors = []prometheus.Collector{StoreOperations, StoreOperationDuration, StorePool}

// ObserveQuery records the duration and outcome of one store operation.
func ObserveQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StoreOperations.WithLabelValues(operation, status).Inc()
	StoreOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordDBStats copies connection pool statistics into StorePool.
func RecordDBStats(stats sql.DBStats) {
	StorePool.WithLabelValues("open").Set(float64(stats.OpenConnections))
	StorePool.WithLabelValues("idle").Set(float64(stats.Idle))
	StorePool.WithLabelValues("in_use").Set(float64(stats.InUse))
	StorePool.WithLabelValues("max_open").Set(float64(stats.MaxOpenConnections))
}
