// Package monitor re-aggregates clusters in the background so that staleness,
// which is only derived on read, still reaches stored aggregates, metrics and
// event subscribers.
package monitor

import (
	"context"
	"time"

	"swarmcp.io/models"
	"swarmcp.io/server/internal/store"
)

const (
	// DefaultInterval is how often clusters are re-aggregated.
	DefaultInterval = 30 * time.Second
)

// Config holds configuration for the monitor.
type Config struct {
	// Interval is how often a sweep runs.
	Interval time.Duration

	// PingTimeout is the staleness threshold used for node state gauges.
	PingTimeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Interval:    DefaultInterval,
		PingTimeout: models.DefaultPingTimeout,
	}
}

// Clusters is the part of the cluster service the monitor drives.
type Clusters interface {
	All(ctx context.Context) ([]*models.ClusterView, error)
	Refresh(ctx context.Context, clusterID string) error
}

// Nodes lists node statuses; an empty clusterID lists every node.
type Nodes interface {
	NodeStatuses(ctx context.Context, clusterID string) ([]store.NodeStatus, error)
}

// Publisher receives cluster state changes.
type Publisher interface {
	Publish(ev models.ClusterEvent)
}
