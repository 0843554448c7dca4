package models

import "time"

// Event types published to cluster subscribers.
const (
	EventNodeCreated   = "node.created"
	EventNodeChanged   = "node.changed"
	EventNodeDestroyed = "node.destroyed"
	EventClusterState  = "cluster.state"
)

// ClusterEvent is a change notification scoped to one cluster.
type ClusterEvent struct {
	Type      string       `json:"type"`
	ClusterID string       `json:"cluster_id"`
	NodeID    string       `json:"node_id,omitempty"`
	State     NodeState    `json:"state,omitempty"`
	Cluster   *ClusterView `json:"cluster,omitempty"`
	Time      time.Time    `json:"time"`
}
