package models

import "time"

// Strategy is the swarm scheduling strategy of a cluster.
type Strategy string

const (
	StrategySpread  Strategy = "spread"
	StrategyBinpack Strategy = "binpack"
	StrategyRandom  Strategy = "random"
)

// Valid reports whether s is a known scheduling strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySpread, StrategyBinpack, StrategyRandom:
		return true
	}
	return false
}

// ClusterCert holds the PEM material agents use to secure the swarm.
type ClusterCert struct {
	CA   string `json:"ca"`
	Cert string `json:"cert"`
	Key  string `json:"key"`
}

// Cluster represents a tenant-owned group of nodes forming one swarm.
// Its status is an aggregate of its nodes, kept up to date by node notifications.
type Cluster struct {
	// ID is the unique identifier for this cluster (UUID v4 format)
	ID string `json:"id" db:"id"`

	// TenantID identifies the owner of the cluster
	TenantID string `json:"tenant_id" db:"tenant_id"`

	// Name is the human-readable cluster name
	// Maximum length: 255 characters
	Name string `json:"name" db:"name"`

	// Strategy is the swarm scheduling strategy
	// Default: spread
	Strategy Strategy `json:"strategy" db:"strategy"`

	// NodesCount is the number of nodes in the cluster
	NodesCount int `json:"nodes_count" db:"nodes_count"`

	// LastState is the aggregate of the member node states
	LastState NodeState `json:"last_state" db:"last_state"`

	// LastPing is the last ping of the master node, nil without master
	LastPing *time.Time `json:"last_ping" db:"last_ping"`

	// Cert is the swarm TLS material handed to agents
	Cert *ClusterCert `json:"cert,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// State returns the observable cluster state at the given time.
func (c *Cluster) State(now time.Time, pingTimeout time.Duration) NodeState {
	if c.NodesCount == 0 {
		return StateEmpty
	}
	return DeriveState(c.LastState, c.LastPing, now, pingTimeout)
}

// ClusterView is the API representation of a cluster, including derived fields.
type ClusterView struct {
	*Cluster

	State        NodeState `json:"state"`
	StateMessage string    `json:"state_message"`
}

// ClusterDelta is the change a node reports to its owning cluster.
//
// LastState is empty when the node state did not change. PingSet tells whether
// LastPing is part of the delta, in which case a nil LastPing resets the cluster ping.
type ClusterDelta struct {
	LastState NodeState  `json:"last_state,omitempty"`
	LastPing  *time.Time `json:"last_ping,omitempty"`
	PingSet   bool       `json:"-"`

	// Master is only meaningful with StateDestroyed: the removed node was master.
	Master bool `json:"master,omitempty"`
}

// StateDelta reports a node state change.
func StateDelta(state NodeState) ClusterDelta {
	return ClusterDelta{LastState: state}
}

// PingDelta reports a master ping, or a demotion when ping is nil.
func PingDelta(ping *time.Time) ClusterDelta {
	return ClusterDelta{LastPing: ping, PingSet: true}
}

// DestroyedDelta reports the removal of a node.
func DestroyedDelta(master bool) ClusterDelta {
	return ClusterDelta{LastState: StateDestroyed, Master: master}
}

// Empty reports whether the delta carries nothing.
func (d ClusterDelta) Empty() bool {
	return d.LastState == "" && !d.PingSet
}

// ClusterCreateRequest represents the request body for creating a cluster.
type ClusterCreateRequest struct {
	Name     string       `json:"name"`
	Strategy Strategy     `json:"strategy"`
	Cert     *ClusterCert `json:"cert"`
}

// ClusterUpdateRequest represents the request body for updating a cluster.
type ClusterUpdateRequest struct {
	Name     *string      `json:"name"`
	Strategy *Strategy    `json:"strategy"`
	Cert     *ClusterCert `json:"cert"`
}

// ClusterFilter narrows cluster listings.
type ClusterFilter struct {
	Name     string
	Strategy Strategy
	State    NodeState

	// Limit defaults to 25 when zero
	Limit  int
	Offset int
}

// ClusterListResponse represents the response for listing clusters.
type ClusterListResponse struct {
	Clusters []*ClusterView `json:"clusters"`
	Total    int            `json:"total"`
	Limit    int            `json:"limit"`
	Offset   int            `json:"offset"`
}
