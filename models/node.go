package models

import (
	"fmt"
	"time"
)

// Labels is a flat mapping of label keys to scalar values.
// Values are strings, numbers, booleans or null; nested maps and lists are rejected.
type Labels map[string]any

// Versions identifies the docker engine and swarm versions a node runs.
type Versions struct {
	// Docker is the docker engine version (e.g., "1.12")
	Docker string `json:"docker"`

	// Swarm is the swarm version (e.g., "1.1")
	Swarm string `json:"swarm"`
}

// Node represents a single container host within a cluster.
// A node is either provisioned by the control plane (region and size set)
// or brought by the user (byon), in which case the user runs the agent
// install command themselves.
type Node struct {
	// ID is the unique identifier for this node (UUID v4 format)
	ID string `json:"id" db:"id"`

	// ClusterID is the UUID of the cluster owning this node
	ClusterID string `json:"cluster_id" db:"cluster_id"`

	// Name is a DNS label (a-z, 0-9, hyphens, no leading/trailing hyphen)
	// Must be unique within the cluster
	Name string `json:"name" db:"name"`

	// Token is the agent bearer credential, generated before first persistence
	Token string `json:"token" db:"token"`

	// Master indicates the node runs the swarm manager
	// At most one master per cluster
	Master bool `json:"master" db:"master"`

	// Byon marks a bring-your-own-node host. Immutable once set.
	Byon bool `json:"byon" db:"byon"`

	// Region is the provisioning region, set iff the node is not byon
	Region *string `json:"region" db:"region"`

	// NodeSize is the provisioning size slug, set iff the node is not byon
	NodeSize *string `json:"node_size" db:"node_size"`

	// PublicIP is the address registered under the node FQDN
	// Unique across all nodes when present
	PublicIP *string `json:"public_ip" db:"public_ip"`

	// CPU is the number of cores reported by the agent (>= 1)
	CPU *int `json:"cpu" db:"cpu"`

	// Memory is the amount of memory in MB reported by the agent (>= 128)
	Memory *int `json:"memory" db:"memory"`

	// Disk is the disk size in GB reported by the agent (>= 1.0)
	Disk *float64 `json:"disk" db:"disk"`

	// Labels are the swarm engine labels applied to this node
	Labels Labels `json:"labels" db:"labels"`

	// DockerVersion is the docker engine version running on the node
	DockerVersion string `json:"docker_version,omitempty" db:"docker_version"`

	// SwarmVersion is the swarm version running on the node
	SwarmVersion string `json:"swarm_version,omitempty" db:"swarm_version"`

	// LastState is the stored lifecycle state; see State for the observable one
	LastState NodeState `json:"last_state" db:"last_state"`

	// LastPing is the last time the agent checked in
	LastPing *time.Time `json:"last_ping" db:"last_ping"`

	// MachineID is the provisioning backend handle, empty for byon nodes
	MachineID string `json:"-" db:"machine_id"`

	// CreatedAt is the timestamp when this node was created
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp when this node was last modified
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// State returns the observable state at the given time.
func (n *Node) State(now time.Time, pingTimeout time.Duration) NodeState {
	return DeriveState(n.LastState, n.LastPing, now, pingTimeout)
}

// FQDN returns "<name>-<short cluster id>.<domain>", or nil when the node has no cluster.
func (n *Node) FQDN(domain string) *string {
	if n.ClusterID == "" {
		return nil
	}
	short := n.ClusterID
	if len(short) > 8 {
		short = short[:8]
	}
	fqdn := fmt.Sprintf("%s-%s.%s", n.Name, short, domain)
	return &fqdn
}

// AgentCmd returns the install command for byon nodes, nil otherwise.
func (n *Node) AgentCmd(base string) *string {
	if !n.Byon {
		return nil
	}
	cmd := fmt.Sprintf("%s %s", base, n.Token)
	return &cmd
}

// Versions returns the versions currently running on the node.
func (n *Node) Versions() Versions {
	return Versions{Docker: n.DockerVersion, Swarm: n.SwarmVersion}
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	c.Region = cloneString(n.Region)
	c.NodeSize = cloneString(n.NodeSize)
	c.PublicIP = cloneString(n.PublicIP)
	if n.CPU != nil {
		v := *n.CPU
		c.CPU = &v
	}
	if n.Memory != nil {
		v := *n.Memory
		c.Memory = &v
	}
	if n.Disk != nil {
		v := *n.Disk
		c.Disk = &v
	}
	if n.LastPing != nil {
		t := *n.LastPing
		c.LastPing = &t
	}
	if n.Labels != nil {
		c.Labels = make(Labels, len(n.Labels))
		for k, v := range n.Labels {
			c.Labels[k] = v
		}
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// NodeView is the API representation of a node, including derived fields.
type NodeView struct {
	*Node

	// State is the observable lifecycle state
	State NodeState `json:"state"`

	// StateMessage is the human readable description of State
	StateMessage string `json:"state_message"`

	// AgentCmd is the agent install command for byon nodes
	AgentCmd *string `json:"agent_cmd"`

	// FQDN is the DNS name registered for the node
	FQDN *string `json:"fqdn"`
}

// NodeCreateRequest represents the request body for creating a new node.
type NodeCreateRequest struct {
	// Name is the desired node name (required)
	Name string `json:"name"`

	// Master promotes the node to swarm master
	Master bool `json:"master"`

	// Byon marks a bring-your-own-node host
	Byon bool `json:"byon"`

	// Region and NodeSize are required unless Byon is set
	Region   *string `json:"region"`
	NodeSize *string `json:"node_size"`

	PublicIP *string  `json:"public_ip"`
	CPU      *int     `json:"cpu"`
	Memory   *int     `json:"memory"`
	Disk     *float64 `json:"disk"`

	// Labels must decode to a flat JSON object
	Labels any `json:"labels"`
}

// NodeUpdateRequest carries direct record updates that do not go through provisioning.
// Nil fields are left unchanged.
type NodeUpdateRequest struct {
	Master   *bool    `json:"master"`
	PublicIP *string  `json:"public_ip"`
	CPU      *int     `json:"cpu"`
	Memory   *int     `json:"memory"`
	Disk     *float64 `json:"disk"`
}

// NodeChanges is the delta applied by a change operation and forwarded to provisioning.
type NodeChanges struct {
	// Name renames the node (and its FQDN)
	Name *string `json:"name,omitempty"`

	// Labels replaces the node labels
	Labels Labels `json:"labels,omitempty"`
}

// Empty reports whether the delta carries no change.
func (c NodeChanges) Empty() bool {
	return c.Name == nil && c.Labels == nil
}

// NodeChangeRequest represents the request body of a change operation.
type NodeChangeRequest struct {
	Name   *string `json:"name"`
	Labels any     `json:"labels"`
}

// NodeUpgradeRequest represents the request body of an upgrade operation.
type NodeUpgradeRequest struct {
	Docker string `json:"docker"`
	Swarm  string `json:"swarm"`
}

// AgentInfo is what the agent reports when it registers.
// Nil fields are not merged into the node.
type AgentInfo struct {
	DockerVersion *string  `json:"docker_version"`
	SwarmVersion  *string  `json:"swarm_version"`
	PublicIP      *string  `json:"public_ip"`
	CPU           *int     `json:"cpu"`
	Memory        *int     `json:"memory"`
	Disk          *float64 `json:"disk"`
	Labels        any      `json:"labels"`
}

// AgentInfos is the configuration the agent pulls from the control plane.
type AgentInfos struct {
	Master   bool         `json:"master"`
	Name     string       `json:"name"`
	Labels   Labels       `json:"labels"`
	Cert     *ClusterCert `json:"cert"`
	Versions Versions     `json:"versions"`
	Strategy Strategy     `json:"strategy"`
}

// NodeFilter narrows node listings. Zero values do not filter.
type NodeFilter struct {
	Byon     *bool
	Master   *bool
	Name     string
	Region   string
	NodeSize string

	// Labels matches nodes carrying every key with the given value
	Labels map[string]string
}

// NodeListResponse represents the response for listing nodes.
type NodeListResponse struct {
	// ClusterID is the UUID of the cluster these nodes belong to
	ClusterID string `json:"cluster_id"`

	// Nodes is the list of nodes in the cluster
	Nodes []*NodeView `json:"nodes"`

	// Total is the total number of nodes
	Total int `json:"total"`
}

// NodeTokenRotateResponse represents the response after rotating a node token.
type NodeTokenRotateResponse struct {
	NodeID    string    `json:"node_id"`
	NodeToken string    `json:"node_token"`
	RotatedAt time.Time `json:"rotated_at"`
}
