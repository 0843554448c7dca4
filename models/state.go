package models

import "time"

// NodeState is a lifecycle status shared by nodes and clusters.
type NodeState string

const (
	// StateEmpty is only reported by clusters without any node.
	StateEmpty NodeState = "empty"

	// StateDeploying is the initial state of every node.
	StateDeploying NodeState = "deploying"

	// StateUnreachable is derived from a running node whose agent stopped pinging.
	StateUnreachable NodeState = "unreachable"

	// StateRunning means the agent registered and is pinging.
	StateRunning NodeState = "running"

	// StateUpgrading means a docker/swarm upgrade was handed to provisioning.
	StateUpgrading NodeState = "upgrading"

	// StateUpdating means a configuration change was handed to provisioning.
	StateUpdating NodeState = "updating"

	// StateDestroyed is never stored. It marks the delta sent to a cluster
	// when one of its nodes is removed.
	StateDestroyed NodeState = "destroyed"
)

// DefaultPingTimeout is how long a running node may stay silent before it is
// reported as unreachable.
const DefaultPingTimeout = 5 * time.Minute

var stateMessages = map[NodeState]string{
	StateEmpty:       "Create at least one node to work with this cluster",
	StateUnreachable: "Master node is unreachable",
	StateDeploying:   "Node is being deployed",
	StateUpgrading:   "Node is being upgraded",
	StateUpdating:    "Node is being updated",
	StateRunning:     "Node is running and reachable",
}

// Message returns the human readable description of the state.
func (s NodeState) Message() string {
	return stateMessages[s]
}

// Valid reports whether s is a state that can be stored as last_state.
func (s NodeState) Valid() bool {
	switch s {
	case StateDeploying, StateRunning, StateUpgrading, StateUpdating:
		return true
	}
	return false
}

// DeriveState computes the observable state from the stored one.
// A running entity whose last ping is missing or older than timeout is unreachable.
func DeriveState(lastState NodeState, lastPing *time.Time, now time.Time, timeout time.Duration) NodeState {
	if lastState != StateRunning {
		return lastState
	}
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	if lastPing == nil || now.Sub(*lastPing) > timeout {
		return StateUnreachable
	}
	return StateRunning
}
