// Package models provides shared data structures for the SwarmCP project.
//
// This package contains the core data models used across the control plane server,
// the agent SDK, and the agent daemon. Keeping them in a separate package lets any
// component import them without creating circular dependencies.
//
// The models in this package represent:
//   - Clusters: tenant-owned groups of container hosts with an aggregate status
//   - Nodes: individual hosts (provisioned machines or bring-your-own hosts)
//   - Lifecycle states shared by nodes and clusters
//   - Domain errors raised by the node state machine
//
// All structs include JSON tags for API serialization and documentation comments
// explaining the purpose and constraints of each field.
package models
