package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the store, the services and the API. The handlers
// map them to HTTP statuses.
var (
	// 404
	ErrClusterNotFound = errors.New("cluster not found")
	ErrNodeNotFound    = errors.New("node not found")

	// 401. ErrInvalidToken is a node token that matches no node.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid authentication token")

	// 400
	ErrInvalidRequest = errors.New("invalid request")

	// 409. ErrConflict is a unique violation the store could not attribute.
	ErrConflict      = errors.New("resource already exists")
	ErrDuplicateName = errors.New("a node with this name already exists in the cluster")
	ErrPublicIPTaken = errors.New("public ip already assigned to another node")

	// ErrTokenCollision means every regenerated node token was already held
	// by another node (503, the client may retry).
	ErrTokenCollision = errors.New("generated token collides with an existing one")

	// 503
	ErrServiceUnavailable = errors.New("service unavailable")
)

// FieldError describes one field that failed validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that violates its constraints (422).
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

// Add records a failing field.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Err returns e when at least one field failed, nil otherwise.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// StateError rejects an operation that needs a running node (409).
type StateError struct {
	Op    string
	State NodeState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s node in state %q: node must be running", e.Op, e.State)
}

// AlreadyUpgradedError rejects an upgrade to the versions the node already runs (409).
type AlreadyUpgradedError struct {
	Versions Versions
}

func (e *AlreadyUpgradedError) Error() string {
	return fmt.Sprintf("node already runs docker %s and swarm %s", e.Versions.Docker, e.Versions.Swarm)
}

// MasterUniquenessError rejects a second master in a cluster (409).
type MasterUniquenessError struct {
	ClusterID string
}

func (e *MasterUniquenessError) Error() string {
	return "this cluster already has a master node"
}

// CollaboratorError wraps a provisioning or naming failure (502). The cause
// stays reachable through errors.Is and errors.As.
type CollaboratorError struct {
	Collaborator string
	Op           string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Collaborator, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}
