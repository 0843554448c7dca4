// Package provision creates and tears down the machines backing non-byon nodes.
package provision

import (
	"context"
	"fmt"
	"sync"

	"swarmcp.io/models"
)

// MachineSpec describes the machine to provision for a node.
type MachineSpec struct {
	NodeID    string
	ClusterID string
	Name      string
	Region    string
	Size      string
	Token     string
	Master    bool
	Labels    models.Labels
	Versions  models.Versions
}

// Provisioner is the provisioning backend.
//
// Handles are opaque to callers. Update and Upgrade receive an empty handle for
// byon nodes; backends treat that as nothing to reconfigure on their side.
type Provisioner interface {
	Create(ctx context.Context, spec MachineSpec) (string, error)
	Destroy(ctx context.Context, handle string) error
	Update(ctx context.Context, handle string, changes models.NodeChanges) error
	Upgrade(ctx context.Context, handle string, versions models.Versions) error
}

// Memory is an in-process provisioner for development setups without Nomad.
// It only keeps track of machines.
type Memory struct {
	mu       sync.Mutex
	machines map[string]MachineSpec
}

// NewMemory creates an empty in-memory provisioner.
func NewMemory() *Memory {
	return &Memory{machines: make(map[string]MachineSpec)}
}

func (m *Memory) Create(_ context.Context, spec MachineSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handle := "machine-" + spec.NodeID
	if _, exists := m.machines[handle]; exists {
		return "", fmt.Errorf("machine %s already exists", handle)
	}
	m.machines[handle] = spec
	return handle, nil
}

func (m *Memory) Destroy(_ context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.machines, handle)
	return nil
}

func (m *Memory) Update(_ context.Context, handle string, changes models.NodeChanges) error {
	if handle == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	spec, ok := m.machines[handle]
	if !ok {
		return fmt.Errorf("machine %s not found", handle)
	}
	if changes.Name != nil {
		spec.Name = *changes.Name
	}
	if changes.Labels != nil {
		spec.Labels = changes.Labels
	}
	m.machines[handle] = spec
	return nil
}

func (m *Memory) Upgrade(_ context.Context, handle string, versions models.Versions) error {
	if handle == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	spec, ok := m.machines[handle]
	if !ok {
		return fmt.Errorf("machine %s not found", handle)
	}
	spec.Versions = versions
	m.machines[handle] = spec
	return nil
}

// Machine returns the spec of a provisioned machine.
func (m *Memory) Machine(handle string) (MachineSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	spec, ok := m.machines[handle]
	return spec, ok
}
