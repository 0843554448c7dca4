// Package naming registers node FQDNs with a DNS-serving backend.
package naming

import (
	"context"
	"sync"
)

// Record is the DNS entry of one node.
type Record struct {
	FQDN      string
	Address   string
	NodeID    string
	ClusterID string
}

// Service is the naming backend. Unregistering an unknown name is not an error.
type Service interface {
	Register(ctx context.Context, rec Record) error
	Unregister(ctx context.Context, fqdn string) error
}

// Static keeps records in memory. It backs development setups without Consul.
type Static struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewStatic creates an empty in-memory naming service.
func NewStatic() *Static {
	return &Static{records: make(map[string]Record)}
}

func (s *Static) Register(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.FQDN] = rec
	return nil
}

func (s *Static) Unregister(_ context.Context, fqdn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, fqdn)
	return nil
}

// Lookup returns the address registered for fqdn.
func (s *Static) Lookup(fqdn string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[fqdn]
	return rec.Address, ok
}
