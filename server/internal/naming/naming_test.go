package naming

import (
	"context"
	"errors"
	"testing"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCatalog struct {
	registered   []*consulapi.CatalogRegistration
	deregistered []*consulapi.CatalogDeregistration
	err          error
}

func (f *fakeCatalog) Register(reg *consulapi.CatalogRegistration, _ *consulapi.WriteOptions) (*consulapi.WriteMeta, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.registered = append(f.registered, reg)
	return &consulapi.WriteMeta{}, nil
}

func (f *fakeCatalog) Deregister(dereg *consulapi.CatalogDeregistration, _ *consulapi.WriteOptions) (*consulapi.WriteMeta, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deregistered = append(f.deregistered, dereg)
	return &consulapi.WriteMeta{}, nil
}

func TestNodeName(t *testing.T) {
	assert.Equal(t, "alpha-1234abcd", NodeName("alpha-1234abcd.node.dc1.consul"))
	assert.Equal(t, "alpha", NodeName("alpha"))
}

func TestConsulRegister(t *testing.T) {
	catalog := &fakeCatalog{}
	c := newConsul(catalog, "dc1", zap.NewNop())

	err := c.Register(context.Background(), Record{
		FQDN:      "alpha-1234abcd.node.dc1.consul",
		Address:   "203.0.113.10",
		NodeID:    "node-1",
		ClusterID: "1234abcd-0000",
	})
	require.NoError(t, err)
	require.Len(t, catalog.registered, 1)

	reg := catalog.registered[0]
	assert.Equal(t, "alpha-1234abcd", reg.Node)
	assert.Equal(t, "203.0.113.10", reg.Address)
	assert.Equal(t, "dc1", reg.Datacenter)
	assert.Equal(t, "alpha-1234abcd.node.dc1.consul", reg.NodeMeta["swarmcp-fqdn"])
}

func TestConsulRegisterRequiresAddress(t *testing.T) {
	c := newConsul(&fakeCatalog{}, "dc1", zap.NewNop())
	assert.Error(t, c.Register(context.Background(), Record{FQDN: "alpha.example.com"}))
}

func TestConsulRegisterPropagatesErrors(t *testing.T) {
	boom := errors.New("connection refused")
	c := newConsul(&fakeCatalog{err: boom}, "dc1", zap.NewNop())

	err := c.Register(context.Background(), Record{FQDN: "alpha.example.com", Address: "10.0.0.1"})
	assert.ErrorIs(t, err, boom)
}

func TestConsulUnregister(t *testing.T) {
	catalog := &fakeCatalog{}
	c := newConsul(catalog, "dc1", zap.NewNop())

	require.NoError(t, c.Unregister(context.Background(), "alpha-1234abcd.node.dc1.consul"))
	require.Len(t, catalog.deregistered, 1)
	assert.Equal(t, "alpha-1234abcd", catalog.deregistered[0].Node)

	require.NoError(t, c.Unregister(context.Background(), ""))
	assert.Len(t, catalog.deregistered, 1)
}

func TestConsulUnregisterUnknownNameIsNotAnError(t *testing.T) {
	c := newConsul(&fakeCatalog{err: consulapi.StatusError{Code: 404, Body: "node not found"}}, "dc1", zap.NewNop())
	assert.NoError(t, c.Unregister(context.Background(), "ghost.node.dc1.consul"))
}

func TestStatic(t *testing.T) {
	s := NewStatic()
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, Record{FQDN: "alpha.example.com", Address: "10.0.0.1"}))
	addr, ok := s.Lookup("alpha.example.com")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", addr)

	require.NoError(t, s.Unregister(ctx, "alpha.example.com"))
	require.NoError(t, s.Unregister(ctx, "alpha.example.com"))
	_, ok = s.Lookup("alpha.example.com")
	assert.False(t, ok)
}
