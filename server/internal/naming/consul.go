package naming

import (
	"context"
	"errors"
	"fmt"
	"strings"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// ConsulConfig configures the Consul catalog backend.
type ConsulConfig struct {
	Address    string
	Token      string
	Datacenter string
}

type catalogAPI interface {
	Register(reg *consulapi.CatalogRegistration, q *consulapi.WriteOptions) (*consulapi.WriteMeta, error)
	Deregister(dereg *consulapi.CatalogDeregistration, q *consulapi.WriteOptions) (*consulapi.WriteMeta, error)
}

// Consul registers every node as an external catalog node named after the
// first label of its FQDN, so Consul DNS answers "<label>.node.<dc>.consul".
type Consul struct {
	catalog    catalogAPI
	datacenter string
	logger     *zap.Logger
}

// NewConsul connects to the Consul API described by cfg.
func NewConsul(cfg ConsulConfig, logger *zap.Logger) (*Consul, error) {
	apiCfg := consulapi.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	if cfg.Token != "" {
		apiCfg.Token = cfg.Token
	}
	if cfg.Datacenter != "" {
		apiCfg.Datacenter = cfg.Datacenter
	}

	client, err := consulapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return newConsul(client.Catalog(), cfg.Datacenter, logger), nil
}

func newConsul(catalog catalogAPI, datacenter string, logger *zap.Logger) *Consul {
	return &Consul{catalog: catalog, datacenter: datacenter, logger: logger}
}

// NodeName returns the catalog node name for fqdn.
func NodeName(fqdn string) string {
	if i := strings.IndexByte(fqdn, '.'); i > 0 {
		return fqdn[:i]
	}
	return fqdn
}

func (c *Consul) Register(ctx context.Context, rec Record) error {
	if rec.FQDN == "" || rec.Address == "" {
		return errors.New("naming record requires fqdn and address")
	}

	reg := &consulapi.CatalogRegistration{
		Node:       NodeName(rec.FQDN),
		Address:    rec.Address,
		Datacenter: c.datacenter,
		NodeMeta: map[string]string{
			"external-node": "true",
			"swarmcp-fqdn":  rec.FQDN,
			"swarmcp-node":  rec.NodeID,
			"swarmcp-swarm": rec.ClusterID,
		},
	}
	if _, err := c.catalog.Register(reg, (&consulapi.WriteOptions{}).WithContext(ctx)); err != nil {
		return fmt.Errorf("consul catalog register %s: %w", reg.Node, err)
	}

	c.logger.Info("fqdn registered",
		zap.String("fqdn", rec.FQDN),
		zap.String("address", rec.Address),
	)
	return nil
}

func (c *Consul) Unregister(ctx context.Context, fqdn string) error {
	if fqdn == "" {
		return nil
	}

	dereg := &consulapi.CatalogDeregistration{
		Node:       NodeName(fqdn),
		Datacenter: c.datacenter,
	}
	if _, err := c.catalog.Deregister(dereg, (&consulapi.WriteOptions{}).WithContext(ctx)); err != nil {
		var status consulapi.StatusError
		if errors.As(err, &status) && status.Code == 404 {
			return nil
		}
		return fmt.Errorf("consul catalog deregister %s: %w", dereg.Node, err)
	}

	c.logger.Info("fqdn unregistered", zap.String("fqdn", fqdn))
	return nil
}
