// Package metrics holds the Prometheus collectors of the control plane.
//
// Collectors are package variables so that any layer can record into them.
// They are only exported once Init has registered them with Registry.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	initOnce sync.Once
	initErr  error
)

// Init registers the runtime collectors and every control plane collector
// with Registry. Later calls return the outcome of the first one.
func Init() error {
	initOnce.Do(func() {
		initErr = register(Registry)
	})
	return initErr
}

func register(reg prometheus.Registerer) error {
	groups := [][]prometheus.Collector{
		{collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})},
		httpCollectors,
		databaseCollectors,
		rateLimitCollectors,
		lifecycleCollectors,
	}
	for _, group := range groups {
		for _, c := range group {
			if err := reg.Register(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
