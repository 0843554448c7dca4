package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"swarmcp.io/models"
	"swarmcp.io/server/internal/logging"
	"swarmcp.io/server/internal/metrics"
)

// Monitor periodically refreshes every cluster aggregate.
//
// Each sweep:
// - recomputes the stored aggregate of every cluster
// - publishes a cluster.state event when the observed state changed since the last sweep
// - refreshes node, cluster and database gauges
//
// State events are at-least-once: a change already published by a node
// notification may be published again by the next sweep.
type Monitor struct {
	config    Config
	clusters  Clusters
	nodes     Nodes
	publisher Publisher
	dbStats   func() sql.DBStats
	logger    *zap.Logger

	mu   sync.Mutex
	seen map[string]models.NodeState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// For testing - allow overriding time functions
	now func() time.Time
}

// New creates a new monitor.
//
// Parameters:
//   - config: Sweep interval and ping timeout
//   - clusters: Cluster service refreshed on every sweep
//   - nodes: Source of node statuses for the state gauges
//   - publisher: Receiver of cluster state events, may be nil
//   - logger: Zap logger for structured logging
func New(config Config, clusters Clusters, nodes Nodes, publisher Publisher, logger *zap.Logger) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.PingTimeout <= 0 {
		config.PingTimeout = models.DefaultPingTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		config:    config,
		clusters:  clusters,
		nodes:     nodes,
		publisher: publisher,
		logger:    logger,
		seen:      make(map[string]models.NodeState),
		ctx:       ctx,
		cancel:    cancel,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithDBStats makes every sweep export the connection pool statistics of db.
func (m *Monitor) WithDBStats(db *sql.DB) *Monitor {
	m.dbStats = db.Stats
	return m
}

// Start runs a first sweep and starts the background loop.
func (m *Monitor) Start() error {
	if err := m.Sweep(m.ctx); err != nil {
		return fmt.Errorf("initial sweep failed: %w", err)
	}

	m.logger.Info("monitor started", zap.Duration("interval", m.config.Interval))

	m.wg.Add(1)
	go m.loop()
	return nil
}

// Stop cancels the loop and waits for the running sweep to finish.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
	m.logger.Info("monitor stopped")
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return

		case <-ticker.C:
			if err := m.Sweep(m.ctx); err != nil {
				m.logger.Error("monitor sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs one monitoring pass. A cluster that fails to refresh is logged
// and skipped; listing failures abort the pass.
func (m *Monitor) Sweep(ctx context.Context) error {
	clusters, err := m.clusters.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to list clusters: %w", err)
	}
	for _, c := range clusters {
		if err := m.clusters.Refresh(ctx, c.ID); err != nil {
			m.logger.Warn("failed to refresh cluster",
				zap.String(logging.FieldClusterID, c.ID),
				zap.Error(err),
			)
		}
	}

	// Listing again picks up the refreshed aggregates.
	clusters, err = m.clusters.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to list clusters: %w", err)
	}
	m.observeClusters(clusters)

	statuses, err := m.nodes.NodeStatuses(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list node statuses: %w", err)
	}
	now := m.now()
	counts := make(map[models.NodeState]int)
	for _, st := range statuses {
		counts[models.DeriveState(st.LastState, st.LastPing, now, m.config.PingTimeout)]++
	}
	metrics.NodesByState.Reset()
	for state, n := range counts {
		metrics.NodesByState.WithLabelValues(string(state)).Set(float64(n))
	}

	if m.dbStats != nil {
		metrics.RecordDBStats(m.dbStats())
	}
	return nil
}

func (m *Monitor) observeClusters(clusters []*models.ClusterView) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics.ClusterCount.Set(float64(len(clusters)))

	present := make(map[string]struct{}, len(clusters))
	for _, c := range clusters {
		present[c.ID] = struct{}{}

		prev, known := m.seen[c.ID]
		m.seen[c.ID] = c.State
		if !known || prev == c.State {
			continue
		}

		m.logger.Info("cluster state observed",
			zap.String(logging.FieldClusterID, c.ID),
			zap.String(logging.FieldPreviousState, string(prev)),
			zap.String(logging.FieldState, string(c.State)),
		)
		if m.publisher != nil {
			m.publisher.Publish(models.ClusterEvent{
				Type:      models.EventClusterState,
				ClusterID: c.ID,
				State:     c.State,
				Cluster:   c,
				Time:      m.now(),
			})
		}
	}

	for id := range m.seen {
		if _, ok := present[id]; !ok {
			delete(m.seen, id)
		}
	}
}
