package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"swarmcp.io/models"
	"swarmcp.io/server/internal/logging"
	"swarmcp.io/server/internal/metrics"
	"swarmcp.io/server/internal/store"
)

const (
	defaultClusterListLimit = 25
	maxClusterListLimit     = 500

	// destroyConcurrency bounds the node teardowns run in parallel on cluster delete.
	destroyConcurrency = 8
)

// NodeDestroyer removes a node through its full destroy path.
type NodeDestroyer interface {
	DestroyNode(ctx context.Context, nodeID string) error
}

// ClusterService manages clusters and keeps their aggregate status up to date.
type ClusterService struct {
	store       *store.Store
	destroyer   NodeDestroyer
	events      EventPublisher
	logger      *zap.Logger
	pingTimeout time.Duration
	now         func() time.Time
}

// NewClusterService creates a new ClusterService.
//
// Parameters:
//   - st: Durable store
//   - logger: Zap logger for structured logging
//   - pingTimeout: Staleness threshold of the master ping
func NewClusterService(st *store.Store, logger *zap.Logger, pingTimeout time.Duration) *ClusterService {
	if pingTimeout <= 0 {
		pingTimeout = models.DefaultPingTimeout
	}
	return &ClusterService{
		store:       st,
		events:      nopPublisher{},
		logger:      logger,
		pingTimeout: pingTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetNodeDestroyer sets the destroy path used on cluster delete.
// NodeService and ClusterService reference each other, so it is wired after construction.
func (s *ClusterService) SetNodeDestroyer(d NodeDestroyer) {
	s.destroyer = d
}

// SetEventPublisher routes cluster events to p.
func (s *ClusterService) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = nopPublisher{}
	}
	s.events = p
}

// View returns the API representation of c with its derived fields.
func (s *ClusterService) View(c *models.Cluster) *models.ClusterView {
	state := c.State(s.now(), s.pingTimeout)
	return &models.ClusterView{
		Cluster:      c,
		State:        state,
		StateMessage: state.Message(),
	}
}

// Create creates an empty cluster owned by tenantID.
func (s *ClusterService) Create(ctx context.Context, tenantID string, req *models.ClusterCreateRequest) (*models.ClusterView, error) {
	strategy := req.Strategy
	if strategy == "" {
		strategy = models.StrategySpread
	}

	verr := &models.ValidationError{}
	validateClusterName(req.Name, verr)
	validateStrategy(strategy, verr)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	c := &models.Cluster{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      req.Name,
		Strategy:  strategy,
		LastState: models.StateEmpty,
		Cert:      req.Cert,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertCluster(ctx, c); err != nil {
		return nil, err
	}

	metrics.ClusterCount.Inc()
	s.logger.Info("cluster created",
		zap.String(logging.FieldClusterID, c.ID),
		zap.String(logging.FieldTenantID, tenantID),
	)
	return s.View(c), nil
}

// Get returns a cluster of tenantID. Clusters of other tenants are reported as not found.
func (s *ClusterService) Get(ctx context.Context, tenantID, clusterID string) (*models.ClusterView, error) {
	c, err := s.get(ctx, tenantID, clusterID)
	if err != nil {
		return nil, err
	}
	return s.View(c), nil
}

func (s *ClusterService) get(ctx context.Context, tenantID, clusterID string) (*models.Cluster, error) {
	c, err := s.store.GetCluster(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	if tenantID != "" && c.TenantID != tenantID {
		return nil, models.ErrClusterNotFound
	}
	return c, nil
}

// List returns a page of the clusters of tenantID matching filter.
// The state filter applies to the derived state.
func (s *ClusterService) List(ctx context.Context, tenantID string, filter models.ClusterFilter) (*models.ClusterListResponse, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", models.ErrInvalidRequest)
	}
	if filter.Limit == 0 {
		filter.Limit = defaultClusterListLimit
	}
	if filter.Limit > maxClusterListLimit {
		filter.Limit = maxClusterListLimit
	}

	clusters, err := s.store.ListClusters(ctx, tenantID, filter.Name, filter.Strategy)
	if err != nil {
		return nil, err
	}

	views := make([]*models.ClusterView, 0, len(clusters))
	for _, c := range clusters {
		v := s.View(c)
		if filter.State != "" && v.State != filter.State {
			continue
		}
		views = append(views, v)
	}

	total := len(views)
	start := min(filter.Offset, total)
	end := min(start+filter.Limit, total)

	return &models.ClusterListResponse{
		Clusters: views[start:end],
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}

// Update renames a cluster, changes its strategy or replaces its certificate.
func (s *ClusterService) Update(ctx context.Context, tenantID, clusterID string, req *models.ClusterUpdateRequest) (*models.ClusterView, error) {
	c, err := s.get(ctx, tenantID, clusterID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Strategy != nil {
		c.Strategy = *req.Strategy
	}
	if req.Cert != nil {
		c.Cert = req.Cert
	}

	verr := &models.ValidationError{}
	validateClusterName(c.Name, verr)
	validateStrategy(c.Strategy, verr)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	c.UpdatedAt = s.now()
	if err := s.store.UpdateCluster(ctx, c); err != nil {
		return nil, err
	}
	return s.View(c), nil
}

// Delete destroys every node of a cluster through the node destroy path, then
// removes the cluster. The cluster stays when a node cannot be destroyed.
func (s *ClusterService) Delete(ctx context.Context, tenantID, clusterID string) error {
	c, err := s.get(ctx, tenantID, clusterID)
	if err != nil {
		return err
	}

	nodes, err := s.store.NodeStatuses(ctx, c.ID)
	if err != nil {
		return err
	}
	if len(nodes) > 0 {
		if s.destroyer == nil {
			return fmt.Errorf("%w: no node destroyer configured", models.ErrServiceUnavailable)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(destroyConcurrency)
		for _, n := range nodes {
			g.Go(func() error {
				err := s.destroyer.DestroyNode(gctx, n.ID)
				if errors.Is(err, models.ErrNodeNotFound) {
					return nil
				}
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("failed to destroy nodes of cluster %s: %w", c.ID, err)
		}
	}

	if err := s.store.DeleteCluster(ctx, c.ID); err != nil {
		return err
	}

	metrics.ClusterCount.Dec()
	s.logger.Info("cluster deleted",
		zap.String(logging.FieldClusterID, c.ID),
		zap.Int("nodes", len(nodes)),
	)
	return nil
}

// Notify merges a node delta into the aggregate status of a cluster.
//
// The aggregate is recomputed from the member nodes, so repeating a delta has no
// further effect. A cluster that no longer exists is not an error.
func (s *ClusterService) Notify(ctx context.Context, clusterID string, delta models.ClusterDelta) error {
	s.logger.Debug("cluster notified",
		zap.String(logging.FieldClusterID, clusterID),
		zap.String(logging.FieldState, string(delta.LastState)),
		zap.Bool("ping", delta.PingSet),
	)

	before, after, err := s.store.RecomputeAggregate(ctx, clusterID, s.now(), aggregate)
	if errors.Is(err, models.ErrClusterNotFound) {
		metrics.ClusterNotifications.WithLabelValues("skipped").Inc()
		return nil
	}
	if err != nil {
		return err
	}
	metrics.ClusterNotifications.WithLabelValues("applied").Inc()

	previous := s.View(before).State
	view := s.View(after)
	if view.State != previous {
		s.logger.Info("cluster state changed",
			zap.String(logging.FieldClusterID, after.ID),
			zap.String(logging.FieldPreviousState, string(previous)),
			zap.String(logging.FieldState, string(view.State)),
		)
		s.events.Publish(models.ClusterEvent{
			Type:      models.EventClusterState,
			ClusterID: after.ID,
			State:     view.State,
			Cluster:   view,
			Time:      s.now(),
		})
	}
	return nil
}

// Refresh recomputes the aggregate of a cluster without any node delta.
func (s *ClusterService) Refresh(ctx context.Context, clusterID string) error {
	return s.Notify(ctx, clusterID, models.ClusterDelta{})
}

// All returns every cluster of every tenant.
func (s *ClusterService) All(ctx context.Context) ([]*models.ClusterView, error) {
	clusters, err := s.store.ListClusters(ctx, "", "", "")
	if err != nil {
		return nil, err
	}
	views := make([]*models.ClusterView, 0, len(clusters))
	for _, c := range clusters {
		views = append(views, s.View(c))
	}
	return views, nil
}

// aggregate recomputes the aggregate fields of c from its member nodes.
//
// Nodes commit before they notify, so the records already carry what the delta
// reports. The cluster state follows the master when there is one. Without a
// master the most transient member state wins: deploying, then upgrading, then
// updating, then running. The cluster ping is the master ping and is cleared
// when the cluster has no master.
func aggregate(c *models.Cluster, nodes []store.NodeStatus) {
	c.NodesCount = len(nodes)

	var master *store.NodeStatus
	for i := range nodes {
		if nodes[i].Master {
			master = &nodes[i]
			break
		}
	}

	switch {
	case len(nodes) == 0:
		c.LastState = models.StateEmpty
		c.LastPing = nil
	case master != nil:
		c.LastState = master.LastState
		c.LastPing = master.LastPing
	default:
		c.LastState = dominantState(nodes)
		c.LastPing = nil
	}
}

var statePriority = map[models.NodeState]int{
	models.StateDeploying: 4,
	models.StateUpgrading: 3,
	models.StateUpdating:  2,
	models.StateRunning:   1,
}

func dominantState(nodes []store.NodeStatus) models.NodeState {
	best := models.StateRunning
	for _, n := range nodes {
		if statePriority[n.LastState] > statePriority[best] {
			best = n.LastState
		}
	}
	return best
}
