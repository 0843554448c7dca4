package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"swarmcp.io/models"
	"swarmcp.io/server/internal/logging"
	"swarmcp.io/server/internal/metrics"
	"swarmcp.io/server/internal/naming"
	"swarmcp.io/server/internal/provision"
	"swarmcp.io/server/internal/store"
)

const (
	collaboratorProvisioning = "provisioning"
	collaboratorNaming       = "naming"

	maxTokenAttempts = 3
)

// TokenGenerator issues agent tokens.
type TokenGenerator interface {
	Generate(nodeID string) (string, error)
}

// ClusterNotifier receives the deltas nodes report to their cluster.
type ClusterNotifier interface {
	Notify(ctx context.Context, clusterID string, delta models.ClusterDelta) error
}

// EventPublisher fans cluster events out to subscribers.
type EventPublisher interface {
	Publish(ev models.ClusterEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(models.ClusterEvent) {}

// NodeOptions holds the deployment settings nodes derive values from.
type NodeOptions struct {
	// NodeDomain is the DNS zone node FQDNs live in
	NodeDomain string

	// AgentCmd is the install command prefix handed to byon nodes
	AgentCmd string

	// PingTimeout is how long a running node may stay silent
	PingTimeout time.Duration

	// Versions are the docker and swarm versions new nodes are deployed with
	Versions models.Versions
}

// NodeService drives the node lifecycle.
//
// Every operation loads the node, applies the transition to a copy, calls the
// collaborators in the required order, persists, and then reports the change
// to the owning cluster. Notification errors are returned to the caller but
// never undo a persisted change.
type NodeService struct {
	store       *store.Store
	provisioner provision.Provisioner
	naming      naming.Service
	tokens      TokenGenerator
	notifier    ClusterNotifier
	events      EventPublisher
	logger      *zap.Logger
	opts        NodeOptions
	now         func() time.Time
}

// NewNodeService creates a new NodeService.
//
// Parameters:
//   - st: Durable store
//   - provisioner: Machine provisioning backend
//   - names: Naming service the node FQDNs are registered with
//   - tokens: Agent token generator
//   - notifier: Receiver of cluster deltas, usually the ClusterService
//   - logger: Zap logger for structured logging
//   - opts: Node domain, agent command, ping timeout and default versions
func NewNodeService(
	st *store.Store,
	provisioner provision.Provisioner,
	names naming.Service,
	tokens TokenGenerator,
	notifier ClusterNotifier,
	logger *zap.Logger,
	opts NodeOptions,
) *NodeService {
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = models.DefaultPingTimeout
	}
	return &NodeService{
		store:       st,
		provisioner: provisioner,
		naming:      names,
		tokens:      tokens,
		notifier:    notifier,
		events:      nopPublisher{},
		logger:      logger,
		opts:        opts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetEventPublisher routes node events to p.
func (s *NodeService) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = nopPublisher{}
	}
	s.events = p
}

// View returns the API representation of n with its derived fields.
func (s *NodeService) View(n *models.Node) *models.NodeView {
	state := n.State(s.now(), s.opts.PingTimeout)
	return &models.NodeView{
		Node:         n,
		State:        state,
		StateMessage: state.Message(),
		AgentCmd:     n.AgentCmd(s.opts.AgentCmd),
		FQDN:         n.FQDN(s.opts.NodeDomain),
	}
}

// Create validates and provisions a new node, then persists it in deploying state.
//
// Parameters:
//   - ctx: Request context for cancellation
//   - clusterID: Owning cluster, already checked against the caller's tenant
//   - req: Node creation request payload
//
// Returns:
//   - *models.NodeView of the persisted node
//   - *models.ValidationError, *models.MasterUniquenessError, a conflict sentinel
//     or *models.CollaboratorError on failure
func (s *NodeService) Create(ctx context.Context, clusterID string, req *models.NodeCreateRequest) (*models.NodeView, error) {
	verr := &models.ValidationError{}
	labels := decodeLabels(req.Labels, verr)

	now := s.now()
	n := &models.Node{
		ID:            uuid.New().String(),
		ClusterID:     clusterID,
		Name:          req.Name,
		Master:        req.Master,
		Byon:          req.Byon,
		Region:        req.Region,
		NodeSize:      req.NodeSize,
		PublicIP:      req.PublicIP,
		CPU:           req.CPU,
		Memory:        req.Memory,
		Disk:          req.Disk,
		Labels:        labels,
		DockerVersion: s.opts.Versions.Docker,
		SwarmVersion:  s.opts.Versions.Swarm,
		LastState:     models.StateDeploying,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	checkNode(n, verr)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	if _, err := s.store.GetCluster(ctx, clusterID); err != nil {
		return nil, err
	}
	if err := s.checkConflicts(ctx, nil, n); err != nil {
		return nil, err
	}

	tok, err := s.issueToken(ctx, n.ID)
	if err != nil {
		return nil, err
	}
	n.Token = tok

	logger := logging.ForNode(ctx, s.logger, clusterID, n.ID)

	if !n.Byon {
		spec := provision.MachineSpec{
			NodeID:    n.ID,
			ClusterID: n.ClusterID,
			Name:      n.Name,
			Region:    *n.Region,
			Size:      *n.NodeSize,
			Token:     n.Token,
			Master:    n.Master,
			Labels:    n.Labels,
			Versions:  n.Versions(),
		}
		err := s.call(logger, collaboratorProvisioning, "create", func() error {
			handle, err := s.provisioner.Create(ctx, spec)
			n.MachineID = handle
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	registered := false
	if n.PublicIP != nil {
		if err := s.register(ctx, logger, n); err != nil {
			return nil, errors.Join(err, s.releaseMachine(ctx, logger, n))
		}
		registered = true
	}

	if err := s.store.InsertNode(ctx, n); err != nil {
		err = errors.Join(err, s.releaseMachine(ctx, logger, n))
		if registered {
			err = errors.Join(err, s.unregister(ctx, logger, n.FQDN(s.opts.NodeDomain)))
		}
		return nil, err
	}

	metrics.NodeTransitions.WithLabelValues("", string(n.LastState)).Inc()
	logger.Info("node created",
		zap.String(logging.FieldState, string(n.LastState)),
		zap.Bool("byon", n.Byon),
		zap.Bool("master", n.Master),
	)
	s.publish(models.EventNodeCreated, n)

	view := s.View(n)
	if err := s.notifier.Notify(ctx, clusterID, models.StateDelta(n.LastState)); err != nil {
		return view, err
	}
	return view, nil
}

// releaseMachine destroys the machine of a node that could not be persisted.
func (s *NodeService) releaseMachine(ctx context.Context, logger *zap.Logger, n *models.Node) error {
	if n.Byon || n.MachineID == "" {
		return nil
	}
	return s.call(logger, collaboratorProvisioning, "destroy", func() error {
		return s.provisioner.Destroy(ctx, n.MachineID)
	})
}

// Get returns one node of a cluster.
func (s *NodeService) Get(ctx context.Context, clusterID, nodeID string) (*models.NodeView, error) {
	n, err := s.store.GetNodeInCluster(ctx, clusterID, nodeID)
	if err != nil {
		return nil, err
	}
	return s.View(n), nil
}

// List returns the nodes of a cluster matching filter.
func (s *NodeService) List(ctx context.Context, clusterID string, filter models.NodeFilter) (*models.NodeListResponse, error) {
	if _, err := s.store.GetCluster(ctx, clusterID); err != nil {
		return nil, err
	}
	nodes, err := s.store.ListNodes(ctx, clusterID, filter)
	if err != nil {
		return nil, err
	}

	views := make([]*models.NodeView, 0, len(nodes))
	for _, n := range nodes {
		views = append(views, s.View(n))
	}
	return &models.NodeListResponse{
		ClusterID: clusterID,
		Nodes:     views,
		Total:     len(views),
	}, nil
}

// Authenticate resolves the node owning an agent token.
func (s *NodeService) Authenticate(ctx context.Context, tok string) (*models.Node, error) {
	if strings.TrimSpace(tok) == "" {
		return nil, models.ErrUnauthorized
	}
	n, err := s.store.GetNodeByToken(ctx, tok)
	if errors.Is(err, models.ErrNodeNotFound) {
		return nil, models.ErrInvalidToken
	}
	return n, err
}

// Update applies direct record updates (master, public_ip, resources).
// No lifecycle precondition applies. An empty public_ip clears the address.
func (s *NodeService) Update(ctx context.Context, clusterID, nodeID string, req *models.NodeUpdateRequest) (*models.NodeView, error) {
	before, err := s.store.GetNodeInCluster(ctx, clusterID, nodeID)
	if err != nil {
		return nil, err
	}

	after := before.Clone()
	if req.Master != nil {
		after.Master = *req.Master
	}
	if req.PublicIP != nil {
		if *req.PublicIP == "" {
			after.PublicIP = nil
		} else {
			ip := *req.PublicIP
			after.PublicIP = &ip
		}
	}
	if req.CPU != nil {
		after.CPU = req.CPU
	}
	if req.Memory != nil {
		after.Memory = req.Memory
	}
	if req.Disk != nil {
		after.Disk = req.Disk
	}

	if err := validateNode(after); err != nil {
		return nil, err
	}
	if err := s.checkConflicts(ctx, before, after); err != nil {
		return nil, err
	}
	return s.commit(ctx, "update", before, after)
}

// Change applies a name or labels change through provisioning. The node must be
// running; it stays updating until its agent registers again.
func (s *NodeService) Change(ctx context.Context, clusterID, nodeID string, req *models.NodeChangeRequest) (*models.NodeView, error) {
	verr := &models.ValidationError{}
	changes := models.NodeChanges{Name: req.Name, Labels: decodeLabels(req.Labels, verr)}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	before, err := s.store.GetNodeInCluster(ctx, clusterID, nodeID)
	if err != nil {
		return nil, err
	}
	if state := before.State(s.now(), s.opts.PingTimeout); state != models.StateRunning {
		return nil, &models.StateError{Op: "change", State: state}
	}
	if changes.Empty() {
		return s.View(before), nil
	}

	after := before.Clone()
	after.LastState = models.StateUpdating
	if changes.Name != nil {
		after.Name = *changes.Name
	}
	if changes.Labels != nil {
		after.Labels = changes.Labels
	}

	if err := validateNode(after); err != nil {
		return nil, err
	}
	if err := s.checkConflicts(ctx, before, after); err != nil {
		return nil, err
	}

	logger := s.nodeLogger(ctx, after)
	if err := s.call(logger, collaboratorProvisioning, "update", func() error {
		return s.provisioner.Update(ctx, after.MachineID, changes)
	}); err != nil {
		return nil, err
	}
	return s.commit(ctx, "change", before, after)
}

// Upgrade hands new docker and swarm versions to provisioning. The node must be
// running and the versions must differ from the current ones. The new versions
// are recorded when the agent registers after the upgrade.
func (s *NodeService) Upgrade(ctx context.Context, clusterID, nodeID string, req *models.NodeUpgradeRequest) (*models.NodeView, error) {
	versions := models.Versions{Docker: req.Docker, Swarm: req.Swarm}
	verr := &models.ValidationError{}
	if strings.TrimSpace(versions.Docker) == "" {
		verr.Add("docker", "is required")
	}
	if strings.TrimSpace(versions.Swarm) == "" {
		verr.Add("swarm", "is required")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	before, err := s.store.GetNodeInCluster(ctx, clusterID, nodeID)
	if err != nil {
		return nil, err
	}
	if state := before.State(s.now(), s.opts.PingTimeout); state != models.StateRunning {
		return nil, &models.StateError{Op: "upgrade", State: state}
	}
	if before.Versions() == versions {
		return nil, &models.AlreadyUpgradedError{Versions: versions}
	}

	logger := s.nodeLogger(ctx, before)
	if err := s.call(logger, collaboratorProvisioning, "upgrade", func() error {
		return s.provisioner.Upgrade(ctx, before.MachineID, versions)
	}); err != nil {
		return nil, err
	}

	after := before.Clone()
	after.LastState = models.StateUpgrading
	return s.commit(ctx, "upgrade", before, after)
}

// Register records what an agent reports once it has finished its pending work
// and puts the node in running state.
func (s *NodeService) Register(ctx context.Context, nodeID string, info *models.AgentInfo) (*models.NodeView, error) {
	verr := &models.ValidationError{}
	labels := decodeLabels(info.Labels, verr)
	if err := verr.Err(); err != nil {
		return nil, err
	}

	before, err := s.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	after := before.Clone()
	after.LastState = models.StateRunning
	after.LastPing = &now
	if info.DockerVersion != nil {
		after.DockerVersion = *info.DockerVersion
	}
	if info.SwarmVersion != nil {
		after.SwarmVersion = *info.SwarmVersion
	}
	if info.PublicIP != nil {
		ip := *info.PublicIP
		after.PublicIP = &ip
	}
	if info.CPU != nil {
		after.CPU = info.CPU
	}
	if info.Memory != nil {
		after.Memory = info.Memory
	}
	if info.Disk != nil {
		after.Disk = info.Disk
	}
	if labels != nil {
		after.Labels = labels
	}

	if err := validateNode(after); err != nil {
		return nil, err
	}
	if err := s.checkConflicts(ctx, before, after); err != nil {
		return nil, err
	}
	return s.commit(ctx, "register", before, after)
}

// Ping records that the agent of a node is alive. Only last_ping changes.
func (s *NodeService) Ping(ctx context.Context, nodeID string) error {
	n, err := s.store.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}

	now := s.now()
	if err := s.store.UpdateNodePing(ctx, n.ID, now); err != nil {
		return err
	}
	if !n.Master {
		return nil
	}
	return s.notifier.Notify(ctx, n.ClusterID, models.PingDelta(&now))
}

// AgentInfos returns the configuration the agent of a node applies.
func (s *NodeService) AgentInfos(ctx context.Context, nodeID string) (*models.AgentInfos, error) {
	n, err := s.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetCluster(ctx, n.ClusterID)
	if err != nil {
		return nil, err
	}

	labels := n.Labels
	if labels == nil {
		labels = models.Labels{}
	}
	return &models.AgentInfos{
		Master:   n.Master,
		Name:     n.Name,
		Labels:   labels,
		Cert:     c.Cert,
		Versions: s.opts.Versions,
		Strategy: c.Strategy,
	}, nil
}

// RotateToken replaces the agent token of a node.
func (s *NodeService) RotateToken(ctx context.Context, clusterID, nodeID string) (*models.NodeTokenRotateResponse, error) {
	before, err := s.store.GetNodeInCluster(ctx, clusterID, nodeID)
	if err != nil {
		return nil, err
	}

	after := before.Clone()
	for attempt := 1; ; attempt++ {
		tok, err := s.issueToken(ctx, before.ID)
		if err != nil {
			return nil, err
		}
		after.Token = tok
		after.UpdatedAt = s.now()
		err = s.store.UpdateNode(ctx, after)
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrTokenCollision) || attempt == maxTokenAttempts {
			return nil, err
		}
	}

	s.nodeLogger(ctx, after).Info("node token rotated")
	return &models.NodeTokenRotateResponse{
		NodeID:    after.ID,
		NodeToken: after.Token,
		RotatedAt: after.UpdatedAt,
	}, nil
}

// issueToken generates a token no other node holds. A collision is
// regenerated up to maxTokenAttempts times.
func (s *NodeService) issueToken(ctx context.Context, nodeID string) (string, error) {
	for range maxTokenAttempts {
		tok, err := s.tokens.Generate(nodeID)
		if err != nil {
			return "", fmt.Errorf("failed to generate node token: %w", err)
		}
		_, err = s.store.GetNodeByToken(ctx, tok)
		if errors.Is(err, models.ErrNodeNotFound) {
			return tok, nil
		}
		if err != nil {
			return "", err
		}
		s.logger.Warn("generated node token collides, regenerating", zap.String(logging.FieldNodeID, nodeID))
	}
	return "", models.ErrTokenCollision
}

// Destroy removes a node of a cluster.
func (s *NodeService) Destroy(ctx context.Context, clusterID, nodeID string) error {
	n, err := s.store.GetNodeInCluster(ctx, clusterID, nodeID)
	if err != nil {
		return err
	}
	return s.destroy(ctx, n)
}

// DestroyNode removes a node whatever its cluster. Cluster teardown uses it.
func (s *NodeService) DestroyNode(ctx context.Context, nodeID string) error {
	n, err := s.store.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}
	return s.destroy(ctx, n)
}

// destroy releases the machine (unless byon), then the node name, then the
// record. A collaborator failure leaves the record in place.
func (s *NodeService) destroy(ctx context.Context, n *models.Node) error {
	logger := s.nodeLogger(ctx, n)

	if !n.Byon {
		if err := s.call(logger, collaboratorProvisioning, "destroy", func() error {
			return s.provisioner.Destroy(ctx, n.MachineID)
		}); err != nil {
			return err
		}
	}
	if err := s.unregister(ctx, logger, n.FQDN(s.opts.NodeDomain)); err != nil {
		return err
	}
	if err := s.store.DeleteNode(ctx, n.ID); err != nil {
		return err
	}

	metrics.NodeTransitions.WithLabelValues(string(n.LastState), string(models.StateDestroyed)).Inc()
	logger.Info("node destroyed", zap.String(logging.FieldPreviousState, string(n.LastState)))
	s.publish(models.EventNodeDestroyed, n)

	return s.notifier.Notify(ctx, n.ClusterID, models.DestroyedDelta(n.Master))
}

// checkConflicts runs the uniqueness checks that must hold before any
// collaborator is called. before is nil for a node being created.
func (s *NodeService) checkConflicts(ctx context.Context, before, after *models.Node) error {
	wasMaster := before != nil && before.Master
	if after.Master && !wasMaster {
		masterID, err := s.store.FindMaster(ctx, after.ClusterID, after.ID)
		if err != nil {
			return err
		}
		if masterID != "" {
			return &models.MasterUniquenessError{ClusterID: after.ClusterID}
		}
	}

	if before == nil || before.Name != after.Name {
		taken, err := s.store.NameTaken(ctx, after.ClusterID, after.Name, after.ID)
		if err != nil {
			return err
		}
		if taken {
			return models.ErrDuplicateName
		}
	}

	if after.PublicIP != nil && (before == nil || !sameString(before.PublicIP, after.PublicIP)) {
		taken, err := s.store.PublicIPTaken(ctx, *after.PublicIP, after.ID)
		if err != nil {
			return err
		}
		if taken {
			return models.ErrPublicIPTaken
		}
	}
	return nil
}

// commit persists after and reports the change to the cluster.
//
// The FQDN is registered before a new address or name is stored, and the old
// name is released once the new record is committed.
func (s *NodeService) commit(ctx context.Context, op string, before, after *models.Node) (*models.NodeView, error) {
	logger := s.nodeLogger(ctx, after)
	after.UpdatedAt = s.now()

	oldFQDN := before.FQDN(s.opts.NodeDomain)
	newFQDN := after.FQDN(s.opts.NodeDomain)
	ipChanged := !sameString(before.PublicIP, after.PublicIP)
	fqdnChanged := !sameString(oldFQDN, newFQDN)

	if after.PublicIP != nil && (ipChanged || fqdnChanged) {
		if err := s.register(ctx, logger, after); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateNode(ctx, after); err != nil {
		return nil, err
	}

	// The commit stands when the old name cannot be released. The failure is
	// returned after the cluster is notified.
	var releaseErr error
	if before.PublicIP != nil && (fqdnChanged || after.PublicIP == nil) {
		releaseErr = s.unregister(ctx, logger, oldFQDN)
	}

	if before.LastState != after.LastState {
		metrics.NodeTransitions.WithLabelValues(string(before.LastState), string(after.LastState)).Inc()
		logger.Info("node state changed",
			zap.String(logging.FieldOperation, op),
			zap.String(logging.FieldPreviousState, string(before.LastState)),
			zap.String(logging.FieldState, string(after.LastState)),
		)
	} else {
		logger.Debug("node updated", zap.String(logging.FieldOperation, op))
	}
	s.publish(models.EventNodeChanged, after)

	view := s.View(after)
	var notifyErr error
	if delta := clusterDelta(before, after); !delta.Empty() {
		notifyErr = s.notifier.Notify(ctx, after.ClusterID, delta)
	}
	return view, errors.Join(releaseErr, notifyErr)
}

// clusterDelta computes what a committed node change reports to its cluster.
// A state change and a ping change are merged into one delta.
func clusterDelta(before, after *models.Node) models.ClusterDelta {
	var delta models.ClusterDelta
	if before.LastState != after.LastState {
		delta.LastState = after.LastState
	}

	masterChanged := before.Master != after.Master
	pingChanged := !sameTime(before.LastPing, after.LastPing)
	switch {
	case after.Master && (masterChanged || pingChanged):
		delta.LastPing = after.LastPing
		delta.PingSet = true
	case masterChanged:
		delta.LastPing = nil
		delta.PingSet = true
	}
	return delta
}

func (s *NodeService) register(ctx context.Context, logger *zap.Logger, n *models.Node) error {
	fqdn := n.FQDN(s.opts.NodeDomain)
	if fqdn == nil || n.PublicIP == nil {
		return nil
	}
	rec := naming.Record{
		FQDN:      *fqdn,
		Address:   *n.PublicIP,
		NodeID:    n.ID,
		ClusterID: n.ClusterID,
	}
	return s.call(logger, collaboratorNaming, "register", func() error {
		return s.naming.Register(ctx, rec)
	})
}

func (s *NodeService) unregister(ctx context.Context, logger *zap.Logger, fqdn *string) error {
	if fqdn == nil {
		return nil
	}
	return s.call(logger, collaboratorNaming, "unregister", func() error {
		return s.naming.Unregister(ctx, *fqdn)
	})
}

// call runs one collaborator operation, recording its outcome.
func (s *NodeService) call(logger *zap.Logger, collaborator, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.ObserveCollaborator(collaborator, op, start, err)
	if err != nil {
		logger.Error("collaborator call failed",
			zap.String(logging.FieldCollaborator, collaborator),
			zap.String(logging.FieldOperation, op),
			zap.Error(err),
		)
		return &models.CollaboratorError{Collaborator: collaborator, Op: op, Err: err}
	}
	return nil
}

func (s *NodeService) publish(eventType string, n *models.Node) {
	s.events.Publish(models.ClusterEvent{
		Type:      eventType,
		ClusterID: n.ClusterID,
		NodeID:    n.ID,
		State:     n.LastState,
		Time:      s.now(),
	})
}

// nodeLogger prefers the request logger, so node lines carry the request ID.
func (s *NodeService) nodeLogger(ctx context.Context, n *models.Node) *zap.Logger {
	return logging.ForNode(ctx, s.logger, n.ClusterID, n.ID)
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
