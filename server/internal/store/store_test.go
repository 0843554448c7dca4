package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"swarmcp.io/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	// every pooled connection would otherwise get its own in-memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := New(db, DialectSQLite, zap.NewNop())
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func strPtr(s string) *string { return &s }

func seedCluster(t *testing.T, s *Store, id string) *models.Cluster {
	t.Helper()
	now := time.Now().UTC()
	c := &models.Cluster{
		ID:        id,
		TenantID:  "tenant-1",
		Name:      "grounds-production",
		Strategy:  models.StrategySpread,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.InsertCluster(context.Background(), c))
	return c
}

func newNode(id, clusterID, name string) *models.Node {
	now := time.Now().UTC()
	return &models.Node{
		ID:        id,
		ClusterID: clusterID,
		Name:      name,
		Token:     "token-" + id,
		Region:    strPtr("nyc1"),
		NodeSize:  strPtr("s-1"),
		Labels:    models.Labels{"env": "prod"},
		LastState: models.StateDeploying,
		MachineID: "machine-" + id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestInsertAndGetNode(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedCluster(t, s, "cluster-1")

	n := newNode("node-1", "cluster-1", "alpha")
	n.CPU = new(int)
	*n.CPU = 2
	n.Disk = new(float64)
	*n.Disk = 20.5
	require.NoError(t, s.InsertNode(ctx, n))

	got, err := s.GetNode(ctx, "node-1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)
	assert.Equal(t, "token-node-1", got.Token)
	assert.Equal(t, models.StateDeploying, got.LastState)
	assert.Equal(t, "nyc1", *got.Region)
	assert.Equal(t, 2, *got.CPU)
	assert.Equal(t, 20.5, *got.Disk)
	assert.Nil(t, got.Memory)
	assert.Nil(t, got.PublicIP)
	assert.Nil(t, got.LastPing)
	assert.Equal(t, "prod", got.Labels["env"])
	assert.Equal(t, "machine-node-1", got.MachineID)

	byToken, err := s.GetNodeByToken(ctx, "token-node-1")
	require.NoError(t, err)
	assert.Equal(t, "node-1", byToken.ID)

	_, err = s.GetNode(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNodeNotFound)

	_, err = s.GetNodeInCluster(ctx, "other-cluster", "node-1")
	assert.ErrorIs(t, err, models.ErrNodeNotFound)
}

func TestUniqueConstraintsAreTranslated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedCluster(t, s, "cluster-1")

	a := newNode("node-a", "cluster-1", "alpha")
	a.Master = true
	a.PublicIP = strPtr("10.0.0.1")
	require.NoError(t, s.InsertNode(ctx, a))

	dupName := newNode("node-b", "cluster-1", "alpha")
	assert.ErrorIs(t, s.InsertNode(ctx, dupName), models.ErrDuplicateName)

	dupIP := newNode("node-c", "cluster-1", "charlie")
	dupIP.PublicIP = strPtr("10.0.0.1")
	assert.ErrorIs(t, s.InsertNode(ctx, dupIP), models.ErrPublicIPTaken)

	dupToken := newNode("node-d", "cluster-1", "delta")
	dupToken.Token = a.Token
	assert.ErrorIs(t, s.InsertNode(ctx, dupToken), models.ErrTokenCollision)

	secondMaster := newNode("node-e", "cluster-1", "echo")
	secondMaster.Master = true
	err := s.InsertNode(ctx, secondMaster)
	var masterErr *models.MasterUniquenessError
	require.True(t, errors.As(err, &masterErr), "expected MasterUniquenessError, got %v", err)
	assert.Equal(t, "cluster-1", masterErr.ClusterID)
}

func TestPartialIndexAllowsManyNonMasters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedCluster(t, s, "cluster-1")
	seedCluster(t, s, "cluster-2")

	for i, name := range []string{"a", "b", "c"} {
		require.NoError(t, s.InsertNode(ctx, newNode("n"+name, "cluster-1", name)), "node %d", i)
	}

	m1 := newNode("m1", "cluster-1", "m1")
	m1.Master = true
	require.NoError(t, s.InsertNode(ctx, m1))

	m2 := newNode("m2", "cluster-2", "m2")
	m2.Master = true
	require.NoError(t, s.InsertNode(ctx, m2), "a master in another cluster must be accepted")
}

func TestByonCheckConstraint(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedCluster(t, s, "cluster-1")

	n := newNode("node-1", "cluster-1", "alpha")
	n.Byon = true
	assert.Error(t, s.InsertNode(ctx, n), "byon node with region must be rejected by the schema")
}

func TestUpdateNodeAndPing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedCluster(t, s, "cluster-1")
	n := newNode("node-1", "cluster-1", "alpha")
	require.NoError(t, s.InsertNode(ctx, n))

	ping := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n.LastState = models.StateRunning
	n.LastPing = &ping
	n.DockerVersion = "1.12"
	n.Labels = models.Labels{"ssd": true}
	require.NoError(t, s.UpdateNode(ctx, n))

	got, err := s.GetNode(ctx, "node-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateRunning, got.LastState)
	assert.True(t, ping.Equal(*got.LastPing))
	assert.Equal(t, "1.12", got.DockerVersion)
	assert.Equal(t, true, got.Labels["ssd"])

	later := ping.Add(time.Minute)
	require.NoError(t, s.UpdateNodePing(ctx, "node-1", later))
	got, err = s.GetNode(ctx, "node-1")
	require.NoError(t, err)
	assert.True(t, later.Equal(*got.LastPing))
	assert.Equal(t, models.StateRunning, got.LastState)

	assert.ErrorIs(t, s.UpdateNodePing(ctx, "missing", later), models.ErrNodeNotFound)
	missing := newNode("missing", "cluster-1", "zulu")
	assert.ErrorIs(t, s.UpdateNode(ctx, missing), models.ErrNodeNotFound)
}

func TestListNodesFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedCluster(t, s, "cluster-1")

	a := newNode("node-a", "cluster-1", "alpha")
	a.Master = true
	b := newNode("node-b", "cluster-1", "bravo")
	b.Region = strPtr("ams3")
	b.Labels = models.Labels{"env": "staging"}
	c := newNode("node-c", "cluster-1", "charlie")
	c.Byon = true
	c.Region = nil
	c.NodeSize = nil
	for _, n := range []*models.Node{a, b, c} {
		require.NoError(t, s.InsertNode(ctx, n))
	}

	all, err := s.ListNodes(ctx, "cluster-1", models.NodeFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	yes := true
	masters, err := s.ListNodes(ctx, "cluster-1", models.NodeFilter{Master: &yes})
	require.NoError(t, err)
	require.Len(t, masters, 1)
	assert.Equal(t, "node-a", masters[0].ID)

	byon, err := s.ListNodes(ctx, "cluster-1", models.NodeFilter{Byon: &yes})
	require.NoError(t, err)
	require.Len(t, byon, 1)
	assert.Equal(t, "node-c", byon[0].ID)

	inAms, err := s.ListNodes(ctx, "cluster-1", models.NodeFilter{Region: "ams3"})
	require.NoError(t, err)
	require.Len(t, inAms, 1)
	assert.Equal(t, "node-b", inAms[0].ID)

	prod, err := s.ListNodes(ctx, "cluster-1", models.NodeFilter{Labels: map[string]string{"env": "prod"}})
	require.NoError(t, err)
	assert.Len(t, prod, 2)
}

func TestFindMasterAndNameTaken(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedCluster(t, s, "cluster-1")

	id, err := s.FindMaster(ctx, "cluster-1", "")
	require.NoError(t, err)
	assert.Empty(t, id)

	a := newNode("node-a", "cluster-1", "alpha")
	a.Master = true
	a.PublicIP = strPtr("10.0.0.1")
	require.NoError(t, s.InsertNode(ctx, a))

	id, err = s.FindMaster(ctx, "cluster-1", "")
	require.NoError(t, err)
	assert.Equal(t, "node-a", id)

	id, err = s.FindMaster(ctx, "cluster-1", "node-a")
	require.NoError(t, err)
	assert.Empty(t, id, "the excluded node must not count as another master")

	taken, err := s.NameTaken(ctx, "cluster-1", "alpha", "")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = s.NameTaken(ctx, "cluster-1", "alpha", "node-a")
	require.NoError(t, err)
	assert.False(t, taken)

	taken, err = s.PublicIPTaken(ctx, "10.0.0.1", "other")
	require.NoError(t, err)
	assert.True(t, taken)
}

func TestClusterLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	c := seedCluster(t, s, "cluster-1")
	require.NoError(t, s.InsertNode(ctx, newNode("node-a", "cluster-1", "alpha")))

	ping := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	before, after, err := s.RecomputeAggregate(ctx, "cluster-1", ping, func(c *models.Cluster, nodes []NodeStatus) {
		c.NodesCount = len(nodes)
		c.LastState = models.StateRunning
		c.LastPing = &ping
	})
	require.NoError(t, err)
	assert.Equal(t, 0, before.NodesCount)
	assert.Equal(t, 1, after.NodesCount)
	assert.Equal(t, ping, after.UpdatedAt)

	c.Name = "renamed"
	c.Strategy = models.StrategyBinpack
	c.Cert = &models.ClusterCert{CA: "ca", Cert: "cert", Key: "key"}
	require.NoError(t, s.UpdateCluster(ctx, c))

	got, err := s.GetCluster(ctx, "cluster-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, models.StrategyBinpack, got.Strategy)
	assert.Equal(t, 1, got.NodesCount)
	assert.Equal(t, models.StateRunning, got.LastState)
	require.NotNil(t, got.Cert)
	assert.Equal(t, "ca", got.Cert.CA)

	listed, err := s.ListClusters(ctx, "tenant-1", "renamed", "")
	require.NoError(t, err)
	assert.Len(t, listed, 1)
	listed, err = s.ListClusters(ctx, "tenant-2", "", "")
	require.NoError(t, err)
	assert.Empty(t, listed)

	require.NoError(t, s.DeleteCluster(ctx, "cluster-1"))
	_, err = s.GetCluster(ctx, "cluster-1")
	assert.ErrorIs(t, err, models.ErrClusterNotFound)
	_, err = s.GetNode(ctx, "node-a")
	assert.ErrorIs(t, err, models.ErrNodeNotFound, "nodes must be removed by cascade")

	_, _, err = s.RecomputeAggregate(ctx, "cluster-1", ping, func(*models.Cluster, []NodeStatus) {
		t.Fatal("aggregate applied to a deleted cluster")
	})
	assert.ErrorIs(t, err, models.ErrClusterNotFound)
}

func TestRecomputeAggregateSeesOnlyItsCluster(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedCluster(t, s, "cluster-1")
	seedCluster(t, s, "cluster-2")
	require.NoError(t, s.InsertNode(ctx, newNode("a", "cluster-1", "a")))
	require.NoError(t, s.InsertNode(ctx, newNode("b", "cluster-1", "b")))
	require.NoError(t, s.InsertNode(ctx, newNode("c", "cluster-2", "c")))

	var seen []NodeStatus
	_, after, err := s.RecomputeAggregate(ctx, "cluster-1", time.Now(), func(c *models.Cluster, nodes []NodeStatus) {
		seen = nodes
		c.NodesCount = len(nodes)
	})
	require.NoError(t, err)
	assert.Len(t, seen, 2)
	assert.Equal(t, 2, after.NodesCount)

	got, err := s.GetCluster(ctx, "cluster-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.NodesCount)
}

func TestNodeStatuses(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedCluster(t, s, "cluster-1")
	seedCluster(t, s, "cluster-2")
	require.NoError(t, s.InsertNode(ctx, newNode("a", "cluster-1", "a")))
	require.NoError(t, s.InsertNode(ctx, newNode("b", "cluster-2", "b")))

	one, err := s.NodeStatuses(ctx, "cluster-1")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, models.StateDeploying, one[0].LastState)

	all, err := s.NodeStatuses(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: DialectPostgres}
	assert.Equal(t, "SELECT * FROM nodes WHERE id = $1 AND name = $2", pg.rebind("SELECT * FROM nodes WHERE id = ? AND name = ?"))

	lite := &Store{dialect: DialectSQLite}
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestMapConstraintPassesThroughOtherErrors(t *testing.T) {
	err := errors.New("disk I/O error")
	assert.Equal(t, err, mapConstraint(err, "cluster-1"))
}
