package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"swarmcp.io/models"
	"swarmcp.io/server/internal/naming"
	"swarmcp.io/server/internal/provision"
	"swarmcp.io/server/internal/store"
)

const (
	testTenant   = "tenant-1"
	testDomain   = "nodes.swarmcp.test"
	testAgentCmd = "curl -sSL https://get.swarmcp.test | sh -s"
)

var testVersions = models.Versions{Docker: "1.12", Swarm: "1.2"}

// recorder keeps the ordered list of collaborator calls shared by the fakes,
// so tests can assert cross-collaborator ordering.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) count(call string) int {
	n := 0
	for _, c := range r.list() {
		if c == call {
			n++
		}
	}
	return n
}

type fakeProvisioner struct {
	rec  *recorder
	errs map[string]error

	mu       sync.Mutex
	specs    []provision.MachineSpec
	changes  []models.NodeChanges
	versions []models.Versions
}

func (p *fakeProvisioner) fail(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errs[op]
}

func (p *fakeProvisioner) Create(_ context.Context, spec provision.MachineSpec) (string, error) {
	p.rec.add("provision.create")
	if err := p.fail("create"); err != nil {
		return "", err
	}
	p.mu.Lock()
	p.specs = append(p.specs, spec)
	p.mu.Unlock()
	return "machine-" + spec.NodeID, nil
}

func (p *fakeProvisioner) Destroy(_ context.Context, handle string) error {
	p.rec.add("provision.destroy")
	return p.fail("destroy")
}

func (p *fakeProvisioner) Update(_ context.Context, _ string, changes models.NodeChanges) error {
	p.rec.add("provision.update")
	if err := p.fail("update"); err != nil {
		return err
	}
	p.mu.Lock()
	p.changes = append(p.changes, changes)
	p.mu.Unlock()
	return nil
}

func (p *fakeProvisioner) Upgrade(_ context.Context, _ string, versions models.Versions) error {
	p.rec.add("provision.upgrade")
	if err := p.fail("upgrade"); err != nil {
		return err
	}
	p.mu.Lock()
	p.versions = append(p.versions, versions)
	p.mu.Unlock()
	return nil
}

type fakeNaming struct {
	rec  *recorder
	errs map[string]error

	mu           sync.Mutex
	records      map[string]string
	unregistered []string
}

func (n *fakeNaming) Register(_ context.Context, r naming.Record) error {
	n.rec.add("naming.register")
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.errs["register"]; err != nil {
		return err
	}
	n.records[r.FQDN] = r.Address
	return nil
}

func (n *fakeNaming) Unregister(_ context.Context, fqdn string) error {
	n.rec.add("naming.unregister")
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.errs["unregister"]; err != nil {
		return err
	}
	n.unregistered = append(n.unregistered, fqdn)
	delete(n.records, fqdn)
	return nil
}

func (n *fakeNaming) address(fqdn string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	addr, ok := n.records[fqdn]
	return addr, ok
}

type fakeTokens struct {
	mu  sync.Mutex
	seq int
	err error

	// next is handed out before any fresh token
	next []string
}

func (f *fakeTokens) Generate(nodeID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if len(f.next) > 0 {
		tok := f.next[0]
		f.next = f.next[1:]
		return tok, nil
	}
	f.seq++
	return fmt.Sprintf("tok-%d-%s", f.seq, nodeID), nil
}

// recordingNotifier captures deltas before forwarding them to the cluster service.
type recordingNotifier struct {
	rec    *recorder
	next   ClusterNotifier
	err    error
	mu     sync.Mutex
	deltas []models.ClusterDelta
}

func (r *recordingNotifier) Notify(ctx context.Context, clusterID string, delta models.ClusterDelta) error {
	r.rec.add("notify")
	r.mu.Lock()
	r.deltas = append(r.deltas, delta)
	r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	return r.next.Notify(ctx, clusterID, delta)
}

func (r *recordingNotifier) last() models.ClusterDelta {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.deltas) == 0 {
		return models.ClusterDelta{}
	}
	return r.deltas[len(r.deltas)-1]
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas = nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ClusterEvent
}

func (p *recordingPublisher) Publish(ev models.ClusterEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) ofType(eventType string) []models.ClusterEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.ClusterEvent
	for _, ev := range p.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// clock is a settable time source shared by both services.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	store       *store.Store
	nodes       *NodeService
	clusters    *ClusterService
	rec         *recorder
	provisioner *fakeProvisioner
	naming      *fakeNaming
	tokens      *fakeTokens
	notifier    *recordingNotifier
	events      *recordingPublisher
	clock       *clock
	logs        *observer.ObservedLogs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st := store.New(db, store.DialectSQLite, zap.NewNop())
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	rec := &recorder{}
	env := &testEnv{
		store:       st,
		rec:         rec,
		provisioner: &fakeProvisioner{rec: rec, errs: map[string]error{}},
		naming:      &fakeNaming{rec: rec, errs: map[string]error{}, records: map[string]string{}},
		tokens:      &fakeTokens{},
		events:      &recordingPublisher{},
		clock:       &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		logs:        logs,
	}

	env.clusters = NewClusterService(st, logger, 5*time.Minute)
	env.clusters.now = env.clock.now
	env.clusters.SetEventPublisher(env.events)

	env.notifier = &recordingNotifier{rec: rec, next: env.clusters}
	env.nodes = NewNodeService(st, env.provisioner, env.naming, env.tokens, env.notifier, logger, NodeOptions{
		NodeDomain:  testDomain,
		AgentCmd:    testAgentCmd,
		PingTimeout: 5 * time.Minute,
		Versions:    testVersions,
	})
	env.nodes.now = env.clock.now
	env.nodes.SetEventPublisher(env.events)
	env.clusters.SetNodeDestroyer(env.nodes)

	return env
}

func (e *testEnv) createCluster(t *testing.T) *models.ClusterView {
	t.Helper()
	c, err := e.clusters.Create(context.Background(), testTenant, &models.ClusterCreateRequest{Name: "grounds"})
	if err != nil {
		t.Fatalf("create cluster: %v", err)
	}
	return c
}

func (e *testEnv) createNode(t *testing.T, clusterID string, req *models.NodeCreateRequest) *models.NodeView {
	t.Helper()
	n, err := e.nodes.Create(context.Background(), clusterID, req)
	if err != nil {
		t.Fatalf("create node %q: %v", req.Name, err)
	}
	return n
}

// runningNode creates a provisioned node and registers its agent.
func (e *testEnv) runningNode(t *testing.T, clusterID, name string, master bool) *models.NodeView {
	t.Helper()
	n := e.createNode(t, clusterID, provisionedReq(name, master))
	info := &models.AgentInfo{DockerVersion: strPtr(testVersions.Docker), SwarmVersion: strPtr(testVersions.Swarm)}
	view, err := e.nodes.Register(context.Background(), n.ID, info)
	if err != nil {
		t.Fatalf("register node %q: %v", name, err)
	}
	return view
}

func (e *testEnv) cluster(t *testing.T, id string) *models.ClusterView {
	t.Helper()
	c, err := e.clusters.Get(context.Background(), testTenant, id)
	if err != nil {
		t.Fatalf("get cluster: %v", err)
	}
	return c
}

func provisionedReq(name string, master bool) *models.NodeCreateRequest {
	return &models.NodeCreateRequest{
		Name:     name,
		Master:   master,
		Region:   strPtr("nyc1"),
		NodeSize: strPtr("s-1vcpu-1gb"),
	}
}

func byonReq(name string) *models.NodeCreateRequest {
	return &models.NodeCreateRequest{Name: name, Byon: true}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
func intPtr(i int) *int       { return &i }

func asValidation(t *testing.T, err error) *models.ValidationError {
	t.Helper()
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *models.ValidationError, got %T: %v", err, err)
	}
	return verr
}

func hasField(verr *models.ValidationError, field string) bool {
	for _, f := range verr.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}
