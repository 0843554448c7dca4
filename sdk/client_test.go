package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"swarmcp.io/models"
)

const testNodeToken = "node-token-0123456789012345678901234567890123"

func newTestClient(t *testing.T, cfg ClientConfig) *Client {
	t.Helper()
	if cfg.NodeToken == "" && cfg.AdminToken == "" {
		cfg.NodeToken = testNodeToken
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = -1
	}
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 5 * time.Millisecond
	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func TestClientConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		wantErr bool
	}{
		{"node token", ClientConfig{BaseURLs: []string{"http://localhost:8080/"}, NodeToken: "x"}, false},
		{"admin token with tenant", ClientConfig{BaseURLs: []string{"https://cp"}, AdminToken: "a", TenantID: "t"}, false},
		{"no urls", ClientConfig{NodeToken: "x"}, true},
		{"empty url", ClientConfig{BaseURLs: []string{" "}, NodeToken: "x"}, true},
		{"bad scheme", ClientConfig{BaseURLs: []string{"ftp://cp"}, NodeToken: "x"}, true},
		{"no credentials", ClientConfig{BaseURLs: []string{"http://cp"}}, true},
		{"admin token without tenant", ClientConfig{BaseURLs: []string{"http://cp"}, AdminToken: "a"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 3, tt.cfg.RetryAttempts)
			assert.NotNil(t, tt.cfg.HTTPClient)
		})
	}

	cfg := ClientConfig{BaseURLs: []string{"http://localhost:8080/"}, NodeToken: "x"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:8080", cfg.BaseURLs[0])
}

func TestRegisterSendsNodeToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/agent/register", r.URL.Path)
		assert.Equal(t, testNodeToken, r.Header.Get(HeaderNodeToken))
		assert.Empty(t, r.Header.Get("Authorization"))

		var info models.AgentInfo
		require.NoError(t, json.NewDecoder(r.Body).Decode(&info))
		require.NotNil(t, info.DockerVersion)
		assert.Equal(t, "1.12", *info.DockerVersion)

		writeData(w, http.StatusOK, map[string]any{
			"id":             "node-1",
			"name":           "worker-1",
			"docker_version": *info.DockerVersion,
			"state":          "running",
		})
	}))
	defer srv.Close()

	client := newTestClient(t, ClientConfig{BaseURLs: []string{srv.URL}})
	docker := "1.12"
	node, err := client.Register(context.Background(), &models.AgentInfo{DockerVersion: &docker})
	require.NoError(t, err)
	assert.Equal(t, "node-1", node.ID)
	assert.Equal(t, "1.12", node.DockerVersion)
	assert.Equal(t, models.StateRunning, node.State)
}

func TestPingAndInfos(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/agent/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v1/agent/infos":
			writeData(w, http.StatusOK, models.AgentInfos{
				Master:   true,
				Name:     "master-1",
				Versions: models.Versions{Docker: "1.12", Swarm: "1.2"},
				Strategy: models.StrategySpread,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, ClientConfig{BaseURLs: []string{srv.URL}})
	require.NoError(t, client.Ping(context.Background()))

	infos, err := client.Infos(context.Background())
	require.NoError(t, err)
	assert.True(t, infos.Master)
	assert.Equal(t, "master-1", infos.Name)
	assert.Equal(t, "1.2", infos.Versions.Swarm)
}

func TestAdminCallsSendBearerAndTenant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer admin-secret", r.Header.Get("Authorization"))
		assert.Equal(t, "tenant-a", r.Header.Get(HeaderTenant))

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/clusters":
			writeData(w, http.StatusCreated, map[string]any{"id": "c1", "name": "prod", "state": "empty"})
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/clusters/c1/nodes":
			writeData(w, http.StatusCreated, map[string]any{"id": "n1", "cluster_id": "c1", "token": "tok"})
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/clusters/c1/nodes/n1/upgrade":
			var req models.NodeUpgradeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "1.13", req.Docker)
			writeData(w, http.StatusAccepted, map[string]any{"id": "n1", "state": "upgrading"})
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, ClientConfig{
		BaseURLs:   []string{srv.URL},
		AdminToken: "admin-secret",
		TenantID:   "tenant-a",
	})
	ctx := context.Background()

	cluster, err := client.CreateCluster(ctx, &models.ClusterCreateRequest{Name: "prod"})
	require.NoError(t, err)
	assert.Equal(t, "c1", cluster.ID)
	assert.Equal(t, models.StateEmpty, cluster.State)

	node, err := client.CreateNode(ctx, cluster.ID, &models.NodeCreateRequest{Name: "master", Master: true, Byon: true})
	require.NoError(t, err)
	assert.Equal(t, "tok", node.Token)

	upgraded, err := client.UpgradeNode(ctx, "c1", "n1", &models.NodeUpgradeRequest{Docker: "1.13", Swarm: "1.2"})
	require.NoError(t, err)
	assert.Equal(t, models.StateUpgrading, upgraded.State)

	require.NoError(t, client.DeleteNode(ctx, "c1", "n1"))
	require.NoError(t, client.DeleteCluster(ctx, "c1"))
}

func TestMissingCredentialsForAuthType(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	client := newTestClient(t, ClientConfig{BaseURLs: []string{srv.URL}})
	_, err := client.GetCluster(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrMissingAuth)
	assert.Zero(t, calls.Load())
}

func TestAPIErrorMapping(t *testing.T) {
	tests := []struct {
		status   int
		code     string
		sentinel error
	}{
		{http.StatusBadRequest, "invalid_request", ErrBadRequest},
		{http.StatusUnauthorized, "unauthorized", ErrUnauthorized},
		{http.StatusNotFound, "not_found", ErrNotFound},
		{http.StatusConflict, "already_upgraded", ErrConflict},
		{http.StatusUnprocessableEntity, "validation_failed", ErrValidation},
		{http.StatusTooManyRequests, "rate_limit_exceeded", ErrRateLimited},
		{http.StatusBadGateway, "upstream_error", ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]any{
					"error":      tt.code,
					"message":    "nope",
					"request_id": "req-1",
					"fields":     []models.FieldError{{Field: "name", Message: "is required"}},
				})
			}))
			defer srv.Close()

			client := newTestClient(t, ClientConfig{BaseURLs: []string{srv.URL}})
			err := client.Ping(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, "req-1", apiErr.RequestID)
			require.Len(t, apiErr.Fields, 1)
			assert.Equal(t, "name", apiErr.Fields[0].Field)
		})
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var info models.AgentInfo
		require.NoError(t, json.NewDecoder(r.Body).Decode(&info))
		require.NotNil(t, info.PublicIP, "body must be replayed on every attempt")

		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"id": "node-1"})
	}))
	defer srv.Close()

	client := newTestClient(t, ClientConfig{BaseURLs: []string{srv.URL}, RetryAttempts: 3})
	ip := "10.0.0.1"
	node, err := client.Register(context.Background(), &models.AgentInfo{PublicIP: &ip})
	require.NoError(t, err)
	assert.Equal(t, "node-1", node.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	client := newTestClient(t, ClientConfig{BaseURLs: []string{srv.URL}, RetryAttempts: 3})
	err := client.Ping(context.Background())
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFailoverToNextInstance(t *testing.T) {
	var downCalls atomic.Int32
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downCalls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer up.Close()

	client := newTestClient(t, ClientConfig{BaseURLs: []string{down.URL, up.URL}, RetryAttempts: 1})
	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, int32(2), downCalls.Load())
}

func TestAllInstancesFailed(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := dead.URL
	dead.Close()

	client := newTestClient(t, ClientConfig{BaseURLs: []string{url}})
	err := client.Ping(context.Background())
	assert.ErrorIs(t, err, ErrAllInstancesFailed)
}

func TestUpstreamErrorIsNotFailedOver(t *testing.T) {
	var secondCalls atomic.Int32
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondCalls.Add(1)
	}))
	defer second.Close()

	client := newTestClient(t, ClientConfig{BaseURLs: []string{first.URL, second.URL}})
	err := client.Ping(context.Background())
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Zero(t, secondCalls.Load())
}

func TestContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{
		BaseURLs:      []string{srv.URL},
		NodeToken:     testNodeToken,
		RetryAttempts: 5,
		RetryWaitMin:  time.Hour,
		RetryWaitMax:  time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = client.Ping(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackoffBounded(t *testing.T) {
	client := &Client{retryWaitMin: 10 * time.Millisecond, retryWaitMax: 40 * time.Millisecond}
	for attempt := range 8 {
		d := client.backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 40*time.Millisecond)
	}
}

func TestHealthCheckSendsNoCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health/ready", r.URL.Path)
		assert.Empty(t, r.Header.Get(HeaderNodeToken))
		writeData(w, http.StatusOK, map[string]string{"status": "ready"})
	}))
	defer srv.Close()

	client := newTestClient(t, ClientConfig{BaseURLs: []string{srv.URL}})
	assert.NoError(t, client.HealthCheck(context.Background()))
}
