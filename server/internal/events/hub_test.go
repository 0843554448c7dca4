package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"swarmcp.io/models"
)

func startHub(t *testing.T, origins ...string) (*Hub, *httptest.Server) {
	t.Helper()

	h := New(origins, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.HandleConnect(w, r, r.URL.Query().Get("cluster"))
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, clusterID string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?cluster=" + clusterID
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitSubscribers(t *testing.T, h *Hub, clusterID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.Subscribers(clusterID) == n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPublishReachesClusterSubscribers(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "c1", nil)
	waitSubscribers(t, h, "c1", 1)

	h.Publish(models.ClusterEvent{
		Type:      models.EventClusterState,
		ClusterID: "c1",
		State:     models.StateRunning,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev models.ClusterEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, models.EventClusterState, ev.Type)
	assert.Equal(t, models.StateRunning, ev.State)
}

func TestPublishIsScopedToCluster(t *testing.T) {
	h, srv := startHub(t)
	other := dial(t, srv, "c2", nil)
	mine := dial(t, srv, "c1", nil)
	waitSubscribers(t, h, "c1", 1)
	waitSubscribers(t, h, "c2", 1)

	h.Publish(models.ClusterEvent{Type: models.EventNodeCreated, ClusterID: "c1", NodeID: "n1"})

	mine.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := mine.ReadMessage()
	require.NoError(t, err)

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err, "subscribers of other clusters must not receive the event")
}

func TestDisconnectUnsubscribes(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, "c1", nil)
	waitSubscribers(t, h, "c1", 1)

	conn.Close()
	waitSubscribers(t, h, "c1", 0)
}

func TestCheckOrigin(t *testing.T) {
	h := New([]string{"https://console.swarmcp.test"}, zap.NewNop())

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://console.swarmcp.test", true},
		{"http://localhost:3000", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, h.upgrader.CheckOrigin(r), tt.origin)
	}
}

func TestPublishWithoutRunnerDoesNotBlock(t *testing.T) {
	h := New(nil, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer+10; i++ {
			h.Publish(models.ClusterEvent{ClusterID: "c1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}
