package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"swarmcp.io/server/internal/api/middleware"
	"swarmcp.io/server/internal/service"
)

// Subscriber upgrades a request into a websocket subscribed to one cluster.
type Subscriber interface {
	HandleConnect(w http.ResponseWriter, r *http.Request, clusterID string)
}

// EventsHandler streams cluster and node events over websockets.
type EventsHandler struct {
	clusters *service.ClusterService
	hub      Subscriber
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(clusters *service.ClusterService, hub Subscriber) *EventsHandler {
	return &EventsHandler{clusters: clusters, hub: hub}
}

// Subscribe handles GET /api/v1/clusters/:cluster_id/events.
func (h *EventsHandler) Subscribe(c *gin.Context) {
	cluster, err := h.clusters.Get(c.Request.Context(), middleware.TenantID(c), c.Param("cluster_id"))
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}
	h.hub.HandleConnect(c.Writer, c.Request, cluster.ID)
}
