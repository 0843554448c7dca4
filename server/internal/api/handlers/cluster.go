package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"swarmcp.io/models"
	"swarmcp.io/server/internal/api/middleware"
	"swarmcp.io/server/internal/service"
)

// ClusterHandler handles the cluster endpoints of the user API.
type ClusterHandler struct {
	clusters *service.ClusterService
}

// NewClusterHandler creates a new ClusterHandler.
func NewClusterHandler(clusters *service.ClusterService) *ClusterHandler {
	return &ClusterHandler{clusters: clusters}
}

// Create handles POST /api/v1/clusters.
func (h *ClusterHandler) Create(c *gin.Context) {
	var req models.ClusterCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	cluster, err := h.clusters.Create(c.Request.Context(), middleware.TenantID(c), &req)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, cluster)
}

// List handles GET /api/v1/clusters.
// Query parameters: name, strategy, state, limit, offset.
func (h *ClusterHandler) List(c *gin.Context) {
	filter := models.ClusterFilter{
		Name:     c.Query("name"),
		Strategy: models.Strategy(c.Query("strategy")),
		State:    models.NodeState(c.Query("state")),
	}

	var err error
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		mapErrorToResponse(c, err)
		return
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		mapErrorToResponse(c, err)
		return
	}

	resp, err := h.clusters.List(c.Request.Context(), middleware.TenantID(c), filter)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, resp)
}

// Get handles GET /api/v1/clusters/:cluster_id.
func (h *ClusterHandler) Get(c *gin.Context) {
	cluster, err := h.clusters.Get(c.Request.Context(), middleware.TenantID(c), c.Param("cluster_id"))
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, cluster)
}

// Update handles PATCH /api/v1/clusters/:cluster_id.
func (h *ClusterHandler) Update(c *gin.Context) {
	var req models.ClusterUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	cluster, err := h.clusters.Update(c.Request.Context(), middleware.TenantID(c), c.Param("cluster_id"), &req)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, cluster)
}

// Delete handles DELETE /api/v1/clusters/:cluster_id.
// Every node is destroyed before the cluster is removed.
func (h *ClusterHandler) Delete(c *gin.Context) {
	if err := h.clusters.Delete(c.Request.Context(), middleware.TenantID(c), c.Param("cluster_id")); err != nil {
		mapErrorToResponse(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", models.ErrInvalidRequest, key)
	}
	return v, nil
}
