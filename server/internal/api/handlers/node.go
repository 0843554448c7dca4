package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"swarmcp.io/models"
	"swarmcp.io/server/internal/api/middleware"
	"swarmcp.io/server/internal/service"
)

// NodeHandler handles the node endpoints of the user API.
// Every route is nested under a cluster of the calling tenant.
type NodeHandler struct {
	nodes    *service.NodeService
	clusters *service.ClusterService
}

// NewNodeHandler creates a new NodeHandler.
func NewNodeHandler(nodes *service.NodeService, clusters *service.ClusterService) *NodeHandler {
	return &NodeHandler{nodes: nodes, clusters: clusters}
}

// clusterID resolves the :cluster_id parameter, answering 404 when the
// cluster does not belong to the tenant.
func (h *NodeHandler) clusterID(c *gin.Context) (string, bool) {
	cluster, err := h.clusters.Get(c.Request.Context(), middleware.TenantID(c), c.Param("cluster_id"))
	if err != nil {
		mapErrorToResponse(c, err)
		return "", false
	}
	return cluster.ID, true
}

// Create handles POST /api/v1/clusters/:cluster_id/nodes.
func (h *NodeHandler) Create(c *gin.Context) {
	clusterID, ok := h.clusterID(c)
	if !ok {
		return
	}
	var req models.NodeCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	node, err := h.nodes.Create(c.Request.Context(), clusterID, &req)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, node)
}

// List handles GET /api/v1/clusters/:cluster_id/nodes.
// Query parameters: byon, master, name, region, node_size and repeated labels=key=value.
func (h *NodeHandler) List(c *gin.Context) {
	clusterID, ok := h.clusterID(c)
	if !ok {
		return
	}
	filter, err := nodeFilter(c)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}

	resp, err := h.nodes.List(c.Request.Context(), clusterID, filter)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, resp)
}

// Get handles GET /api/v1/clusters/:cluster_id/nodes/:node_id.
func (h *NodeHandler) Get(c *gin.Context) {
	clusterID, ok := h.clusterID(c)
	if !ok {
		return
	}
	node, err := h.nodes.Get(c.Request.Context(), clusterID, c.Param("node_id"))
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, node)
}

// Update handles PATCH /api/v1/clusters/:cluster_id/nodes/:node_id.
func (h *NodeHandler) Update(c *gin.Context) {
	clusterID, ok := h.clusterID(c)
	if !ok {
		return
	}
	var req models.NodeUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	node, err := h.nodes.Update(c.Request.Context(), clusterID, c.Param("node_id"), &req)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, node)
}

// Change handles POST /api/v1/clusters/:cluster_id/nodes/:node_id/change.
// The node must be running.
func (h *NodeHandler) Change(c *gin.Context) {
	clusterID, ok := h.clusterID(c)
	if !ok {
		return
	}
	var req models.NodeChangeRequest
	if !bindJSON(c, &req) {
		return
	}

	node, err := h.nodes.Change(c.Request.Context(), clusterID, c.Param("node_id"), &req)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}
	respondSuccess(c, http.StatusAccepted, node)
}

// Upgrade handles POST /api/v1/clusters/:cluster_id/nodes/:node_id/upgrade.
// The node must be running.
func (h *NodeHandler) Upgrade(c *gin.Context) {
	clusterID, ok := h.clusterID(c)
	if !ok {
		return
	}
	var req models.NodeUpgradeRequest
	if !bindJSON(c, &req) {
		return
	}

	node, err := h.nodes.Upgrade(c.Request.Context(), clusterID, c.Param("node_id"), &req)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}
	respondSuccess(c, http.StatusAccepted, node)
}

// RotateToken handles POST /api/v1/clusters/:cluster_id/nodes/:node_id/token.
func (h *NodeHandler) RotateToken(c *gin.Context) {
	clusterID, ok := h.clusterID(c)
	if !ok {
		return
	}
	resp, err := h.nodes.RotateToken(c.Request.Context(), clusterID, c.Param("node_id"))
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, resp)
}

// Delete handles DELETE /api/v1/clusters/:cluster_id/nodes/:node_id.
func (h *NodeHandler) Delete(c *gin.Context) {
	clusterID, ok := h.clusterID(c)
	if !ok {
		return
	}
	if err := h.nodes.Destroy(c.Request.Context(), clusterID, c.Param("node_id")); err != nil {
		mapErrorToResponse(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func nodeFilter(c *gin.Context) (models.NodeFilter, error) {
	filter := models.NodeFilter{
		Name:     c.Query("name"),
		Region:   c.Query("region"),
		NodeSize: c.Query("node_size"),
	}

	var err error
	if filter.Byon, err = queryBool(c, "byon"); err != nil {
		return filter, err
	}
	if filter.Master, err = queryBool(c, "master"); err != nil {
		return filter, err
	}

	for _, pair := range c.QueryArray("labels") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return filter, fmt.Errorf("%w: labels must be key=value", models.ErrInvalidRequest)
		}
		if filter.Labels == nil {
			filter.Labels = make(map[string]string)
		}
		filter.Labels[key] = value
	}
	return filter, nil
}

func queryBool(c *gin.Context, key string) (*bool, error) {
	raw, ok := c.GetQuery(key)
	if !ok {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a boolean", models.ErrInvalidRequest, key)
	}
	return &v, nil
}
