package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"swarmcp.io/models"
	"swarmcp.io/server/internal/api/middleware"
	"swarmcp.io/server/internal/service"
)

// AgentHandler serves the node agent. The node comes from its token.
type AgentHandler struct {
	nodes *service.NodeService
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(nodes *service.NodeService) *AgentHandler {
	return &AgentHandler{nodes: nodes}
}

// Register handles POST /api/v1/agent/register.
// The node becomes running and the reported fields are merged into it.
func (h *AgentHandler) Register(c *gin.Context) {
	var info models.AgentInfo
	if !bindJSON(c, &info) {
		return
	}

	node, err := h.nodes.Register(c.Request.Context(), middleware.Node(c).ID, &info)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, node)
}

// Ping handles POST /api/v1/agent/ping.
func (h *AgentHandler) Ping(c *gin.Context) {
	if err := h.nodes.Ping(c.Request.Context(), middleware.Node(c).ID); err != nil {
		mapErrorToResponse(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Infos handles GET /api/v1/agent/infos.
func (h *AgentHandler) Infos(c *gin.Context) {
	infos, err := h.nodes.AgentInfos(c.Request.Context(), middleware.Node(c).ID)
	if err != nil {
		mapErrorToResponse(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, infos)
}
