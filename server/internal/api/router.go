// Package api assembles the SwarmCP HTTP API: the user API for clusters and
// nodes, the agent API, event streams, health probes and metrics.
package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"swarmcp.io/server/internal/api/handlers"
	"swarmcp.io/server/internal/api/middleware"
	"swarmcp.io/server/internal/metrics"
	"swarmcp.io/server/internal/service"
)

// RouterConfig holds the dependencies of the HTTP router.
type RouterConfig struct {
	Logger *zap.Logger

	Clusters *service.ClusterService
	Nodes    *service.NodeService

	// Store backs the readiness probe
	Store handlers.Pinger

	// Events serves the websocket event streams
	Events handlers.Subscriber

	// AdminToken authenticates the user API
	AdminToken string

	// AllowOrigins lists the CORS origins; empty disables CORS
	AllowOrigins []string

	// RequestsPerSecond and Burst bound requests per client IP.
	// Authenticated agents get a separate budget of the same size.
	RequestsPerSecond float64
	Burst             int

	Version string
}

// SetupRouter creates the gin engine with every route and middleware.
func SetupRouter(config *RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(config.Logger))
	if len(config.AllowOrigins) > 0 {
		router.Use(middleware.CORS(config.AllowOrigins))
	}

	healthHandler := handlers.NewHealthHandler(config.Store, config.Version)
	clusterHandler := handlers.NewClusterHandler(config.Clusters)
	nodeHandler := handlers.NewNodeHandler(config.Nodes, config.Clusters)
	agentHandler := handlers.NewAgentHandler(config.Nodes)
	eventsHandler := handlers.NewEventsHandler(config.Clusters, config.Events)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Liveness)
		health.GET("/ready", healthHandler.Readiness)
	}

	v1 := router.Group("/api/v1")

	// user API
	clusters := v1.Group("/clusters")
	clusters.Use(middleware.RateLimitByIP(config.RequestsPerSecond, config.Burst))
	clusters.Use(middleware.RequireAdminToken(config.AdminToken))
	{
		clusters.POST("", clusterHandler.Create)
		clusters.GET("", clusterHandler.List)
		clusters.GET("/:cluster_id", clusterHandler.Get)
		clusters.PATCH("/:cluster_id", clusterHandler.Update)
		clusters.DELETE("/:cluster_id", clusterHandler.Delete)
		clusters.GET("/:cluster_id/events", eventsHandler.Subscribe)

		nodes := clusters.Group("/:cluster_id/nodes")
		nodes.POST("", nodeHandler.Create)
		nodes.GET("", nodeHandler.List)
		nodes.GET("/:node_id", nodeHandler.Get)
		nodes.PATCH("/:node_id", nodeHandler.Update)
		nodes.DELETE("/:node_id", nodeHandler.Delete)
		nodes.POST("/:node_id/change", nodeHandler.Change)
		nodes.POST("/:node_id/upgrade", nodeHandler.Upgrade)
		nodes.POST("/:node_id/token", nodeHandler.RotateToken)
	}

	// agent API
	agent := v1.Group("/agent")
	agent.Use(middleware.RequireNodeToken(config.Nodes))
	agent.Use(middleware.RateLimitByNode(config.RequestsPerSecond, config.Burst))
	{
		agent.POST("/register", agentHandler.Register)
		agent.POST("/ping", agentHandler.Ping)
		agent.GET("/infos", agentHandler.Infos)
	}

	return router
}
