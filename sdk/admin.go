package sdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"swarmcp.io/models"
)

// CreateCluster creates an empty cluster.
func (c *Client) CreateCluster(ctx context.Context, req *models.ClusterCreateRequest) (*models.ClusterView, error) {
	var cluster models.ClusterView
	if err := c.do(ctx, http.MethodPost, "/api/v1/clusters", req, &cluster, AuthTypeAdmin); err != nil {
		return nil, fmt.Errorf("failed to create cluster: %w", err)
	}
	return &cluster, nil
}

// GetCluster returns one cluster with its aggregate state.
func (c *Client) GetCluster(ctx context.Context, clusterID string) (*models.ClusterView, error) {
	var cluster models.ClusterView
	if err := c.do(ctx, http.MethodGet, "/api/v1/clusters/"+url.PathEscape(clusterID), nil, &cluster, AuthTypeAdmin); err != nil {
		return nil, fmt.Errorf("failed to get cluster: %w", err)
	}
	return &cluster, nil
}

// DeleteCluster destroys every node of a cluster and removes it.
func (c *Client) DeleteCluster(ctx context.Context, clusterID string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/v1/clusters/"+url.PathEscape(clusterID), nil, nil, AuthTypeAdmin); err != nil {
		return fmt.Errorf("failed to delete cluster: %w", err)
	}
	return nil
}

// CreateNode creates a node in a cluster. The answer carries the node token.
func (c *Client) CreateNode(ctx context.Context, clusterID string, req *models.NodeCreateRequest) (*models.NodeView, error) {
	var node models.NodeView
	if err := c.do(ctx, http.MethodPost, nodesPath(clusterID), req, &node, AuthTypeAdmin); err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	return &node, nil
}

// UpgradeNode moves a running node to other docker and swarm versions.
func (c *Client) UpgradeNode(ctx context.Context, clusterID, nodeID string, req *models.NodeUpgradeRequest) (*models.NodeView, error) {
	var node models.NodeView
	if err := c.do(ctx, http.MethodPost, nodesPath(clusterID)+"/"+url.PathEscape(nodeID)+"/upgrade", req, &node, AuthTypeAdmin); err != nil {
		return nil, fmt.Errorf("failed to upgrade node: %w", err)
	}
	return &node, nil
}

// DeleteNode destroys a node.
func (c *Client) DeleteNode(ctx context.Context, clusterID, nodeID string) error {
	if err := c.do(ctx, http.MethodDelete, nodesPath(clusterID)+"/"+url.PathEscape(nodeID), nil, nil, AuthTypeAdmin); err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	return nil
}

func nodesPath(clusterID string) string {
	return "/api/v1/clusters/" + url.PathEscape(clusterID) + "/nodes"
}
