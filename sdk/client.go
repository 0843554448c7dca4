// Package sdk is a Go client for the SwarmCP control plane.
//
// The agent API (Register, Ping, Infos) authenticates with a node token.
// The user API (clusters and nodes) authenticates with the admin token and a tenant.
package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"swarmcp.io/models"
)

// Client talks to one or more control plane instances.
// Instances are tried in order; a failing instance hands over to the next one.
type Client struct {
	baseURLs      []string
	nodeToken     string
	adminToken    string
	tenantID      string
	httpClient    *http.Client
	retryAttempts int
	retryWaitMin  time.Duration
	retryWaitMax  time.Duration
}

// NewClient creates a client from a validated configuration.
func NewClient(config ClientConfig) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		baseURLs:      config.BaseURLs,
		nodeToken:     config.NodeToken,
		adminToken:    config.AdminToken,
		tenantID:      config.TenantID,
		httpClient:    config.HTTPClient,
		retryAttempts: config.RetryAttempts,
		retryWaitMin:  config.RetryWaitMin,
		retryWaitMax:  config.RetryWaitMax,
	}, nil
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type errorBody struct {
	Error     string              `json:"error"`
	Message   string              `json:"message"`
	Fields    []models.FieldError `json:"fields"`
	RequestID string              `json:"request_id"`
}

// do sends a request and decodes the data of a successful answer into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any, authType AuthType) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var lastErr error
	for _, baseURL := range c.baseURLs {
		resp, err := c.send(ctx, method, baseURL+path, body, authType)
		if err != nil {
			if errors.Is(err, ErrMissingAuth) || ctx.Err() != nil {
				return err
			}
			lastErr = err
			continue
		}

		err = decodeResponse(resp, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 500 && apiErr.StatusCode != http.StatusBadGateway {
			lastErr = err
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %w", ErrAllInstancesFailed, lastErr)
}

func decodeResponse(resp *http.Response, out any) error {
	defer closeBody(resp)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			apiErr.Code = eb.Error
			apiErr.Message = eb.Message
			apiErr.Fields = eb.Fields
			apiErr.RequestID = eb.RequestID
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to parse response data: %w", err)
	}
	return nil
}

// Register reports the agent's view of its node. The node becomes running.
func (c *Client) Register(ctx context.Context, info *models.AgentInfo) (*models.NodeView, error) {
	var node models.NodeView
	if err := c.do(ctx, http.MethodPost, "/api/v1/agent/register", info, &node, AuthTypeNode); err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}
	return &node, nil
}

// Ping records that the agent is alive.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/v1/agent/ping", nil, nil, AuthTypeNode); err != nil {
		return fmt.Errorf("failed to ping: %w", err)
	}
	return nil
}

// Infos returns the configuration the agent applies to its node.
func (c *Client) Infos(ctx context.Context) (*models.AgentInfos, error) {
	var infos models.AgentInfos
	if err := c.do(ctx, http.MethodGet, "/api/v1/agent/infos", nil, &infos, AuthTypeNode); err != nil {
		return nil, fmt.Errorf("failed to get agent infos: %w", err)
	}
	return &infos, nil
}

// HealthCheck probes the readiness endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health/ready", nil, nil, AuthTypeNone)
}
