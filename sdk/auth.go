package sdk

import "net/http"

const (
	// HeaderNodeToken carries the agent token.
	HeaderNodeToken = "X-SwarmCP-Node-Token"

	// HeaderTenant names the tenant of a user API call.
	HeaderTenant = "X-SwarmCP-Tenant"
)

// AuthType selects the credentials attached to a request.
type AuthType int

const (
	// AuthTypeNone sends no credentials (health probes)
	AuthTypeNone AuthType = iota

	// AuthTypeNode sends the node token (agent API)
	AuthTypeNode

	// AuthTypeAdmin sends the admin token and tenant (user API)
	AuthTypeAdmin
)

func (c *Client) addAuthHeaders(req *http.Request, authType AuthType) error {
	switch authType {
	case AuthTypeNode:
		if c.nodeToken == "" {
			return ErrMissingAuth
		}
		req.Header.Set(HeaderNodeToken, c.nodeToken)
	case AuthTypeAdmin:
		if c.adminToken == "" {
			return ErrMissingAuth
		}
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
		req.Header.Set(HeaderTenant, c.tenantID)
	}
	return nil
}
