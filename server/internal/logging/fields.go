// Package logging builds the zap loggers of the SwarmCP server and carries
// request-scoped loggers through contexts.
package logging

// Ownership: every node and cluster log line carries the ids it concerns.
const (
	FieldTenantID  = "tenant_id"
	FieldClusterID = "cluster_id"
	FieldNodeID    = "node_id"
	FieldFQDN      = "fqdn"
)

// Lifecycle.
const (
	// FieldOperation is the node operation (create, change, upgrade, register...).
	FieldOperation = "operation"

	// FieldState and FieldPreviousState describe a transition.
	FieldState         = "state"
	FieldPreviousState = "previous_state"

	// FieldCollaborator is provisioning or naming.
	FieldCollaborator = "collaborator"
)

// Requests.
const (
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldRemoteAddr = "remote_addr"
	FieldUserAgent  = "user_agent"

	// FieldDuration is in milliseconds.
	FieldDuration = "duration_ms"

	// FieldError carries the gin handler errors of a request.
	FieldError = "error"
)
