package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"swarmcp.io/models"
)

func TestMapErrorToResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)

	naming := &models.CollaboratorError{Collaborator: "naming", Op: "unregister", Err: errors.New("dns down")}

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"validation", &models.ValidationError{Fields: []models.FieldError{{Field: "name", Message: "required"}}}, http.StatusUnprocessableEntity, "validation_failed"},
		{"state", &models.StateError{Op: "change", State: models.StateDeploying}, http.StatusConflict, "invalid_state"},
		{"already upgraded", &models.AlreadyUpgradedError{}, http.StatusConflict, "already_upgraded"},
		{"second master", &models.MasterUniquenessError{ClusterID: "c1"}, http.StatusConflict, "master_exists"},
		{"duplicate name", fmt.Errorf("insert: %w", models.ErrDuplicateName), http.StatusConflict, "conflict"},
		{"collaborator", naming, http.StatusBadGateway, "upstream_error"},
		{"collaborator joined with notify failure", errors.Join(naming, errors.New("notify failed")), http.StatusBadGateway, "upstream_error"},
		{"node not found", models.ErrNodeNotFound, http.StatusNotFound, "not_found"},
		{"invalid token", models.ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
		{"token collision", models.ErrTokenCollision, http.StatusServiceUnavailable, "service_unavailable"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			mapErrorToResponse(c, tt.err)

			assert.Equal(t, tt.wantCode, w.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantErr, body.Error)
		})
	}
}
