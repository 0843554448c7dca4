package sdk

import (
	"errors"
	"fmt"
	"net/http"

	"swarmcp.io/models"
)

// Sentinel errors returned by the SDK. API failures wrap one of them in an *APIError.
var (
	ErrInvalidConfig      = errors.New("invalid client configuration")
	ErrAllInstancesFailed = errors.New("all control plane instances failed")
	ErrMissingAuth        = errors.New("missing authentication credentials")

	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized: invalid credentials")
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("conflict with the current state")
	ErrValidation   = errors.New("validation failed")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrUpstream     = errors.New("provisioning or naming backend failed")
	ErrServerError  = errors.New("server error")
)

// APIError is an error answer of the control plane.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Fields     []models.FieldError
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (%d %s)", e.Message, e.StatusCode, e.Code)
}

// Unwrap returns the sentinel matching the status code.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusBadRequest:
		return ErrBadRequest
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return ErrConflict
	case e.StatusCode == http.StatusUnprocessableEntity:
		return ErrValidation
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.StatusCode == http.StatusBadGateway:
		return ErrUpstream
	case e.StatusCode >= 500:
		return ErrServerError
	}
	return nil
}
