// Package util holds the field validators shared by the services.
package util

import (
	"errors"
	"fmt"
	"net"
	"regexp"

	"github.com/google/uuid"
)

// MaxSubdomainLength is the maximum length of a DNS label.
const MaxSubdomainLength = 63

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// ValidateUUID checks if a string is a valid UUID.
//
// Example:
//
//	if err := util.ValidateUUID(c.Param("node_id")); err != nil {
//	    return models.ErrNodeNotFound
//	}
func ValidateUUID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid UUID format: %w", err)
	}
	return nil
}

// ValidateSubdomain checks that name can be used as a DNS label: only a-z, 0-9
// and hyphens, not starting or ending with a hyphen.
func ValidateSubdomain(name string) error {
	if name == "" {
		return errors.New("must not be empty")
	}
	if len(name) > MaxSubdomainLength {
		return fmt.Errorf("must be at most %d characters", MaxSubdomainLength)
	}
	if !subdomainPattern.MatchString(name) {
		return errors.New("must only contain a-z, 0-9 and hyphens and must not start or end with a hyphen")
	}
	return nil
}

// ValidateIP checks if a string is a valid IP address (IPv4 or IPv6).
func ValidateIP(ip string) error {
	if parsed := net.ParseIP(ip); parsed == nil {
		return errors.New("must be a valid IP address")
	}
	return nil
}

// FlatMap checks that v decoded from JSON is an object whose values are all
// scalars (string, number, boolean or null) and returns it.
// A nil v yields a nil map.
func FlatMap(v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("must be a key/value object")
	}
	for k, val := range m {
		switch val.(type) {
		case nil, string, bool, float64, int, int64:
		default:
			return nil, fmt.Errorf("value of %q must be a string, number or boolean", k)
		}
	}
	return m, nil
}
