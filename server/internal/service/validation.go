package service

import (
	"strings"

	"swarmcp.io/models"
	"swarmcp.io/server/internal/util"
)

const (
	maxClusterNameLength = 255
	minMemoryMB          = 128
)

// validateNode checks the invariants of a node record about to be persisted.
func validateNode(n *models.Node) error {
	verr := &models.ValidationError{}
	checkNode(n, verr)
	return verr.Err()
}

func checkNode(n *models.Node, verr *models.ValidationError) {
	if err := util.ValidateSubdomain(n.Name); err != nil {
		verr.Add("name", err.Error())
	}

	if n.Byon {
		if n.Region != nil {
			verr.Add("region", "must not be set for byon nodes")
		}
		if n.NodeSize != nil {
			verr.Add("node_size", "must not be set for byon nodes")
		}
	} else {
		if n.Region == nil || strings.TrimSpace(*n.Region) == "" {
			verr.Add("region", "is required unless byon is set")
		}
		if n.NodeSize == nil || strings.TrimSpace(*n.NodeSize) == "" {
			verr.Add("node_size", "is required unless byon is set")
		}
	}

	if n.PublicIP != nil {
		if err := util.ValidateIP(*n.PublicIP); err != nil {
			verr.Add("public_ip", err.Error())
		}
	}
	if n.CPU != nil && *n.CPU < 1 {
		verr.Add("cpu", "must be at least 1")
	}
	if n.Memory != nil && *n.Memory < minMemoryMB {
		verr.Add("memory", "must be at least 128")
	}
	if n.Disk != nil && *n.Disk < 1.0 {
		verr.Add("disk", "must be at least 1.0")
	}
	if n.Labels != nil {
		if _, err := util.FlatMap(map[string]any(n.Labels)); err != nil {
			verr.Add("labels", err.Error())
		}
	}
}

// decodeLabels turns a decoded JSON value into labels, reporting problems on verr.
func decodeLabels(v any, verr *models.ValidationError) models.Labels {
	m, err := util.FlatMap(v)
	if err != nil {
		verr.Add("labels", err.Error())
		return nil
	}
	if m == nil {
		return nil
	}
	return models.Labels(m)
}

func validateClusterName(name string, verr *models.ValidationError) {
	switch {
	case strings.TrimSpace(name) == "":
		verr.Add("name", "is required")
	case len(name) > maxClusterNameLength:
		verr.Add("name", "must be at most 255 characters")
	}
}

func validateStrategy(s models.Strategy, verr *models.ValidationError) {
	if !s.Valid() {
		verr.Add("strategy", "must be one of spread, binpack, random")
	}
}
