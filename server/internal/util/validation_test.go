package util

import (
	"strings"
	"testing"
)

func TestValidateUUID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"valid uuid", "550e8400-e29b-41d4-a716-446655440000", false},
		{"empty", "", true},
		{"garbage", "not-a-uuid", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUUID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUUID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSubdomain(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "node1", false},
		{"with hyphen", "swarm-master-01", false},
		{"single char", "a", false},
		{"empty", "", true},
		{"leading hyphen", "-node", true},
		{"trailing hyphen", "node-", true},
		{"uppercase", "Node", true},
		{"underscore", "node_1", true},
		{"dot", "node.1", true},
		{"too long", strings.Repeat("a", MaxSubdomainLength+1), true},
		{"max length", strings.Repeat("a", MaxSubdomainLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubdomain(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSubdomain(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateIP(t *testing.T) {
	tests := []struct {
		ip      string
		wantErr bool
	}{
		{"192.168.1.1", false},
		{"2001:db8::1", false},
		{"256.1.1.1", true},
		{"example.com", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			err := ValidateIP(tt.ip)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIP(%q) error = %v, wantErr %v", tt.ip, err, tt.wantErr)
			}
		})
	}
}

func TestFlatMap(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		wantErr bool
		wantLen int
	}{
		{"nil", nil, false, 0},
		{"flat object", map[string]any{"env": "prod", "ssd": true, "zone": float64(2)}, false, 3},
		{"null value", map[string]any{"env": nil}, false, 1},
		{"list", []any{"a", "b"}, true, 0},
		{"scalar", "env=prod", true, 0},
		{"nested object", map[string]any{"env": map[string]any{"a": "b"}}, true, 0},
		{"nested list", map[string]any{"env": []any{"a"}}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := FlatMap(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FlatMap() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(m) != tt.wantLen {
				t.Fatalf("FlatMap() len = %d, want %d", len(m), tt.wantLen)
			}
		})
	}
}
