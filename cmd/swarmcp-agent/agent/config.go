package agent

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"swarmcp.io/models"
	"swarmcp.io/pkg/token"
)

const (
	// DefaultConfigPath is where the install script writes the agent configuration.
	DefaultConfigPath = "/etc/swarmcp/agent.yaml"

	// DefaultPingInterval keeps the node well inside the server's ping timeout.
	DefaultPingInterval = 30 * time.Second
)

// Config is the agent configuration.
type Config struct {
	// ServerURLs lists control plane base URLs, tried in order
	ServerURLs []string `yaml:"server_urls"`

	// NodeToken is the bearer credential of this node
	NodeToken string `yaml:"node_token"`

	// PingInterval is the time between two pings
	PingInterval time.Duration `yaml:"ping_interval"`

	// RetryAttempts is the number of retries per request (0 uses the SDK default)
	RetryAttempts int `yaml:"retry_attempts"`

	// Reported on register. Empty values are not reported.
	DockerVersion string         `yaml:"docker_version"`
	SwarmVersion  string         `yaml:"swarm_version"`
	PublicIP      string         `yaml:"public_ip"`
	CPU           int            `yaml:"cpu"`
	Memory        int            `yaml:"memory"`
	Disk          float64        `yaml:"disk"`
	Labels        map[string]any `yaml:"labels"`
}

// LoadConfig reads the YAML file at path and applies SWARMCP_SERVER_URLS and
// SWARMCP_NODE_TOKEN from the environment. A missing file is not an error
// when the environment supplies the rest.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if v, ok := os.LookupEnv("SWARMCP_SERVER_URLS"); ok {
		cfg.ServerURLs = splitList(v)
	}
	if v, ok := os.LookupEnv("SWARMCP_NODE_TOKEN"); ok {
		cfg.NodeToken = v
	}

	cfg.setDefaults()
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.CPU == 0 {
		c.CPU = runtime.NumCPU()
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	if len(c.ServerURLs) == 0 {
		errs = append(errs, errors.New("server_urls cannot be empty"))
	}
	for i, raw := range c.ServerURLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("server_urls[%d] is not an http(s) URL: %q", i, raw))
		}
	}
	if err := token.ValidateLength(c.NodeToken); err != nil {
		errs = append(errs, fmt.Errorf("node_token: %w", err))
	}
	if c.PingInterval <= 0 {
		errs = append(errs, errors.New("ping_interval must be positive"))
	}
	if c.CPU < 0 {
		errs = append(errs, errors.New("cpu must not be negative"))
	}
	if c.Memory != 0 && c.Memory < 128 {
		errs = append(errs, errors.New("memory must be at least 128 MB"))
	}
	if c.Disk != 0 && c.Disk < 1 {
		errs = append(errs, errors.New("disk must be at least 1 GB"))
	}
	for k, v := range c.Labels {
		switch v.(type) {
		case map[string]any, []any:
			errs = append(errs, fmt.Errorf("label %q must be a scalar", k))
		}
	}

	return errors.Join(errs...)
}

// AgentInfo returns what the agent reports on register.
func (c *Config) AgentInfo() *models.AgentInfo {
	info := &models.AgentInfo{}
	if c.DockerVersion != "" {
		info.DockerVersion = &c.DockerVersion
	}
	if c.SwarmVersion != "" {
		info.SwarmVersion = &c.SwarmVersion
	}
	if c.PublicIP != "" {
		info.PublicIP = &c.PublicIP
	}
	if c.CPU > 0 {
		info.CPU = &c.CPU
	}
	if c.Memory > 0 {
		info.Memory = &c.Memory
	}
	if c.Disk > 0 {
		info.Disk = &c.Disk
	}
	if len(c.Labels) > 0 {
		info.Labels = c.Labels
	}
	return info
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
