// Package config loads the swarmcp-server configuration.
//
// Sources are applied in order, later ones winning:
// built-in defaults, the YAML file, a .env file, SWARMCP_* environment
// variables, and finally command-line flags (applied by the caller).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"swarmcp.io/models"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SWARMCP_"

// MinTokenSecretLength is the minimum HMAC secret length for agent tokens.
const MinTokenSecretLength = 32

// Config holds the server configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	Log   LogConfig   `yaml:"log"`
	Store StoreConfig `yaml:"store"`

	// AdminToken authenticates the user API
	AdminToken string `yaml:"admin_token"`

	// TokenSecret keys the agent token generator
	TokenSecret string `yaml:"token_secret"`

	Nodes   NodesConfig   `yaml:"nodes"`
	Monitor MonitorConfig `yaml:"monitor"`
	Nomad   NomadConfig   `yaml:"nomad"`
	Consul  ConsulConfig  `yaml:"consul"`

	CORSOrigins []string        `yaml:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig selects the database.
type StoreConfig struct {
	// Driver is "sqlite" or "pgx"
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// NodesConfig holds the settings nodes derive values from.
type NodesConfig struct {
	Domain        string        `yaml:"domain"`
	AgentCmd      string        `yaml:"agent_cmd"`
	DockerVersion string        `yaml:"docker_version"`
	SwarmVersion  string        `yaml:"swarm_version"`
	PingTimeout   time.Duration `yaml:"ping_timeout"`
}

// Versions returns the default versions new nodes are deployed with.
func (n NodesConfig) Versions() models.Versions {
	return models.Versions{Docker: n.DockerVersion, Swarm: n.SwarmVersion}
}

// MonitorConfig configures the liveness monitor.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// NomadConfig configures the provisioning backend. An empty address selects
// the in-memory provisioner.
type NomadConfig struct {
	Address     string   `yaml:"address"`
	Token       string   `yaml:"token"`
	Region      string   `yaml:"region"`
	Datacenters []string `yaml:"datacenters"`
	Image       string   `yaml:"image"`
}

// ConsulConfig configures the naming service. An empty address selects the
// in-memory naming service.
type ConsulConfig struct {
	Address    string `yaml:"address"`
	Token      string `yaml:"token"`
	Datacenter string `yaml:"datacenter"`
}

// RateLimitConfig configures the per-client request limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Store: StoreConfig{
			Driver:       "sqlite",
			DSN:          "file:swarmcp.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
			MaxOpenConns: 25,
		},
		Nodes: NodesConfig{
			Domain:        "nodes.swarmcp.local",
			AgentCmd:      "curl -sSL https://get.swarmcp.io/agent | sh -s",
			DockerVersion: "1.12",
			SwarmVersion:  "1.2",
			PingTimeout:   models.DefaultPingTimeout,
		},
		Monitor: MonitorConfig{
			Interval: 30 * time.Second,
		},
		Nomad: NomadConfig{
			Region:      "global",
			Datacenters: []string{"dc1"},
			Image:       "swarmcp/machine-provisioner:latest",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty), an optional .env file and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv exports the variables of a .env file without overriding the
// ones already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from SWARMCP_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = splitList(v)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("LISTEN_ADDR", &c.ListenAddr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_DSN", &c.Store.DSN)
	integer("STORE_MAX_OPEN_CONNS", &c.Store.MaxOpenConns)
	str("ADMIN_TOKEN", &c.AdminToken)
	str("TOKEN_SECRET", &c.TokenSecret)
	str("NODE_DOMAIN", &c.Nodes.Domain)
	str("AGENT_CMD", &c.Nodes.AgentCmd)
	str("DOCKER_VERSION", &c.Nodes.DockerVersion)
	str("SWARM_VERSION", &c.Nodes.SwarmVersion)
	duration("PING_TIMEOUT", &c.Nodes.PingTimeout)
	duration("MONITOR_INTERVAL", &c.Monitor.Interval)
	str("NOMAD_ADDR", &c.Nomad.Address)
	str("NOMAD_TOKEN", &c.Nomad.Token)
	str("NOMAD_REGION", &c.Nomad.Region)
	list("NOMAD_DATACENTERS", &c.Nomad.Datacenters)
	str("NOMAD_IMAGE", &c.Nomad.Image)
	str("CONSUL_ADDR", &c.Consul.Address)
	str("CONSUL_TOKEN", &c.Consul.Token)
	str("CONSUL_DATACENTER", &c.Consul.Datacenter)
	list("CORS_ORIGINS", &c.CORSOrigins)
	float("RATE_LIMIT_RPS", &c.RateLimit.RequestsPerSecond)
	integer("RATE_LIMIT_BURST", &c.RateLimit.Burst)

	return errors.Join(errs...)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log format must be json or console, got %q", c.Log.Format))
	}
	switch c.Store.Driver {
	case "sqlite", "pgx", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported store driver %q", c.Store.Driver))
	}
	if c.Store.DSN == "" {
		errs = append(errs, errors.New("store dsn is required"))
	}
	if c.AdminToken == "" {
		errs = append(errs, fmt.Errorf("admin token is required (set %sADMIN_TOKEN)", EnvPrefix))
	}
	if len(c.TokenSecret) < MinTokenSecretLength {
		errs = append(errs, fmt.Errorf("token secret must be at least %d bytes (set %sTOKEN_SECRET)", MinTokenSecretLength, EnvPrefix))
	}
	if c.Nodes.Domain == "" {
		errs = append(errs, errors.New("node domain is required"))
	}
	if c.Nodes.DockerVersion == "" || c.Nodes.SwarmVersion == "" {
		errs = append(errs, errors.New("default docker and swarm versions are required"))
	}
	if c.Nodes.PingTimeout <= 0 {
		errs = append(errs, errors.New("ping timeout must be positive"))
	}
	if c.Monitor.Interval <= 0 {
		errs = append(errs, errors.New("monitor interval must be positive"))
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate limit must be positive"))
	}

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
