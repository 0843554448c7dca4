package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"swarmcp.io/cmd/swarmcp-agent/agent"
)

// Set with -ldflags "-X swarmcp.io/cmd/swarmcp-agent/cmd.Version=..." at release.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var (
	configPath string
	devMode    bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "swarmcp-agent",
	Short: "SwarmCP node agent",
	Long: `The SwarmCP agent runs on every node of a cluster.

It registers the node with the control plane, reporting its docker and swarm
versions, resources, public IP and labels, then pings the control plane on an
interval so the node stays reachable.`,
	SilenceUsage: true,
}

// Execute runs the root command until SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", agent.DefaultConfigPath,
		"Path to agent configuration file")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false,
		"Log to the console in a human readable format instead of JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Minimum log level (debug, info, warn, error)")
}

// loadConfig loads the agent configuration. A token given as first argument
// overrides the configured one, which is how the install command passes it.
func loadConfig(args []string) (*agent.Config, error) {
	cfg, err := agent.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		cfg.NodeToken = args[0]
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the agent logger. Every line carries the agent version so
// mixed fleets can be told apart in the control plane logs.
func newLogger(dev bool, level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = lvl

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("component", "agent"), zap.String("version", Version)), nil
}

func versionString() string {
	return fmt.Sprintf("SwarmCP agent %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}
