// Package cmd provides the swarmcp-server commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swarmcp.io/server/internal/config"
	"swarmcp.io/server/internal/logging"
	"swarmcp.io/server/internal/store"
)

var (
	// Version information (set at build time via ldflags)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var (
	configPath string
	overrides  flagOverrides
)

// flagOverrides are the settings command-line flags may override.
type flagOverrides struct {
	listenAddr  string
	logLevel    string
	logFormat   string
	storeDriver string
	storeDSN    string
}

var rootCmd = &cobra.Command{
	Use:   "swarmcp-server",
	Short: "SwarmCP - container host cluster control plane",
	Long: `SwarmCP provisions and supervises container host clusters.

Users create clusters and nodes through the HTTP API. Nodes are either
provisioned machines or hosts brought by the user, and an agent on each
node reports its status back to the control plane.

Configuration is read from built-in defaults, the --config YAML file, a
.env file, SWARMCP_* environment variables and finally flags.`,
	SilenceUsage: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file")
	flags.StringVar(&overrides.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&overrides.logFormat, "log-format", "", "Log format (json, console)")
	flags.StringVar(&overrides.storeDriver, "db-driver", "", "Store driver (sqlite, pgx)")
	flags.StringVar(&overrides.storeDSN, "db-dsn", "", "Store data source name")
}

// loadConfig builds the configuration and applies the flags set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.ListenAddr = overrides.listenAddr
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = overrides.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = overrides.logFormat
	}
	if flags.Changed("db-driver") {
		cfg.Store.Driver = overrides.storeDriver
	}
	if flags.Changed("db-dsn") {
		cfg.Store.DSN = overrides.storeDSN
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}
	return logger, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store.Store, error) {
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, store.Options{
		MaxOpenConns: cfg.Store.MaxOpenConns,
	}, logger)
}

func versionString() string {
	return fmt.Sprintf("SwarmCP %s (commit: %s, built: %s)", Version, Commit, BuildDate)
}
