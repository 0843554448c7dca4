package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"swarmcp.io/cmd/swarmcp-agent/agent"
)

var runCmd = &cobra.Command{
	Use:   "run [node-token]",
	Short: "Register this node and keep it reachable",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	logger, err := newLogger(devMode, logLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	client, err := agent.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	logger.Info("SwarmCP agent starting",
		zap.Strings("servers", cfg.ServerURLs),
		zap.Duration("ping_interval", cfg.PingInterval),
	)

	if err := agent.New(cfg, client, logger).Run(cmd.Context()); err != nil {
		logger.Error("Agent error", zap.Error(err))
		return err
	}
	return nil
}
