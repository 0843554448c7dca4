package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swarmcp.io/models"
)

var utilCmd = &cobra.Command{
	Use:   "util",
	Short: "Maintenance utilities",
}

var (
	compactAnalyze bool
	verifyToken    string
)

var compactDBCmd = &cobra.Command{
	Use:   "compact-db",
	Short: "Reclaim space and refresh planner statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		st, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		db := st.DB()
		out := cmd.OutOrStdout()

		stmts := []string{"VACUUM"}
		if compactAnalyze {
			stmts = append(stmts, "ANALYZE")
		}
		for _, stmt := range stmts {
			start := time.Now()
			if _, err := db.ExecContext(cmd.Context(), stmt); err != nil {
				return fmt.Errorf("%s failed: %w", stmt, err)
			}
			logger.Info("statement completed", zap.String("statement", stmt), zap.Duration("took", time.Since(start)))
			fmt.Fprintf(out, "✓ %s completed\n", stmt)
		}

		fmt.Fprintln(out, "\nTable statistics:")
		for _, table := range []string{"clusters", "nodes"} {
			var count int64
			if err := db.QueryRowContext(cmd.Context(), "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
				logger.Warn("failed to count table rows", zap.String("table", table), zap.Error(err))
				continue
			}
			fmt.Fprintf(out, "  %-12s %d rows\n", table+":", count)
		}
		return nil
	},
}

var verifyTokenCmd = &cobra.Command{
	Use:   "verify-token",
	Short: "Show the node an agent token authenticates",
	RunE: func(cmd *cobra.Command, args []string) error {
		if verifyToken == "" {
			return errors.New("--token is required")
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		st, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.GetNodeByToken(cmd.Context(), verifyToken)
		if errors.Is(err, models.ErrNodeNotFound) {
			return errors.New("✗ token does not match any node")
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "✓ token is valid")
		fmt.Fprintf(out, "  node:       %s (%s)\n", n.Name, n.ID)
		fmt.Fprintf(out, "  cluster:    %s\n", n.ClusterID)
		fmt.Fprintf(out, "  master:     %t\n", n.Master)
		fmt.Fprintf(out, "  byon:       %t\n", n.Byon)
		fmt.Fprintf(out, "  last state: %s\n", n.LastState)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(utilCmd)
	utilCmd.AddCommand(compactDBCmd, verifyTokenCmd)

	compactDBCmd.Flags().BoolVar(&compactAnalyze, "analyze", true, "Run ANALYZE after VACUUM")
	verifyTokenCmd.Flags().StringVar(&verifyToken, "token", "", "Agent token to verify (required)")
}
