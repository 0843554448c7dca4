package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swarmcp.io/pkg/token"
	"swarmcp.io/server/internal/api"
	"swarmcp.io/server/internal/config"
	"swarmcp.io/server/internal/events"
	"swarmcp.io/server/internal/metrics"
	"swarmcp.io/server/internal/monitor"
	"swarmcp.io/server/internal/naming"
	"swarmcp.io/server/internal/provision"
	"swarmcp.io/server/internal/service"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control plane API server",
	Long: `Run the HTTP API, the cluster event hub and the liveness monitor.

Provisioning goes to Nomad when nomad.address is set and naming to Consul
when consul.address is set. Otherwise in-memory backends are used, which
suits local development only.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&overrides.listenAddr, "listen", "l", "", "Address to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting swarmcp-server",
		zap.String("version", Version),
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("store_driver", cfg.Store.Driver),
	)

	if err := metrics.Init(); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	provisioner, err := newProvisioner(cfg, logger)
	if err != nil {
		return err
	}
	names, err := newNaming(cfg, logger)
	if err != nil {
		return err
	}

	hub := events.New(cfg.CORSOrigins, logger.Named("events"))
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	clusters := service.NewClusterService(st, logger.Named("clusters"), cfg.Nodes.PingTimeout)
	nodes := service.NewNodeService(st, provisioner, names, token.NewGenerator(cfg.TokenSecret), clusters,
		logger.Named("nodes"), service.NodeOptions{
			NodeDomain:  cfg.Nodes.Domain,
			AgentCmd:    cfg.Nodes.AgentCmd,
			PingTimeout: cfg.Nodes.PingTimeout,
			Versions:    cfg.Nodes.Versions(),
		})
	clusters.SetNodeDestroyer(nodes)
	clusters.SetEventPublisher(hub)
	nodes.SetEventPublisher(hub)

	mon := monitor.New(monitor.Config{
		Interval:    cfg.Monitor.Interval,
		PingTimeout: cfg.Nodes.PingTimeout,
	}, clusters, st, hub, logger.Named("monitor")).WithDBStats(st.DB())
	if err := mon.Start(); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}
	defer mon.Stop()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.SetupRouter(&api.RouterConfig{
		Logger:            logger.Named("http"),
		Clusters:          clusters,
		Nodes:             nodes,
		Store:             st,
		Events:            hub,
		AdminToken:        cfg.AdminToken,
		AllowOrigins:      cfg.CORSOrigins,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		Version:           Version,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func newProvisioner(cfg *config.Config, logger *zap.Logger) (provision.Provisioner, error) {
	if cfg.Nomad.Address == "" {
		logger.Warn("nomad address not set, using in-memory provisioner")
		return provision.NewMemory(), nil
	}
	return provision.NewNomad(provision.NomadConfig{
		Address:     cfg.Nomad.Address,
		Token:       cfg.Nomad.Token,
		Region:      cfg.Nomad.Region,
		Datacenters: cfg.Nomad.Datacenters,
		Image:       cfg.Nomad.Image,
	}, logger.Named("nomad"))
}

func newNaming(cfg *config.Config, logger *zap.Logger) (naming.Service, error) {
	if cfg.Consul.Address == "" {
		logger.Warn("consul address not set, using in-memory naming")
		return naming.NewStatic(), nil
	}
	return naming.NewConsul(naming.ConsulConfig{
		Address:    cfg.Consul.Address,
		Token:      cfg.Consul.Token,
		Datacenter: cfg.Consul.Datacenter,
	}, logger.Named("consul"))
}
