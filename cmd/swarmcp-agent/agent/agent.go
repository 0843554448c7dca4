// Package agent runs on every node. It registers the node with the control
// plane once, then pings until it is stopped.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"swarmcp.io/models"
	"swarmcp.io/sdk"
)

// Client is the part of the SDK the agent uses.
type Client interface {
	Register(ctx context.Context, info *models.AgentInfo) (*models.NodeView, error)
	Ping(ctx context.Context) error
	Infos(ctx context.Context) (*models.AgentInfos, error)
}

// Agent reports the state of one node.
type Agent struct {
	client   Client
	config   *Config
	logger   *zap.Logger
	interval time.Duration
}

// New creates an agent for a validated configuration.
func New(config *Config, client Client, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := config.PingInterval
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	return &Agent{
		client:   client,
		config:   config,
		logger:   logger,
		interval: interval,
	}
}

// NewClient builds the SDK client described by config.
func NewClient(config *Config) (*sdk.Client, error) {
	return sdk.NewClient(sdk.ClientConfig{
		BaseURLs:      config.ServerURLs,
		NodeToken:     config.NodeToken,
		RetryAttempts: config.RetryAttempts,
	})
}

// Run registers the node and pings every interval until ctx is cancelled.
// It returns early when the control plane rejects the node token, which
// happens after the node is deleted or its token is rotated.
func (a *Agent) Run(ctx context.Context) error {
	node, err := a.register(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	a.logger.Info("Node registered",
		zap.String("node_id", node.ID),
		zap.String("cluster_id", node.ClusterID),
		zap.String("state", string(node.State)),
	)

	if infos, err := a.client.Infos(ctx); err != nil {
		a.logger.Warn("Failed to fetch node infos", zap.Error(err))
	} else {
		a.logger.Info("Node configuration",
			zap.String("name", infos.Name),
			zap.Bool("master", infos.Master),
			zap.String("docker", infos.Versions.Docker),
			zap.String("swarm", infos.Versions.Swarm),
			zap.String("strategy", string(infos.Strategy)),
		)
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Agent stopped")
			return nil
		case <-ticker.C:
			err := a.client.Ping(ctx)
			switch {
			case err == nil:
				a.logger.Debug("Ping sent")
			case ctx.Err() != nil:
				return nil
			case fatal(err):
				return fmt.Errorf("control plane rejected ping: %w", err)
			default:
				a.logger.Warn("Ping failed", zap.Error(err))
			}
		}
	}
}

// register retries on transient failures at the ping interval.
func (a *Agent) register(ctx context.Context) (*models.NodeView, error) {
	info := a.config.AgentInfo()
	for {
		node, err := a.client.Register(ctx, info)
		if err == nil {
			return node, nil
		}
		if fatal(err) {
			return nil, fmt.Errorf("control plane rejected registration: %w", err)
		}
		a.logger.Warn("Registration failed, retrying",
			zap.Error(err),
			zap.Duration("retry_in", a.interval),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.interval):
		}
	}
}

// fatal reports errors that retrying cannot fix.
func fatal(err error) bool {
	return errors.Is(err, sdk.ErrUnauthorized) ||
		errors.Is(err, sdk.ErrValidation) ||
		errors.Is(err, sdk.ErrNotFound) ||
		errors.Is(err, sdk.ErrMissingAuth)
}
