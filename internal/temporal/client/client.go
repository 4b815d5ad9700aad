package client

import (
	"context"
	"crypto/tls"
	"sync"

	"github.com/flexprice/deprovisioner/internal/config"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
	"go.temporal.io/sdk/client"
)

// TemporalClient owns the lifecycle of the SDK client.
type TemporalClient interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsHealthy(ctx context.Context) bool
	// Client returns the SDK client. It is nil before Start.
	Client() client.Client
}

type temporalClient struct {
	cfg    config.TemporalConfig
	logger *logger.Logger

	mu     sync.RWMutex
	client client.Client
}

func NewTemporalClient(cfg *config.Configuration, logger *logger.Logger) TemporalClient {
	return &temporalClient{
		cfg:    cfg.Temporal,
		logger: logger,
	}
}

// NewTemporalClientFrom wraps an already built SDK client.
func NewTemporalClientFrom(c client.Client, logger *logger.Logger) TemporalClient {
	return &temporalClient{
		logger: logger,
		client: c,
	}
}

// Start creates a lazy client; the connection is dialed on first use.
func (c *temporalClient) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	options := client.Options{
		HostPort:  c.cfg.Address,
		Namespace: c.cfg.Namespace,
		Logger:    c.logger.GetTemporalLogger(),
	}
	if c.cfg.APIKey != "" {
		options.Credentials = client.NewAPIKeyStaticCredentials(c.cfg.APIKey)
	}
	if c.cfg.TLS || c.cfg.APIKey != "" {
		options.ConnectionOptions = client.ConnectionOptions{TLS: &tls.Config{MinVersion: tls.VersionTLS12}}
	}

	sdkClient, err := client.NewLazyClient(options)
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to create temporal client for %s", c.cfg.Address).
			Mark(ierr.ErrSystem)
	}

	c.client = sdkClient
	c.logger.Infow("temporal client created", "address", c.cfg.Address, "namespace", c.cfg.Namespace)
	return nil
}

func (c *temporalClient) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	return nil
}

func (c *temporalClient) IsHealthy(ctx context.Context) bool {
	sdkClient := c.Client()
	if sdkClient == nil {
		return false
	}
	_, err := sdkClient.CheckHealth(ctx, &client.CheckHealthRequest{})
	if err != nil {
		c.logger.Warnw("temporal health check failed", "error", err)
		return false
	}
	return true
}

func (c *temporalClient) Client() client.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}
