// Package opensearch serves Deep Search collection queries from a
// self-hosted OpenSearch cluster that mirrors the public collections.
package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/turtacn/OpenAD-Plugins/internal/config"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

var (
	ErrInvalidConfig    = errors.New(errors.ErrCodeValidation, "invalid opensearch configuration")
	ErrConnectionFailed = errors.New(errors.ErrCodeServiceUnavailable, "opensearch connection failed")
)

// ClientConfig holds the connection settings.
type ClientConfig struct {
	Addresses           []string
	Username            string
	Password            string
	InsecureSkipVerify  bool
	MaxRetries          int
	RetryBackoff        time.Duration
	RequestTimeout      time.Duration
	MaxIdleConnsPerHost int
	HealthCheckInterval time.Duration
}

// ConfigFrom converts the application section.
func ConfigFrom(c config.OpenSearchConfig, timeout time.Duration) ClientConfig {
	return ClientConfig{
		Addresses:          c.Addresses,
		Username:           c.User,
		Password:           c.Password,
		InsecureSkipVerify: c.InsecureSkipVerify,
		MaxRetries:         c.MaxRetries,
		RequestTimeout:     timeout,
	}
}

// Client manages the cluster connection and tracks its health.
type Client struct {
	client  *opensearch.Client
	config  ClientConfig
	logger  logging.Logger
	healthy atomic.Bool
	cancel  context.CancelFunc
}

// NewClient validates cfg and pings the cluster. On success it starts a
// background health check, every 30s unless cfg sets an interval.
func NewClient(cfg ClientConfig, logger logging.Logger) (*Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = 10
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		ResponseHeaderTimeout: cfg.RequestTimeout,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	osClient, err := opensearch.NewClient(opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  func(int) time.Duration { return cfg.RetryBackoff },
		Transport:     transport,
		RetryOnStatus: []int{502, 503, 504, 429},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create opensearch client")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		client: osClient,
		config: cfg,
		logger: logger.Named("opensearch"),
		cancel: cancel,
	}

	if err := c.Ping(ctx); err != nil {
		cancel()
		return nil, ErrConnectionFailed.WithCause(err)
	}

	go c.startHealthCheck(ctx)

	return c, nil
}

// Ping updates the health flag from a cluster ping.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.Ping(c.client.Ping.WithContext(ctx))
	if err != nil {
		c.healthy.Store(false)
		c.logger.Warn("ping failed", logging.Err(err))
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		c.healthy.Store(false)
		c.logger.Warn("ping returned error status", logging.Int("status", resp.StatusCode))
		return errors.Newf(errors.ErrCodeServiceUnavailable, "ping returned status %d", resp.StatusCode)
	}

	c.healthy.Store(true)
	return nil
}

// IsHealthy reports the result of the last ping.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// Close stops the health check loop.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.logger.Info("client closed")
	return nil
}

func (c *Client) startHealthCheck(ctx context.Context) {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prev := c.healthy.Load()
			err := c.Ping(ctx)
			curr := c.healthy.Load()

			if prev && !curr {
				c.logger.Error("cluster became unhealthy", logging.Err(err))
			} else if !prev && curr {
				c.logger.Info("cluster recovered")
			}
		}
	}
}

// ValidateConfig requires at least one address and non-negative retries.
func ValidateConfig(cfg ClientConfig) error {
	if len(cfg.Addresses) == 0 {
		return ErrInvalidConfig.WithDetail("at least one address is required")
	}
	if cfg.MaxRetries < 0 {
		return errors.New(errors.ErrCodeValidation, "MaxRetries must be >= 0")
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New(errors.ErrCodeValidation, "RequestTimeout must be > 0")
	}
	return nil
}
