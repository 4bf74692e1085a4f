package elasticsearch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
)

// ClientConfig configures the cluster connection.
type ClientConfig struct {
	Addresses []string
	Username  string
	Password  string
	Breaker   BreakerConfig
	// Transport is the underlying round tripper, mainly for tests.
	Transport http.RoundTripper
}

// NewClient creates an Elasticsearch client whose requests pass through a
// circuit breaker. Client retries are left to the breaker.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*elasticsearch.Client, error) {
	if cfg.Breaker.Name == "" {
		cfg.Breaker = DefaultBreakerConfig()
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    cfg.Addresses,
		Username:     cfg.Username,
		Password:     cfg.Password,
		Transport:    newBreakerTransport(cfg.Transport, cfg.Breaker, logger),
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}
	return client, nil
}

// WaitForCluster pings the cluster with exponential backoff until it answers
// or maxWait elapses.
func WaitForCluster(ctx context.Context, e *Engine, maxWait time.Duration, logger *slog.Logger) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = maxWait

	attempt := 0
	op := func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return e.Ping(pingCtx)
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("elasticsearch not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("next_retry", next),
			slog.String("error", err.Error()),
		)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return fmt.Errorf("elasticsearch: cluster not reachable after %d attempts: %w", attempt, err)
	}
	logger.Info("elasticsearch cluster reachable", slog.Int("attempts", attempt))
	return nil
}
