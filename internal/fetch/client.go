package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"tender_fetcher/internal/metrics"
)

const maxBodyBytes = 16 << 20

// Config holds fetch client configuration.
type Config struct {
	Timeout        time.Duration
	UserAgent      string
	MaxIdleConns   int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client is a pooled HTTP client shared by every scraper goroutine.
type Client struct {
	httpClient     *http.Client
	userAgent      string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// New creates a client backed by a pooled transport.
func New(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return NewWithTransport(cfg, transport, m, logger)
}

// NewWithTransport creates a client on top of an existing round tripper.
func NewWithTransport(cfg Config, transport http.RoundTripper, m *metrics.Metrics, logger *slog.Logger) *Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		userAgent:      cfg.UserAgent,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		metrics:        m,
		logger:         logger.With("component", "fetch"),
	}
}

// Get fetches url and returns the response body. Transient failures are retried
// with exponential backoff; permanent ones return immediately.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var err error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var body []byte
		body, err = c.doRequest(ctx, url)
		if err == nil {
			c.metrics.IncRequest("ok")
			return body, nil
		}

		c.metrics.IncError(ErrorType(err))

		if !Retryable(err) || attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.metrics.IncRetries()
		c.logger.Warn("request failed, retrying",
			"url", url,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			c.metrics.IncRequest("canceled")
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	c.metrics.IncRequest("failed")
	return nil, fmt.Errorf("get %s: %w", url, err)
}

func (c *Client) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		return nil, classifyError(err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, classifyError(nil, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, classifyError(err, 0)
	}

	return body, nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > c.maxBackoff {
			return c.maxBackoff
		}
	}
	return backoff
}
