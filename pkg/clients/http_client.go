// Package clients provides the HTTP client used to talk to paginated JSON
// APIs: rate limited, retried with backoff, guarded by a circuit breaker and
// instrumented with Prometheus metrics.
package clients

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/errors"
	jsonpool "github.com/ajitpratap0/bioetl/pkg/json"
)

// maxErrorBody bounds how much of an error response is kept for diagnostics.
const maxErrorBody = 512

// APIClient performs GET requests against a JSON API rooted at a base URL.
// It is safe for concurrent use.
type APIClient struct {
	baseURL    *url.URL
	logger     *zap.Logger
	httpClient *http.Client
	transport  *http.Transport
	userAgent  string

	retry          *RetryPolicy
	rateLimiter    RateLimiter
	circuitBreaker *CircuitBreaker
}

// NewAPIClient creates a client for baseURL configured from cfg.
func NewAPIClient(baseURL string, cfg config.HTTPConfig, logger *zap.Logger) (*APIClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "base url must be absolute").
			WithDetail("base_url", baseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &APIClient{
		baseURL:   u,
		logger:    logger.With(zap.String("component", "api_client"), zap.String("host", u.Host)),
		userAgent: cfg.UserAgent,
		retry: &RetryPolicy{
			MaxAttempts:     cfg.RetryAttempts + 1,
			InitialDelay:    cfg.RetryDelay,
			MaxDelay:        cfg.MaxRetryDelay,
			Multiplier:      cfg.RetryMultiplier,
			RandomizeFactor: 0.25,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimitPerSec, cfg.RateBurst),
	}
	if c.userAgent == "" {
		c.userAgent = "bioetl/1.0"
	}

	c.transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	if cfg.EnableHTTP2 {
		if err := http2.ConfigureTransport(c.transport); err != nil {
			c.logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	c.httpClient = &http.Client{
		Transport: withAuth(c.transport, tokenSource(context.Background(), cfg.BearerToken, cfg.OAuth2)),
		Timeout:   cfg.RequestTimeout,
	}

	if cfg.CircuitBreaker {
		c.circuitBreaker = NewCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			SuccessThreshold: cfg.SuccessThreshold,
			Timeout:          cfg.OpenTimeout,
		}, logger)
	}
	return c, nil
}

// BaseURL returns the API root.
func (c *APIClient) BaseURL() string {
	return c.baseURL.String()
}

// ResolveURL builds the request URL for path and params. path may be
// absolute, relative to the base URL, or carry its own query string; params
// are added to that query.
func (c *APIClient) ResolveURL(path string, params url.Values) (string, error) {
	var target *url.URL
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		u, err := url.Parse(path)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeValidation, "invalid request url")
		}
		target = u
	} else {
		rel, err := url.Parse(path)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeValidation, "invalid request path")
		}
		u := *c.baseURL
		u.Path = c.baseURL.Path + "/" + strings.TrimLeft(rel.Path, "/")
		u.RawPath = ""
		u.RawQuery = rel.RawQuery
		target = &u
	}

	if len(params) > 0 {
		q := target.Query()
		for k, vs := range params {
			q.Del(k)
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}
	return target.String(), nil
}

// Get fetches path and decodes the JSON object body. Numbers are kept as
// json.Number so identifiers and measurements round-trip exactly.
func (c *APIClient) Get(ctx context.Context, path string, params url.Values) (map[string]interface{}, error) {
	target, err := c.ResolveURL(path, params)
	if err != nil {
		return nil, err
	}

	var payload map[string]interface{}
	err = c.retry.Execute(ctx, func() error {
		var attemptErr error
		payload, attemptErr = c.do(ctx, target)
		return attemptErr
	}, func(attempt int, err error) {
		httpRetries.WithLabelValues(c.baseURL.Host).Inc()
		c.logger.Warn("retrying request",
			zap.String("url", target),
			zap.Int("attempt", attempt),
			zap.Error(err))
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *APIClient) do(ctx context.Context, target string) (map[string]interface{}, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			httpRejected.WithLabelValues(c.baseURL.Host, "rate_limit").Inc()
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "rate limiter wait aborted")
		}
	}
	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		httpRejected.WithLabelValues(c.baseURL.Host, "circuit_open").Inc()
		return nil, errors.New(errors.ErrorTypeTransport, "circuit breaker open").
			WithDetail("url", target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		recordRequest(c.baseURL.Host, 0, time.Since(start), err)
		c.recordOutcome(false)
		if ctx.Err() != nil || isTimeout(err) {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "request timed out").WithDetail("url", target)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeTransport, "request failed").
			WithDetail("url", target).Retryable()
	}
	defer resp.Body.Close()
	recordRequest(c.baseURL.Host, resp.StatusCode, time.Since(start), nil)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := classifyStatus(resp.StatusCode).
			WithDetail("url", target).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", string(body))
		c.recordOutcome(resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests)
		return nil, statusErr
	}
	c.recordOutcome(true)

	payload, err := jsonpool.DecodeObject(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "response is not a JSON object").
			WithDetail("url", target)
	}
	return payload, nil
}

func (c *APIClient) recordOutcome(ok bool) {
	if c.circuitBreaker == nil {
		return
	}
	if ok {
		c.circuitBreaker.RecordSuccess()
	} else {
		c.circuitBreaker.RecordFailure()
	}
}

// Close releases idle connections.
func (c *APIClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

func classifyStatus(code int) *errors.Error {
	switch {
	case code == http.StatusTooManyRequests:
		return errors.Newf(errors.ErrorTypeRateLimit, "rate limited (HTTP %d)", code)
	case code >= 500:
		return errors.Newf(errors.ErrorTypeTransport, "server error (HTTP %d)", code).Retryable()
	default:
		return errors.Newf(errors.ErrorTypeTransport, "unexpected status (HTTP %d)", code)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
