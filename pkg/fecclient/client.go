// Package fecclient provides the FEC API HTTP client with request pacing,
// retry, response caching, and error handling.
package fecclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/campfin/fec-sync/pkg/logging"
)

// FEC API resource endpoints.
const (
	EndpointCandidates    = "/candidates/"
	EndpointCommittees    = "/committees/"
	EndpointContributions = "/schedules/schedule_a/"
)

// Prometheus metrics for FEC client operations.
var (
	fecRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fec_requests_total",
		Help: "Total FEC requests by endpoint and status",
	}, []string{"endpoint", "status"})

	fecRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fec_request_duration_seconds",
		Help:    "FEC request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})
)

// Pagination is the pagination envelope the FEC API returns with every page.
// LastIndexes is the continuation cursor; its shape varies by resource (the
// schedule_a endpoint carries a secondary last-seen date alongside the index),
// so it is kept as an opaque string-keyed object.
type Pagination struct {
	Page        int            `json:"page"`
	Pages       int            `json:"pages"`
	Count       int            `json:"count"`
	LastIndexes map[string]any `json:"last_indexes"`
}

// CursorParams renders every cursor field as a request parameter for the next
// page. Numbers keep their exact upstream text (envelopes are decoded with
// json.Number).
func (p Pagination) CursorParams() map[string]string {
	if len(p.LastIndexes) == 0 {
		return nil
	}
	params := make(map[string]string, len(p.LastIndexes))
	for key, value := range p.LastIndexes {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			params[key] = v
		case json.Number:
			params[key] = v.String()
		default:
			params[key] = fmt.Sprintf("%v", v)
		}
	}
	return params
}

// Envelope is a single page of FEC API results.
type Envelope struct {
	Results    []json.RawMessage `json:"results"`
	Pagination Pagination        `json:"pagination"`
}

// Client is the FEC API client.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
	cache      *PageCache

	// pacing state: next request may not start before lastRequest + interval
	mu          sync.Mutex
	lastRequest time.Time
}

// Config holds the client configuration.
type Config struct {
	// APIKey authenticates every request. Required.
	APIKey string

	// BaseURL is the API root, e.g. "https://api.open.fec.gov/v1".
	BaseURL string

	// RequestInterval is the minimum pause between requests. The FEC API
	// allows at most one sustained request per second.
	RequestInterval time.Duration

	// Retry controls backoff for transient failures.
	Retry RetryConfig

	// Redis enables the response page cache when set.
	Redis *redis.Client

	// CacheTTL is how long cached pages stay valid.
	CacheTTL time.Duration

	// Timeout bounds a single HTTP request.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:          apiKey,
		BaseURL:         "https://api.open.fec.gov/v1",
		RequestInterval: time.Second,
		Retry:           DefaultRetryConfig(),
		CacheTTL:        time.Hour,
		Timeout:         30 * time.Second,
	}
}

// New creates a new FEC client. It fails fast on a missing credential, before
// any request is issued.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.RequestInterval <= 0 {
		cfg.RequestInterval = time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := logging.NewLogger("fec-client")

	var pageCache *PageCache
	if cfg.Redis != nil {
		pageCache = NewPageCache(cfg.Redis, cfg.CacheTTL)
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     logger,
		cache:      pageCache,
	}, nil
}

// Candidates fetches one page of /candidates/.
func (c *Client) Candidates(ctx context.Context, params url.Values) (*Envelope, error) {
	return c.GetPage(ctx, EndpointCandidates, params)
}

// Committees fetches one page of /committees/.
func (c *Client) Committees(ctx context.Context, params url.Values) (*Envelope, error) {
	return c.GetPage(ctx, EndpointCommittees, params)
}

// Contributions fetches one page of /schedules/schedule_a/.
func (c *Client) Contributions(ctx context.Context, params url.Values) (*Envelope, error) {
	return c.GetPage(ctx, EndpointContributions, params)
}

// GetPage fetches a single page of an endpoint with pacing, caching, and
// retry. The API key is injected here; callers never handle it.
func (c *Client) GetPage(ctx context.Context, endpoint string, params url.Values) (*Envelope, error) {
	startTime := time.Now()
	defer func() {
		fecRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Cache key excludes the credential.
	cacheKey := pageKey(endpoint, params)
	if c.cache != nil {
		if entry, err := c.cache.Get(ctx, cacheKey); err == nil {
			c.logger.Debug().Str("endpoint", endpoint).Msg("Page cache hit")
			fecRequestsTotal.WithLabelValues(endpoint, "cached").Inc()
			return decodeEnvelope(entry)
		} else if err != ErrCacheMiss {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Page cache get error")
		}
	}

	query := url.Values{}
	for key, values := range params {
		query[key] = values
	}
	query.Set("api_key", c.config.APIKey)

	requestURL := c.config.BaseURL + endpoint + "?" + query.Encode()

	var body []byte
	err := retryWithBackoff(ctx, c.logger, c.config.Retry, endpoint, func() error {
		if err := c.pace(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return &APIError{Class: ErrorClassClient, Endpoint: endpoint, Message: "create request", Err: err}
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			fecRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return &APIError{Class: ErrorClassNetwork, Endpoint: endpoint, Message: "connection error", Err: err}
		}
		defer resp.Body.Close()

		fecRequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

		if resp.StatusCode != http.StatusOK {
			class := classifyStatus(resp.StatusCode)
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(class)).
				Msg("FEC request error")
			return &APIError{
				StatusCode: resp.StatusCode,
				Class:      class,
				Endpoint:   endpoint,
				Message:    resp.Status,
			}
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return &APIError{Class: ErrorClassNetwork, Endpoint: endpoint, Message: "read body", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	envelope, err := decodeEnvelope(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, body); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Page cache set error")
		}
	}

	return envelope, nil
}

// pace blocks until the inter-request interval has elapsed since the previous
// request. Pagination is sequential, so a fixed blocking pause is sufficient
// to respect the upstream rate limit.
func (c *Client) pace(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now()
	next := c.lastRequest.Add(c.config.RequestInterval)
	if next.Before(now) {
		next = now
	}
	c.lastRequest = next
	c.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// decodeEnvelope parses a page body. Numbers decode as json.Number so cursor
// fields and result amounts keep their exact upstream text.
func decodeEnvelope(body []byte) (*Envelope, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var envelope Envelope
	if err := decoder.Decode(&envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}
