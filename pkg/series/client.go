package series

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bouncestorage/bounce-stats/internal/logctx"
	"golang.org/x/sync/semaphore"
)

// Querier executes a filter query against the time-series store.
type Querier interface {
	Query(ctx context.Context, q Query) ([]Series, error)
}

// ClientConfig configures the HTTP series client.
type ClientConfig struct {
	// URL is the base URL of the time-series store, e.g. "http://localhost:8086".
	URL string
	// Database holds the bounce operation series.
	Database string
	Username string
	Password string

	// Timeout bounds a single query round trip. Default: 30s.
	Timeout time.Duration

	// MaxConcurrent caps in-flight queries. A run may dispatch two queries per
	// container, so an unbounded fan-out would overwhelm small deployments.
	// Default: 16.
	MaxConcurrent int

	// HTTPClient overrides the transport (tests use httptest servers).
	HTTPClient *http.Client
}

// DefaultClientConfig returns defaults for everything except URL and Database.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:       30 * time.Second,
		MaxConcurrent: 16,
	}
}

// Client queries the series HTTP API:
//
//	GET <url>/db/<database>/series?q=<query>&u=<user>&p=<password>&time_precision=ms
type Client struct {
	endpoint string
	cfg      ClientConfig
	http     *http.Client
	sem      *semaphore.Weighted
}

// maxErrorBody bounds how much of an error response ends up in the error.
const maxErrorBody = 4 << 10

// NewClient creates a series client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("series client: url is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("series client: database is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig().Timeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultClientConfig().MaxConcurrent
	}

	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse series url: %w", err)
	}
	base = base.JoinPath("db", cfg.Database, "series")

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		endpoint: base.String(),
		cfg:      cfg,
		http:     hc,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}, nil
}

// Query runs q and decodes the returned series. An empty body or "[]" yields
// no series and no error.
func (c *Client) Query(ctx context.Context, q Query) ([]Series, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire query slot: %w", err)
	}
	defer c.sem.Release(1)

	params := url.Values{}
	params.Set("q", q.String())
	params.Set("time_precision", "ms")
	if c.cfg.Username != "" {
		params.Set("u", c.cfg.Username)
		params.Set("p", c.cfg.Password)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %d: %s", ErrQueryStatus, resp.StatusCode, bytes.TrimSpace(msg))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read query response: %w", err)
	}

	result, err := DecodeSeries(body)
	if err != nil {
		return nil, err
	}

	log := logctx.FromContext(ctx)
	log.Debug().
		Str("query", q.String()).
		Int("series", len(result)).
		Dur("elapsed", time.Since(start)).
		Msg("series query done")

	return result, nil
}

// DecodeSeries decodes a query response body. Numbers are kept as json.Number
// so byte sizes above 2^53 survive.
func DecodeSeries(body []byte) ([]Series, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var result []Series
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("decode series response: %w", err)
	}
	return result, nil
}
