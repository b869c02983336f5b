// Package upstream is the typed client for the backend REST API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pricelens-gateway/internal/cache"
	"pricelens-gateway/internal/config"
	"pricelens-gateway/internal/principal"
	"pricelens-gateway/pkg/uid"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// maxBodyBytes bounds how much of a backend response is read.
const maxBodyBytes = 8 << 20

// RetryPolicy configures exponential backoff.
type RetryPolicy struct {
	Attempts       int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RetryMutations bool
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Retry      RetryPolicy
	Cache      cache.Cache
	CacheTTL   time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
	// Headers are sent with every request.
	Headers map[string]string
}

// OptionsFromConfig builds client options from configuration.
func OptionsFromConfig(cfg config.UpstreamConfig, c cache.Cache, ttl time.Duration, logger *zap.Logger) Options {
	return Options{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Retry: RetryPolicy{
			Attempts:       cfg.RetryAttempts,
			BaseDelay:      cfg.RetryBaseDelay,
			MaxDelay:       cfg.RetryMaxDelay,
			RetryMutations: cfg.RetryMutations,
		},
		Cache:    c,
		CacheTTL: ttl,
		Logger:   logger,
	}
}

// Client calls the backend API.
type Client struct {
	base     *url.URL
	http     *http.Client
	retry    RetryPolicy
	cache    cache.Cache
	cacheTTL time.Duration
	group    singleflight.Group
	headers  map[string]string
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a backend client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid upstream base url %q", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Retry.Attempts < 1 {
		opts.Retry.Attempts = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		base:     base,
		http:     httpClient,
		retry:    opts.Retry,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		headers:  opts.Headers,
		logger:   logger.Named("upstream"),
		now:      time.Now,
	}, nil
}

// call describes one backend request.
type call struct {
	method  string
	path    string
	query   url.Values
	body    any
	noCache bool
	// perUser scopes the cache entry to the calling principal.
	perUser bool
}

// GetJSON performs a cached, coalesced GET against path and decodes the
// body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.doJSON(ctx, call{method: http.MethodGet, path: path, query: query}, out)
}

// PostJSON sends body as JSON to path and decodes the response into out,
// which may be nil. It follows the mutation retry policy.
func (c *Client) PostJSON(ctx context.Context, path string, query url.Values, body, out any) error {
	return c.doJSON(ctx, call{method: http.MethodPost, path: path, query: query, body: body}, out)
}

func (c *Client) doJSON(ctx context.Context, cl call, out any) error {
	raw, err := c.fetch(ctx, cl)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: KindDecode, Method: cl.method, Path: cl.path, Status: http.StatusBadGateway,
			Message: "The server returned an unexpected response.", Err: err}
	}
	return nil
}

// fetch returns the raw response body, consulting the cache for GETs.
func (c *Client) fetch(ctx context.Context, cl call) ([]byte, error) {
	target := c.resolve(cl.path, cl.query)
	if cl.method != http.MethodGet || cl.noCache || c.cache == nil {
		return c.send(ctx, cl, target)
	}

	key := "upstream:" + target
	if cl.perUser {
		key = "upstream:user:" + principalKey(ctx) + ":" + target
	}
	if data, err := c.cache.Get(ctx, key); err == nil {
		return data, nil
	}

	// Concurrent identical GETs share one backend round trip.
	v, err, shared := c.group.Do(key, func() (any, error) {
		data, err := c.send(ctx, cl, target)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
			c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("coalesced request", zap.String("url", target))
	}
	return v.([]byte), nil
}

// principalKey identifies the caller for per-user cache entries.
// Anonymous callers share one entry.
func principalKey(ctx context.Context) string {
	if p := principal.FromContext(ctx); p.IsLoggedIn() {
		return p.UserID
	}
	return "anonymous"
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// send performs the request with the retry policy. Side-effect-free methods
// retry on transport errors and 5xx; mutating methods retry only when
// RetryMutations is on, and then always carry an Idempotency-Key.
func (c *Client) send(ctx context.Context, cl call, target string) ([]byte, error) {
	var payload []byte
	if cl.body != nil {
		var err error
		if payload, err = json.Marshal(cl.body); err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", cl.method, cl.path, err)
		}
	}

	attempts := 1
	var idempotencyKey string
	switch {
	case idempotent(cl.method):
		attempts = c.retry.Attempts
	case c.retry.RetryMutations:
		attempts = c.retry.Attempts
		idempotencyKey = uid.New()
	}

	var lastErr *Error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := c.backoff(attempt - 1)
			c.logger.Info("retrying request",
				zap.String("method", cl.method),
				zap.String("path", cl.path),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Int("last_status", lastErr.Status),
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, transportError(cl.method, cl.path, ctx.Err())
			case <-timer.C:
			}
		}

		data, err := c.once(ctx, cl, target, payload, idempotencyKey)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func retryable(err *Error) bool {
	if err.Kind == KindTransport {
		return !errors.Is(err.Err, context.Canceled)
	}
	return err.Kind == KindApplication && err.Status >= 500
}

func (c *Client) backoff(retry int) time.Duration {
	d := c.retry.BaseDelay << (retry - 1)
	if c.retry.MaxDelay > 0 && (d > c.retry.MaxDelay || d <= 0) {
		d = c.retry.MaxDelay
	}
	return d
}

func (c *Client) once(ctx context.Context, cl call, target string, payload []byte, idempotencyKey string) ([]byte, *Error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Method: cl.method, Path: cl.path,
			Status: http.StatusInternalServerError, Message: msgFallback, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if token := principal.AccessToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := uid.RequestID(ctx); id != "" {
		req.Header.Set(uid.Header, id)
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("method", cl.method),
			zap.String("path", cl.path),
			zap.Error(err),
		)
		return nil, transportError(cl.method, cl.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transportError(cl.method, cl.path, err)
	}

	c.logger.Debug("request completed",
		zap.String("method", cl.method),
		zap.String("path", cl.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", c.now().Sub(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, applicationError(cl.method, cl.path, resp.StatusCode, data)
	}
	return data, nil
}
