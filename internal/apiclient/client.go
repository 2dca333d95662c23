// Package apiclient is the shared access layer every weather provider uses to
// reach its upstream API. A Client owns one TTL response cache, one rate
// limiter and one circuit breaker; none of them are shared across clients.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/i474232898/weatherhub/internal/metrics"
)

var errCircuitOpen = errors.New("circuit breaker open")

// Config controls caching, rate limiting and retry behaviour of a Client.
type Config struct {
	// Name labels logs, metrics and errors (e.g. "nws").
	Name    string
	BaseURL string
	Headers map[string]string

	HTTPClient *http.Client

	// RedactParams names query parameters (e.g. API keys) whose values are
	// masked in logs, spans and errors.
	RedactParams []string

	CacheEnabled bool
	CacheTTL     time.Duration

	MinRequestInterval time.Duration

	// HTTP 429 handling: wait InitialWait * Backoff^attempt, at most MaxRetries times.
	MaxRetries  int
	InitialWait time.Duration
	Backoff     float64

	// FetchTimeout bounds a fetch shared by concurrent callers, which runs
	// detached from any single caller's context. Defaults to one minute.
	FetchTimeout time.Duration

	Logger *zap.Logger

	// Now overrides the cache clock; used by tests.
	Now func() time.Time
}

// Client performs cached, rate-limited GET requests returning raw JSON.
type Client struct {
	cfg     Config
	cache   *ttlCache
	flight  singleflight.Group
	limiter *RateLimiter
	circuit *gobreaker.CircuitBreaker
	logger  *zap.Logger
	tracer  trace.Tracer
}

// New creates a Client. Zero values in cfg fall back to sensible defaults.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialWait <= 0 {
		cfg.InitialWait = time.Second
	}
	if cfg.Backoff < 1 {
		cfg.Backoff = 2
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		cfg:     cfg,
		cache:   newTTLCache(cfg.CacheTTL, cfg.Now),
		limiter: NewRateLimiter(cfg.MinRequestInterval),
		circuit: cb,
		logger:  logger.With(zap.String("provider", cfg.Name)),
		tracer:  otel.Tracer("github.com/i474232898/weatherhub/internal/apiclient"),
	}
}

// Name returns the provider label of this client.
func (c *Client) Name() string {
	return c.cfg.Name
}

// RateLimiter exposes the client's limiter.
func (c *Client) RateLimiter() *RateLimiter {
	return c.limiter
}

// Stats returns cache hit and miss counts.
func (c *Client) Stats() (hits, misses int) {
	return c.cache.stats()
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	c.cache.clear()
}

// GetOrFetch returns the cached value for key or calls fetch and caches its
// result. Concurrent misses on the same key share a single fetch, which is not
// cancelled when one of the waiting callers gives up; each caller still
// returns as soon as its own ctx is done. With force set, or caching disabled,
// fetch is called directly and the cache is left untouched. Errors are never
// cached.
func (c *Client) GetOrFetch(ctx context.Context, key string, force bool, fetch func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	if force || !c.cfg.CacheEnabled {
		return fetch(ctx)
	}

	if v, ok := c.cache.get(key); ok {
		metrics.CacheHitsTotal.WithLabelValues(c.cfg.Name).Inc()
		c.logger.Debug("cache hit", zap.String("key", key))
		return v, nil
	}
	metrics.CacheMissesTotal.WithLabelValues(c.cfg.Name).Inc()

	ch := c.flight.DoChan(key, func() (interface{}, error) {
		// A fetch for key may have completed since the miss above.
		if v, ok := c.cache.lookup(key); ok {
			return v, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
		defer cancel()
		v, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		c.cache.set(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, c.newError(classifyTransport(ctx.Err()), 0, "", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug("joined in-flight request", zap.String("key", key))
		}
		return res.Val.(json.RawMessage), nil
	}
}

// GetJSON fetches endpoint with params through the cache, keyed by CacheKey.
func (c *Client) GetJSON(ctx context.Context, endpoint string, params url.Values, force bool) (json.RawMessage, error) {
	u := c.resolve(endpoint)
	return c.GetJSONWithKey(ctx, CacheKey(u, params), u, params, force)
}

// GetJSONWithKey is GetJSON with a caller-chosen cache key.
func (c *Client) GetJSONWithKey(ctx context.Context, key, endpoint string, params url.Values, force bool) (json.RawMessage, error) {
	u := c.resolve(endpoint)
	return c.GetOrFetch(ctx, key, force, func(ctx context.Context) (json.RawMessage, error) {
		return c.Fetch(ctx, u, params)
	})
}

// Fetch issues the request without consulting the cache. Every attempt waits
// on the rate limiter; HTTP 429 responses are retried with exponential backoff.
func (c *Client) Fetch(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	u := c.resolve(endpoint)
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + params.Encode()
	}
	shown := c.redact(u)

	ctx, span := c.tracer.Start(ctx, "apiclient.Fetch", trace.WithAttributes(
		attribute.String("provider", c.cfg.Name),
		attribute.String("http.url", shown),
	))
	defer span.End()

	body, err := c.fetchWithRetry(ctx, u, shown)
	if err != nil {
		metrics.UpstreamErrorsTotal.WithLabelValues(c.cfg.Name, KindOf(err).String()).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return body, nil
}

// fetchWithRetry requests u; shown is u with secrets masked and is the only
// form that reaches logs and errors.
func (c *Client) fetchWithRetry(ctx context.Context, u, shown string) (json.RawMessage, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.newError(classifyTransport(err), 0, shown, err)
		}

		status, body, err := c.do(ctx, u, shown)
		if err != nil {
			return nil, err
		}

		if status == http.StatusTooManyRequests {
			if attempt >= c.cfg.MaxRetries {
				c.logger.Warn("rate limited, retries exhausted",
					zap.String("url", shown), zap.Int("attempts", attempt+1))
				return nil, c.newError(KindRateLimit, status, shown,
					fmt.Errorf("gave up after %d attempts", attempt+1))
			}

			delay := c.backoffDelay(attempt)
			metrics.RateLimitRetriesTotal.WithLabelValues(c.cfg.Name).Inc()
			c.logger.Info("rate limited, backing off",
				zap.String("url", shown), zap.Int("attempt", attempt+1), zap.Duration("wait", delay))

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, c.newError(classifyTransport(ctx.Err()), 0, shown, ctx.Err())
			case <-timer.C:
			}
			continue
		}

		if status < 200 || status >= 300 {
			return nil, c.newError(classifyStatus(status), status, shown, nil)
		}
		if !json.Valid(body) {
			return nil, c.newError(KindParse, status, shown, errors.New("response is not valid JSON"))
		}
		return json.RawMessage(body), nil
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return "server responded with status " + strconv.Itoa(e.code)
}

// do executes one request inside the circuit breaker. Only transport failures
// and 5xx responses count against the breaker.
func (c *Client) do(ctx context.Context, u, shown string) (int, []byte, error) {
	type response struct {
		status int
		body   []byte
	}

	start := time.Now()
	result, err := c.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range c.cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, &statusError{code: resp.StatusCode}
		}
		return response{status: resp.StatusCode, body: body}, nil
	})
	metrics.UpstreamRequestDurationSeconds.WithLabelValues(c.cfg.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		// Transport errors quote the request URL.
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = shown
		}
		var se *statusError
		switch {
		case errors.As(err, &se):
			metrics.UpstreamRequestsTotal.WithLabelValues(c.cfg.Name, strconv.Itoa(se.code)).Inc()
			return 0, nil, c.newError(KindServer, se.code, shown, nil)
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return 0, nil, c.newError(KindNetwork, 0, shown, fmt.Errorf("%w: %v", errCircuitOpen, err))
		default:
			metrics.UpstreamRequestsTotal.WithLabelValues(c.cfg.Name, "error").Inc()
			return 0, nil, c.newError(classifyTransport(err), 0, shown, err)
		}
	}

	resp, ok := result.(response)
	if !ok {
		return 0, nil, c.newError(KindUnknown, 0, shown, errors.New("unexpected result type from circuit breaker"))
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(c.cfg.Name, strconv.Itoa(resp.status)).Inc()
	return resp.status, resp.body, nil
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	return time.Duration(float64(c.cfg.InitialWait) * math.Pow(c.cfg.Backoff, float64(attempt)))
}

func (c *Client) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") || c.cfg.BaseURL == "" {
		return endpoint
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

// redact masks the values of the configured secret query parameters in u.
func (c *Client) redact(u string) string {
	if len(c.cfg.RedactParams) == 0 {
		return u
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	q := parsed.Query()
	masked := false
	for _, name := range c.cfg.RedactParams {
		if _, ok := q[name]; ok {
			q.Set(name, "REDACTED")
			masked = true
		}
	}
	if !masked {
		return u
	}
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

func (c *Client) newError(kind ErrorKind, status int, u string, err error) *APIError {
	return &APIError{Kind: kind, Provider: c.cfg.Name, StatusCode: status, URL: u, Err: err}
}

// Decode unmarshals a payload returned by Client into v, reporting failures
// as KindParse errors.
func (c *Client) Decode(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return c.newError(KindParse, 0, "", err)
	}
	return nil
}
